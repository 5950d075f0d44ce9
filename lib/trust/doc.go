// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

// Package trust holds the component trust registry: the authoritative
// table of which remote components this node knows, with which public
// key, and whether they are currently trusted.
//
// Trust decays. A component is trusted only if its most recent
// authentication succeeded and happened within the verification
// interval. Freshness is computed from the clock on every check, never
// stored as a flag, so a component silently drops out of trust once
// the interval passes without any registry mutation.
//
// Authenticate is the only way a component becomes verified. Register
// never grants trust: new and re-registered components start pending.
// A failed authentication marks the component failed but keeps its
// entry, so the audit history stays continuous.
//
// # Concurrency
//
// The entry map is guarded by a read-write mutex held only for lookup
// and insertion. Each entry has its own mutex, so authentications of
// different components proceed in parallel while updates to one
// component are serialized. Signature verification for an entry runs
// under that entry's lock so that a concurrent re-registration cannot
// swap the key between verification and the status update.
package trust
