// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

// Package store is a node's durable local state in SQLite: the audit
// trail and the ledger of applied payload hashes.
//
// A *Store satisfies audit.Sink. Records are append-only: the store
// exposes no update or delete, and the sequence column is the primary
// key, so a duplicate sequence number fails instead of overwriting.
// The detail map is stored as a CBOR blob.
//
// The applied-payload ledger is what makes a receiver idempotent
// across restarts. A payload hash is recorded after the policy sink
// accepts the payload; a later delivery of the same hash, even under a
// different event ID, is acknowledged without being applied again.
package store
