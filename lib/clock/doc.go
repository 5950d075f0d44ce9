// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts the time source used by the trust registry,
// the sync event engine, and token issuance.
//
// Freshness of a component's verification is computed from Now() on
// every use, so tests drive trust decay by advancing a FakeClock
// rather than sleeping. Production code injects Real().
package clock
