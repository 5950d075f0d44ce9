// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

// Package dispatch delivers sync envelopes to receiving nodes over
// HTTP.
//
// A Dispatcher maps each component type to one base URL. Deliver sends
// a single envelope to a single target and reports the outcome as a
// value: transport errors, non-2xx replies, and local token failures
// are all classified failures, never panics or returned errors. There
// is no retry. A failed target is retried by creating a new sync
// event, which the receiver deduplicates by payload hash.
//
// Every request carries a bearer token minted for the target's
// component type, so a token captured in transit to one component type
// is refused by every other type.
//
// Challenge asks a receiving node to sign a nonce. The coordinator
// feeds the reply to trust.Registry.Authenticate, which is how a
// component first becomes verified and how it is kept fresh.
package dispatch
