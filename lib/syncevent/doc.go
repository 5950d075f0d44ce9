// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

// Package syncevent runs the sync event state machine: one call to
// [Engine.CreateAndDistribute] takes a payload from creation through
// target verification, encryption, and per-target dispatch to a
// terminal status.
//
//	created -> target-verification -> encrypting -> dispatching -> completed
//	                 |                     |              |
//	                 +---------------------+--------------+-> failed
//
// The payload is serialized once to canonical JSON (RFC 8785). The
// hash, the signature, and the ciphertext are all computed over those
// exact bytes, so a receiver that decrypts, hashes, and verifies sees
// the same bytes the sender signed.
//
// Target verification is all-or-nothing. Every target must resolve to
// a verified component whose verification is fresh; if any target
// does not, the event fails with zero network calls. Encryption
// happens once per event and failure aborts before any egress.
//
// Dispatch runs one goroutine per target, each bounded by
// Config.DispatchTimeout, and joins all of them before deciding the
// terminal status. A transport failure affects only its own target;
// siblings still receive the delivery. The event completes only if
// every target acknowledged it. Dispatch runs on a context detached
// from the caller's, so a caller that gives up does not leave the event
// half delivered with an undefined status.
//
// Expected failures (untrusted targets, encryption errors, transport
// errors) are recorded on the returned SyncEvent, not returned as
// errors. CreateAndDistribute returns an error only for a request that
// could never succeed (empty targets, an unknown event type, a payload
// that is not JSON-serializable) and when the local key cannot sign.
//
// The engine retains every event in memory for reporting through
// Events, Event, and Summary. Returned events are deep copies.
package syncevent
