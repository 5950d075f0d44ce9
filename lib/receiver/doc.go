// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

// Package receiver serves the inbound side of the sync protocol:
// POST /sync, which verifies and applies a delivered payload, and
// POST /challenge, which proves this node holds its private key.
//
// A delivery is applied only after every check passes, in this order:
//
//  1. The bearer token's issuer is a registered component, the token
//     is signed by that component's key, its audience is this node's
//     type, it is within its validity window, and its ID has not been
//     seen before.
//  2. The envelope and headers are well formed, and the envelope's
//     source_component is the issuer's registered type.
//  3. The ciphertext decrypts under the shared secret to JSON.
//  4. The SHA-256 of the decrypted bytes equals X-Sync-Hash.
//  5. X-Sync-Signature verifies over the decrypted bytes through
//     trust.Registry.Authenticate, which also refreshes the sender's
//     verification.
//  6. The event ID has not been applied before, and the payload is not
//     the one currently applied for the event type.
//
// Failures answer 401 (token, source, or signature), 400 (malformed
// request), or 422 (decryption or hash mismatch) and apply nothing.
// A duplicate answers 200 with status "duplicate" and applies nothing,
// so a sender that retries with a new event is safe. A payload that
// was applied once and later superseded is applied again. Unregistered
// senders are always refused.
//
// /challenge signs wire.ChallengeMessage(nonce), never the bare nonce,
// so its signatures cannot stand in for payload signatures.
//
// Every request that reaches a handler produces one audit record.
package receiver
