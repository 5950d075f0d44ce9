// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire defines the HTTP exchange between a sending node's
// dispatcher and a receiving node: the sync envelope, its headers, the
// challenge request and reply, and the event type vocabulary.
//
// A delivery is one POST to <base>/sync:
//
//	Authorization:   Bearer <RS256 token, aud = receiver's component type>
//	X-Sync-Event-ID: <event_id>
//	X-Sync-Signature: <hex RSA-PSS signature over the canonical payload>
//	X-Sync-Hash:     <hex SHA-256 of the canonical payload>
//
//	{"event_id": ..., "event_type": ..., "source_component": ...,
//	 "timestamp": ..., "encrypted_payload": "<base64 IV||tag||ct>"}
//
// The signature and hash travel in headers rather than the body so the
// receiver can check them against the decrypted bytes without trusting
// anything inside the ciphertext.
package wire
