// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

// Package payloadcrypt encrypts sync payloads with a key derived from
// the deployment's shared secret.
//
// The key is PBKDF2-HMAC-SHA256(shared secret, salt, 100000
// iterations, 32 bytes) and is recomputed for every operation; it is
// never stored. Each encryption uses a fresh random 96-bit IV with
// AES-256-GCM. The wire form is
//
//	base64( IV[12] || tag[16] || ciphertext )
//
// Note the tag precedes the ciphertext, unlike the layout Go's
// cipher.AEAD produces (ciphertext || tag); Encrypt and Decrypt convert
// between the two.
//
// # Salt
//
// LegacySalt is the fixed application salt every deployment used
// before per-deployment salts existed. It remains available for wire
// compatibility with older components. New deployments use a random
// per-deployment salt distributed alongside the shared secret (see
// lib/sealed) or persisted with LoadOrGenerateSalt. All components of
// one deployment must use the same salt.
package payloadcrypt
