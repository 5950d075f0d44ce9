// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

// Package canonical produces the byte representation that sync event
// hashes and signatures are computed over.
//
// Payloads are serialized as RFC 8785 (JSON Canonicalization Scheme)
// so that two components holding the same logical payload always
// derive the same bytes, independent of map iteration order, number
// formatting, or whitespace. The same canonical bytes are hashed,
// signed, encrypted, and (after decryption on the receiving side)
// re-hashed and verified.
package canonical
