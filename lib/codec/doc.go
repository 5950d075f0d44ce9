// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the CBOR configuration policy sync uses wherever
// a byte-exact internal encoding matters: the input to audit chain
// hashes, the detail blobs stored with audit records, and the sealed
// secret bundle.
//
// JSON remains the format of every external interface (the sync
// envelope, the admin API, CLI output). CBOR is internal only.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items. The
// same logical value always produces the same bytes, which is what
// makes hashing an encoded audit record meaningful.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
package codec
