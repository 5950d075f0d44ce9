// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

// Package audit records an append-only trail of every trust registry
// and sync lifecycle operation: component registration, authentication
// attempts, sync event creation, target verification, and per-target
// dispatch results. Receivers add their own records for inbound
// deliveries and challenges.
//
// # Chain
//
// Each record carries a BLAKE3 chain hash computed over the previous
// record's chain hash and the deterministic CBOR encoding of the record
// itself. Altering, reordering, or deleting any stored record breaks
// every chain hash after it, which VerifyChain detects. The chain makes
// tampering evident; it does not prevent it.
//
// # Sinks
//
// A Trail writes through a Sink, which assigns sequence numbers inside
// its own transaction so that several trails and processes can share
// one sink. MemorySink keeps records in memory
// for reporting and tests; lib/store provides the durable SQLite sink.
// Records are never updated or deleted through either.
//
// Records must never contain the shared secret, private key material,
// or plaintext payloads. Callers put identifiers, hashes, and outcomes
// in Detail.
package audit
