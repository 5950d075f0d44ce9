// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for policysync
// packages.
//
// [RequireReceive] and [RequireClosed] bound every channel wait in a
// test so a lost goroutine fails the test instead of hanging it.
//
// [RSAKey] hands out RSA-2048 keys generated once per test binary,
// one per slot. Tests that need several distinct identities use
// distinct slots.
//
// [UniqueID] returns identifiers that never repeat within a test
// binary.
//
// Helpers call t.Fatalf on failure.
package testutil
