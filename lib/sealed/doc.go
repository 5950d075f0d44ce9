// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed distributes the deployment's shared secret and salt
// to nodes without putting them in configuration or the environment.
//
// Each node holds an age X25519 identity in its state directory
// (age.key, 0600; age.pub holds the recipient). An operator seals a
// [Bundle] to the recipients of every node; each node opens the same
// file with its own identity. The file is ASCII-armored age
// ciphertext of a CBOR document.
//
// Private keys and opened secrets are returned as *secret.Buffer
// values and must be closed by the caller.
package sealed
