// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

// Package identity owns this node's RSA-2048 keypair and everything
// that requires the private key: payload signatures and short-lived
// bearer tokens for the transport dispatcher.
//
// # Key persistence
//
// The keypair is loaded from the node's state directory on start, or
// generated once and written there on first boot. Regenerating on every
// start would invalidate the public key that other components hold in
// their trust registries, so a key file that exists but cannot be
// parsed is an error rather than a reason to generate a new key.
//
//	<state>/identity-key.pem      PKCS#8 private key, mode 0600
//	<state>/identity-key.pub.pem  PKIX public key, mode 0644
//
// # Tokens
//
// IssueToken produces a compact JWS signed with RS256 binding the
// issuer (this node's component ID), the audience (the target's
// component type), issued-at, not-before, expiry, and a unique token
// ID. A token is a capability for one delivery. It does not establish
// trust on its own: the receiver looks up the issuer's public key in
// its own trust registry.
//
// VerifyToken is the receiving side. ReplayCache lets a receiver refuse
// a token ID it has already accepted until that token expires.
//
// The private key never leaves this package.
package identity
