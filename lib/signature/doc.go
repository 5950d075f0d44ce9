// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

// Package signature wraps RSA-PSS signing and verification for the
// policy sync protocol.
//
// Signatures use RSA-PSS with MGF1/SHA-256 and the maximum salt length,
// computed over the SHA-256 digest of the payload bytes. The payload is
// opaque: signing never fails because of its content.
//
// Verification is binary. Verify returns false for every failure
// (malformed PEM, wrong key type, truncated signature, mismatch) and
// logs the reason instead of returning it, so that callers cannot
// expose a verification oracle by reporting distinct failure modes.
package signature
