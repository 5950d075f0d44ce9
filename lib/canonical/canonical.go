// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// Marshal JSON-encodes v and transforms the result into RFC 8785
// canonical form. Values that already hold raw JSON (json.RawMessage,
// []byte from a request body) should go through Transform instead to
// avoid a decode/encode round trip.
func Marshal(v any) ([]byte, error) {
	var buffer bytes.Buffer
	encoder := json.NewEncoder(&buffer)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(v); err != nil {
		return nil, fmt.Errorf("canonical: encoding payload: %w", err)
	}
	return Transform(buffer.Bytes())
}

// Transform returns the canonical form of already-encoded JSON.
func Transform(raw []byte) ([]byte, error) {
	canonicalBytes, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonical: %w", err)
	}
	return canonicalBytes, nil
}

// Digest returns the lowercase hex SHA-256 of data. This is the
// payload_hash format carried in sync events and the X-Sync-Hash
// header.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// MarshalDigest canonicalizes v and returns both the canonical bytes
// and their digest.
func MarshalDigest(v any) ([]byte, string, error) {
	canonicalBytes, err := Marshal(v)
	if err != nil {
		return nil, "", err
	}
	return canonicalBytes, Digest(canonicalBytes), nil
}
