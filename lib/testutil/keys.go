// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"sync"
)

var (
	keysMu sync.Mutex
	keys   = map[int]*rsa.PrivateKey{}
)

// RSAKey returns the RSA-2048 key for slot. The same slot always
// returns the same key within one test binary; distinct slots return
// distinct keys.
func RSAKey(t TB, slot int) *rsa.PrivateKey {
	t.Helper()
	keysMu.Lock()
	defer keysMu.Unlock()
	if key, ok := keys[slot]; ok {
		return key
	}
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating RSA key for slot %d: %v", slot, err)
	}
	keys[slot] = key
	return key
}

// PublicKeyPEM returns the PKIX PEM encoding of key's public half.
func PublicKeyPEM(t TB, key *rsa.PrivateKey) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("encoding public key: %v", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}
