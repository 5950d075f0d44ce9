// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"errors"
	"fmt"
	"os"

	"github.com/controlcoreio/policysync/lib/codec"
	"github.com/controlcoreio/policysync/lib/payloadcrypt"
	"github.com/controlcoreio/policysync/lib/secret"
)

// bundleVersion is the current Bundle layout.
const bundleVersion = 1

// Bundle is the sealed document: the shared secret and the salt every
// node derives payload keys with.
type Bundle struct {
	Version int    `cbor:"version"`
	Secret  []byte `cbor:"secret"`
	Salt    []byte `cbor:"salt"`
}

// SealBundle seals sharedSecret and salt to every recipient.
func SealBundle(sharedSecret, salt []byte, recipientKeys []string) ([]byte, error) {
	if len(sharedSecret) == 0 {
		return nil, secret.ErrEmpty
	}
	if len(salt) < payloadcrypt.MinimumSaltSize {
		return nil, fmt.Errorf("sealed: salt is %d bytes, minimum is %d", len(salt), payloadcrypt.MinimumSaltSize)
	}
	encoded, err := codec.Marshal(Bundle{Version: bundleVersion, Secret: sharedSecret, Salt: salt})
	if err != nil {
		return nil, fmt.Errorf("sealed: encoding bundle: %w", err)
	}
	defer secret.Zero(encoded)
	return Seal(encoded, recipientKeys)
}

// OpenedBundle is an opened Bundle. Close releases the secret.
type OpenedBundle struct {
	Secret *secret.Buffer
	Salt   []byte
}

// Close releases the shared secret.
func (b *OpenedBundle) Close() error {
	return b.Secret.Close()
}

// OpenBundle opens a sealed bundle with privateKey.
func OpenBundle(ciphertext []byte, privateKey *secret.Buffer) (*OpenedBundle, error) {
	plaintext, err := Open(ciphertext, privateKey)
	if err != nil {
		return nil, err
	}
	defer plaintext.Close()

	var bundle Bundle
	if err := codec.Unmarshal(plaintext.Bytes(), &bundle); err != nil {
		return nil, fmt.Errorf("sealed: decoding bundle: %w", err)
	}
	if bundle.Version != bundleVersion {
		secret.Zero(bundle.Secret)
		return nil, fmt.Errorf("sealed: unsupported bundle version %d", bundle.Version)
	}
	if len(bundle.Salt) < payloadcrypt.MinimumSaltSize {
		secret.Zero(bundle.Secret)
		return nil, fmt.Errorf("sealed: bundle salt is %d bytes, minimum is %d", len(bundle.Salt), payloadcrypt.MinimumSaltSize)
	}
	if len(bundle.Secret) == 0 {
		return nil, errors.New("sealed: bundle holds no secret")
	}

	sharedSecret, err := secret.NewFromBytes(bundle.Secret)
	if err != nil {
		return nil, fmt.Errorf("sealed: protecting secret: %w", err)
	}
	return &OpenedBundle{Secret: sharedSecret, Salt: bundle.Salt}, nil
}

// OpenBundleFile reads and opens the sealed bundle at path.
func OpenBundleFile(path string, privateKey *secret.Buffer) (*OpenedBundle, error) {
	ciphertext, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sealed: %w", err)
	}
	bundle, err := OpenBundle(ciphertext, privateKey)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return bundle, nil
}
