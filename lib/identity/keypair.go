// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/controlcoreio/policysync/lib/signature"
)

const (
	privateKeyFile = "identity-key.pem"
	publicKeyFile  = "identity-key.pub.pem"

	// KeyBits is the RSA modulus size for generated identities.
	KeyBits = 2048
)

// GenerateKeypair creates a new RSA-2048 private key.
func GenerateKeypair() (*rsa.PrivateKey, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, KeyBits)
	if err != nil {
		return nil, fmt.Errorf("identity: generating RSA key: %w", err)
	}
	return privateKey, nil
}

// SaveKeypair writes the private key (0600) and its public half (0644)
// to stateDir. The directory is created if missing.
func SaveKeypair(stateDir string, privateKey *rsa.PrivateKey) error {
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return fmt.Errorf("identity: creating state directory: %w", err)
	}

	der, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		return fmt.Errorf("identity: encoding private key: %w", err)
	}
	privatePEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	if err := os.WriteFile(filepath.Join(stateDir, privateKeyFile), privatePEM, 0600); err != nil {
		return fmt.Errorf("identity: writing private key: %w", err)
	}

	publicPEM, err := signature.EncodePublicKeyPEM(&privateKey.PublicKey)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(stateDir, publicKeyFile), []byte(publicPEM), 0644); err != nil {
		return fmt.Errorf("identity: writing public key: %w", err)
	}
	return nil
}

// LoadKeypair reads the private key from stateDir. The public key file
// is informational (for operators distributing it to peers) and is not
// consulted: the public key is always derived from the private key.
func LoadKeypair(stateDir string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(filepath.Join(stateDir, privateKeyFile))
	if err != nil {
		return nil, fmt.Errorf("identity: reading private key: %w", err)
	}
	return ParsePrivateKeyPEM(data)
}

// ParsePrivateKeyPEM decodes an RSA private key in PKCS#8 or PKCS#1
// PEM form and checks its size.
func ParsePrivateKeyPEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("identity: private key file contains no PEM block")
	}

	var privateKey *rsa.PrivateKey
	switch block.Type {
	case "PRIVATE KEY":
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("identity: parsing PKCS#8 private key: %w", err)
		}
		rsaKey, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("identity: private key is %T, want RSA", parsed)
		}
		privateKey = rsaKey
	case "RSA PRIVATE KEY":
		parsed, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("identity: parsing PKCS#1 private key: %w", err)
		}
		privateKey = parsed
	default:
		return nil, fmt.Errorf("identity: unexpected PEM block type %q", block.Type)
	}

	if bits := privateKey.N.BitLen(); bits < signature.MinimumKeyBits {
		return nil, fmt.Errorf("identity: RSA key is %d bits, minimum is %d", bits, signature.MinimumKeyBits)
	}
	return privateKey, nil
}

// LoadOrGenerateKeypair loads the keypair from stateDir, or generates
// and saves one if no private key file exists. Returns whether the key
// was newly generated. A key file that exists but fails to load is
// returned as an error.
func LoadOrGenerateKeypair(stateDir string) (*rsa.PrivateKey, bool, error) {
	privateKey, err := LoadKeypair(stateDir)
	if err == nil {
		return privateKey, false, nil
	}

	if _, statErr := os.Stat(filepath.Join(stateDir, privateKeyFile)); !errors.Is(statErr, fs.ErrNotExist) {
		return nil, false, err
	}

	privateKey, err = GenerateKeypair()
	if err != nil {
		return nil, false, err
	}
	if err := SaveKeypair(stateDir, privateKey); err != nil {
		return nil, false, err
	}
	return privateKey, true, nil
}
