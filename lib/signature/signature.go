// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

package signature

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
)

// pssOptions selects MGF1/SHA-256. PSSSaltLengthAuto makes the salt as
// large as the key allows when signing and detects the salt length
// when verifying.
var pssOptions = &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthAuto, Hash: crypto.SHA256}

// MinimumKeyBits is the smallest RSA modulus accepted for signing or
// verification.
const MinimumKeyBits = 2048

// ErrNotRSA is returned by ParsePublicKeyPEM when the PEM block holds a
// key of a different algorithm.
var ErrNotRSA = errors.New("signature: public key is not RSA")

// Sign produces an RSA-PSS signature over SHA-256(payload).
func Sign(privateKey *rsa.PrivateKey, payload []byte) ([]byte, error) {
	if privateKey == nil {
		return nil, errors.New("signature: nil private key")
	}
	digest := sha256.Sum256(payload)
	signature, err := rsa.SignPSS(rand.Reader, privateKey, crypto.SHA256, digest[:], pssOptions)
	if err != nil {
		return nil, fmt.Errorf("signature: signing: %w", err)
	}
	return signature, nil
}

// Verify reports whether signature is a valid RSA-PSS signature over
// payload by the holder of publicKeyPEM. It never returns an error:
// every failure is logged at debug level on logger (which may be nil)
// and reported as false.
func Verify(logger *slog.Logger, signature, payload []byte, publicKeyPEM string) bool {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	publicKey, err := ParsePublicKeyPEM(publicKeyPEM)
	if err != nil {
		logger.Debug("signature verification failed", "reason", "unusable public key", "error", err)
		return false
	}
	return VerifyKey(logger, signature, payload, publicKey)
}

// VerifyKey is Verify for an already parsed public key.
func VerifyKey(logger *slog.Logger, signature, payload []byte, publicKey *rsa.PublicKey) bool {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if publicKey == nil {
		logger.Debug("signature verification failed", "reason", "nil public key")
		return false
	}
	if len(signature) == 0 {
		logger.Debug("signature verification failed", "reason", "empty signature")
		return false
	}

	digest := sha256.Sum256(payload)
	if err := rsa.VerifyPSS(publicKey, crypto.SHA256, digest[:], signature, pssOptions); err != nil {
		logger.Debug("signature verification failed", "reason", "signature mismatch", "error", err)
		return false
	}
	return true
}

// ParsePublicKeyPEM decodes an RSA public key from a PEM block in
// either PKIX ("PUBLIC KEY") or PKCS#1 ("RSA PUBLIC KEY") form.
// Keys smaller than MinimumKeyBits are rejected.
func ParsePublicKeyPEM(publicKeyPEM string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(publicKeyPEM))
	if block == nil {
		return nil, errors.New("signature: no PEM block found")
	}

	var publicKey *rsa.PublicKey
	switch block.Type {
	case "PUBLIC KEY":
		parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("signature: parsing PKIX public key: %w", err)
		}
		rsaKey, ok := parsed.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("%w: got %T", ErrNotRSA, parsed)
		}
		publicKey = rsaKey
	case "RSA PUBLIC KEY":
		parsed, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("signature: parsing PKCS#1 public key: %w", err)
		}
		publicKey = parsed
	default:
		return nil, fmt.Errorf("signature: unexpected PEM block type %q", block.Type)
	}

	if bits := publicKey.N.BitLen(); bits < MinimumKeyBits {
		return nil, fmt.Errorf("signature: RSA key is %d bits, minimum is %d", bits, MinimumKeyBits)
	}
	return publicKey, nil
}

// EncodePublicKeyPEM encodes publicKey as a PKIX "PUBLIC KEY" PEM block.
func EncodePublicKeyPEM(publicKey *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(publicKey)
	if err != nil {
		return "", fmt.Errorf("signature: encoding public key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}
