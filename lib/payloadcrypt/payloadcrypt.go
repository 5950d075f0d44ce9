// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

package payloadcrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// Iterations is the PBKDF2 iteration count.
	Iterations = 100000

	// KeySize is the derived AES-256 key length in bytes.
	KeySize = 32

	// IVSize is the GCM nonce length in bytes (96 bits).
	IVSize = 12

	// TagSize is the GCM authentication tag length in bytes.
	TagSize = 16

	// MinimumSaltSize is the shortest salt Engine accepts.
	MinimumSaltSize = 8
)

// LegacySalt is the fixed application salt shared by every deployment
// that predates per-deployment salts.
var LegacySalt = []byte("controlcore-policy-sync-salt-v1")

// Errors returned by Encrypt and Decrypt.
var (
	ErrEmptySecret = errors.New("payloadcrypt: shared secret is empty")
	ErrMalformed   = errors.New("payloadcrypt: malformed ciphertext blob")
	ErrIntegrity   = errors.New("payloadcrypt: ciphertext failed authentication")
)

// Engine encrypts and decrypts payloads. It holds only the salt and is
// safe for concurrent use.
type Engine struct {
	salt []byte
	rand io.Reader
}

// Option configures an Engine.
type Option func(*Engine)

// WithRandom replaces the IV source. Tests use it to force a failing
// reader.
func WithRandom(reader io.Reader) Option {
	return func(e *Engine) { e.rand = reader }
}

// New returns an Engine using salt for key derivation.
func New(salt []byte, options ...Option) (*Engine, error) {
	if len(salt) < MinimumSaltSize {
		return nil, fmt.Errorf("payloadcrypt: salt is %d bytes, minimum is %d", len(salt), MinimumSaltSize)
	}
	engine := &Engine{salt: append([]byte(nil), salt...), rand: rand.Reader}
	for _, option := range options {
		option(engine)
	}
	return engine, nil
}

// Encrypt seals payload under a key derived from sharedSecret. Every
// failure is returned as an error; the result is never an empty string
// on success.
func (e *Engine) Encrypt(payload, sharedSecret []byte) (string, error) {
	aead, err := e.aead(sharedSecret)
	if err != nil {
		return "", err
	}

	iv := make([]byte, IVSize)
	if _, err := io.ReadFull(e.rand, iv); err != nil {
		return "", fmt.Errorf("payloadcrypt: generating IV: %w", err)
	}

	// Seal appends ciphertext||tag; rearrange to IV||tag||ciphertext.
	sealed := aead.Seal(nil, iv, payload, nil)
	ciphertext := sealed[:len(sealed)-TagSize]
	tag := sealed[len(sealed)-TagSize:]

	blob := make([]byte, 0, IVSize+TagSize+len(ciphertext))
	blob = append(blob, iv...)
	blob = append(blob, tag...)
	blob = append(blob, ciphertext...)
	return base64.StdEncoding.EncodeToString(blob), nil
}

// Decrypt reverses Encrypt. A wrong secret, a tampered blob, or a
// different salt all yield ErrIntegrity; no partial plaintext is ever
// returned.
func (e *Engine) Decrypt(blob string, sharedSecret []byte) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(raw) < IVSize+TagSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than IV and tag", ErrMalformed, len(raw))
	}

	aead, err := e.aead(sharedSecret)
	if err != nil {
		return nil, err
	}

	iv := raw[:IVSize]
	tag := raw[IVSize : IVSize+TagSize]
	ciphertext := raw[IVSize+TagSize:]

	sealed := make([]byte, 0, len(ciphertext)+TagSize)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, ErrIntegrity
	}
	return plaintext, nil
}

func (e *Engine) aead(sharedSecret []byte) (cipher.AEAD, error) {
	if len(sharedSecret) == 0 {
		return nil, ErrEmptySecret
	}
	key := pbkdf2.Key(sharedSecret, e.salt, Iterations, KeySize, sha256.New)
	defer clear(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("payloadcrypt: creating cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("payloadcrypt: creating GCM: %w", err)
	}
	return aead, nil
}
