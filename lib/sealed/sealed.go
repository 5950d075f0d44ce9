// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"
	"filippo.io/age/armor"

	"github.com/controlcoreio/policysync/lib/secret"
)

// File names inside a node's state directory.
const (
	IdentityFile  = "age.key"
	RecipientFile = "age.pub"
)

// Keypair is a node's age X25519 identity.
type Keypair struct {
	// PrivateKey is the AGE-SECRET-KEY-1... string in locked memory.
	PrivateKey *secret.Buffer

	// PublicKey is the age1... recipient. Safe to publish.
	PublicKey string
}

// Close releases the private key.
func (k *Keypair) Close() error {
	if k.PrivateKey != nil {
		return k.PrivateKey.Close()
	}
	return nil
}

// GenerateKeypair creates a new age X25519 identity.
func GenerateKeypair() (*Keypair, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("sealed: generating age identity: %w", err)
	}
	privateKey, err := secret.NewFromBytes([]byte(identity.String()))
	if err != nil {
		return nil, fmt.Errorf("sealed: protecting age identity: %w", err)
	}
	return &Keypair{PrivateKey: privateKey, PublicKey: identity.Recipient().String()}, nil
}

// LoadOrGenerateKeypair loads the age identity from stateDir, or
// generates and writes one if none exists. Returns whether it was
// generated. An identity file that exists but does not parse is an
// error.
func LoadOrGenerateKeypair(stateDir string) (*Keypair, bool, error) {
	identityPath := filepath.Join(stateDir, IdentityFile)
	privateKey, err := secret.ReadFromPath(identityPath)
	if err == nil {
		identity, parseErr := age.ParseX25519Identity(privateKey.String())
		if parseErr != nil {
			privateKey.Close()
			return nil, false, fmt.Errorf("sealed: %s: %w", identityPath, parseErr)
		}
		return &Keypair{PrivateKey: privateKey, PublicKey: identity.Recipient().String()}, false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, false, fmt.Errorf("sealed: loading %s: %w", identityPath, err)
	}

	keypair, err := GenerateKeypair()
	if err != nil {
		return nil, false, err
	}
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		keypair.Close()
		return nil, false, fmt.Errorf("sealed: creating %s: %w", stateDir, err)
	}
	contents := append(append([]byte(nil), keypair.PrivateKey.Bytes()...), '\n')
	err = os.WriteFile(identityPath, contents, 0o600)
	secret.Zero(contents)
	if err != nil {
		keypair.Close()
		return nil, false, fmt.Errorf("sealed: writing %s: %w", identityPath, err)
	}
	recipientPath := filepath.Join(stateDir, RecipientFile)
	if err := os.WriteFile(recipientPath, []byte(keypair.PublicKey+"\n"), 0o644); err != nil {
		keypair.Close()
		return nil, false, fmt.Errorf("sealed: writing %s: %w", recipientPath, err)
	}
	return keypair, true, nil
}

// ParseRecipient validates an age1... recipient string.
func ParseRecipient(publicKey string) error {
	if _, err := age.ParseX25519Recipient(strings.TrimSpace(publicKey)); err != nil {
		return fmt.Errorf("sealed: invalid age recipient: %w", err)
	}
	return nil
}

// Seal encrypts plaintext to every recipient and returns armored
// ciphertext.
func Seal(plaintext []byte, recipientKeys []string) ([]byte, error) {
	if len(recipientKeys) == 0 {
		return nil, errors.New("sealed: at least one recipient is required")
	}
	recipients := make([]age.Recipient, 0, len(recipientKeys))
	for _, key := range recipientKeys {
		recipient, err := age.ParseX25519Recipient(strings.TrimSpace(key))
		if err != nil {
			return nil, fmt.Errorf("sealed: parsing recipient %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}

	var output bytes.Buffer
	armored := armor.NewWriter(&output)
	writer, err := age.Encrypt(armored, recipients...)
	if err != nil {
		return nil, fmt.Errorf("sealed: creating encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return nil, fmt.Errorf("sealed: encrypting: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("sealed: finishing encryption: %w", err)
	}
	if err := armored.Close(); err != nil {
		return nil, fmt.Errorf("sealed: finishing armor: %w", err)
	}
	return output.Bytes(), nil
}

// Open decrypts armored ciphertext with privateKey, which is
// borrowed and not closed.
func Open(ciphertext []byte, privateKey *secret.Buffer) (*secret.Buffer, error) {
	identity, err := age.ParseX25519Identity(privateKey.String())
	if err != nil {
		return nil, fmt.Errorf("sealed: parsing private key: %w", err)
	}
	reader, err := age.Decrypt(armor.NewReader(bytes.NewReader(ciphertext)), identity)
	if err != nil {
		return nil, fmt.Errorf("sealed: decrypting: %w", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		secret.Zero(plaintext)
		return nil, fmt.Errorf("sealed: reading plaintext: %w", err)
	}
	buffer, err := secret.NewFromBytes(plaintext)
	if err != nil {
		return nil, fmt.Errorf("sealed: protecting plaintext: %w", err)
	}
	return buffer, nil
}
