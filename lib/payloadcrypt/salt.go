// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

package payloadcrypt

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// SaltSize is the length of generated per-deployment salts.
const SaltSize = 32

// GenerateSalt returns SaltSize random bytes.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("payloadcrypt: generating salt: %w", err)
	}
	return salt, nil
}

// LoadSalt reads a hex-encoded salt file.
func LoadSalt(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("payloadcrypt: reading salt: %w", err)
	}
	salt, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("payloadcrypt: salt file %s is not hex: %w", path, err)
	}
	if len(salt) < MinimumSaltSize {
		return nil, fmt.Errorf("payloadcrypt: salt file %s holds %d bytes, minimum is %d", path, len(salt), MinimumSaltSize)
	}
	return salt, nil
}

// LoadOrGenerateSalt loads the salt at path, or generates one and
// writes it (hex, mode 0600) if the file does not exist. Returns
// whether the salt was newly generated. The generated file must then
// be copied to every other component of the deployment.
func LoadOrGenerateSalt(path string) ([]byte, bool, error) {
	salt, err := LoadSalt(path)
	if err == nil {
		return salt, false, nil
	}
	if _, statErr := os.Stat(path); !errors.Is(statErr, fs.ErrNotExist) {
		return nil, false, err
	}

	salt, err = GenerateSalt()
	if err != nil {
		return nil, false, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, false, fmt.Errorf("payloadcrypt: creating salt directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(salt)+"\n"), 0600); err != nil {
		return nil, false, fmt.Errorf("payloadcrypt: writing salt: %w", err)
	}
	return salt, true, nil
}
