// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/jsonc"

	"github.com/controlcoreio/policysync/lib/component"
	"github.com/controlcoreio/policysync/lib/signature"
)

// Entry is one component in an inventory file.
type Entry struct {
	ComponentID   string         `json:"component_id"`
	ComponentType component.Type `json:"component_type"`
	PublicKeyPath string         `json:"public_key_path,omitempty"`
	PublicKey     string         `json:"public_key,omitempty"`
}

// Inventory is a parsed inventory file.
type Inventory struct {
	Components []Entry `json:"components"`
}

// Registrar accepts component registrations. *trust.Registry
// satisfies it.
type Registrar interface {
	Register(ctx context.Context, identity component.Identity) error
}

// Parse strips JSONC syntax from data and decodes it. Relative key
// paths are resolved against baseDir and the keys are read, so every
// returned entry carries an inline PublicKey.
func Parse(data []byte, baseDir string) (*Inventory, error) {
	var inventory Inventory
	if err := json.Unmarshal(jsonc.ToJSON(data), &inventory); err != nil {
		return nil, fmt.Errorf("inventory: parsing: %w", err)
	}

	var errs []error
	seen := make(map[string]bool, len(inventory.Components))
	for i := range inventory.Components {
		entry := &inventory.Components[i]
		if err := entry.resolve(baseDir); err != nil {
			errs = append(errs, fmt.Errorf("components[%d]: %w", i, err))
			continue
		}
		if seen[entry.ComponentID] {
			errs = append(errs, fmt.Errorf("components[%d]: duplicate component_id %q", i, entry.ComponentID))
		}
		seen[entry.ComponentID] = true
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("inventory: %w", err)
	}
	return &inventory, nil
}

// ReadFile reads and parses the inventory at path.
func ReadFile(path string) (*Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("inventory: reading %s: %w", path, err)
	}
	inventory, err := Parse(data, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return inventory, nil
}

func (e *Entry) resolve(baseDir string) error {
	if e.ComponentID == "" {
		return errors.New("component_id is required")
	}
	if !e.ComponentType.Valid() {
		return fmt.Errorf("component %q: unknown component_type %q", e.ComponentID, e.ComponentType)
	}
	switch {
	case e.PublicKey != "" && e.PublicKeyPath != "":
		return fmt.Errorf("component %q: set public_key or public_key_path, not both", e.ComponentID)
	case e.PublicKeyPath != "":
		path := e.PublicKeyPath
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("component %q: reading public key: %w", e.ComponentID, err)
		}
		e.PublicKey = string(data)
	case e.PublicKey == "":
		return fmt.Errorf("component %q: public_key or public_key_path is required", e.ComponentID)
	}
	if _, err := signature.ParsePublicKeyPEM(e.PublicKey); err != nil {
		return fmt.Errorf("component %q: %w", e.ComponentID, err)
	}
	return nil
}

// Identities returns the inventory as registry descriptors.
func (inv *Inventory) Identities() []component.Identity {
	identities := make([]component.Identity, 0, len(inv.Components))
	for _, entry := range inv.Components {
		identities = append(identities, component.Identity{
			ComponentID:  entry.ComponentID,
			Type:         entry.ComponentType,
			PublicKeyPEM: entry.PublicKey,
		})
	}
	return identities
}

// Apply registers every entry with registrar and returns how many
// were registered. It stops at the first failure.
func (inv *Inventory) Apply(ctx context.Context, registrar Registrar) (int, error) {
	for i, identity := range inv.Identities() {
		if err := registrar.Register(ctx, identity); err != nil {
			return i, fmt.Errorf("inventory: registering %s: %w", identity.ComponentID, err)
		}
	}
	return len(inv.Components), nil
}
