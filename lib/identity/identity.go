// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"crypto/rsa"
	"errors"
	"fmt"

	"github.com/controlcoreio/policysync/lib/clock"
	"github.com/controlcoreio/policysync/lib/component"
	"github.com/controlcoreio/policysync/lib/signature"
)

// Config describes this node's identity.
type Config struct {
	// ComponentID is this node's registry key as known to its peers.
	// Required.
	ComponentID string

	// Type is this node's declared component type. Required.
	Type component.Type

	// PrivateKey is the node's RSA key, typically from
	// LoadOrGenerateKeypair. Required.
	PrivateKey *rsa.PrivateKey

	// Clock stamps issued tokens. Defaults to clock.Real().
	Clock clock.Clock
}

// Identity signs payloads and issues tokens on behalf of this node.
// It is safe for concurrent use.
type Identity struct {
	componentID   string
	componentType component.Type
	privateKey    *rsa.PrivateKey
	publicKeyPEM  string
	clock         clock.Clock
}

// New validates cfg and returns an Identity.
func New(cfg Config) (*Identity, error) {
	if cfg.ComponentID == "" {
		return nil, errors.New("identity: ComponentID is required")
	}
	if !cfg.Type.Valid() {
		return nil, fmt.Errorf("identity: invalid component type %q", cfg.Type)
	}
	if cfg.PrivateKey == nil {
		return nil, errors.New("identity: PrivateKey is required")
	}
	if bits := cfg.PrivateKey.N.BitLen(); bits < signature.MinimumKeyBits {
		return nil, fmt.Errorf("identity: RSA key is %d bits, minimum is %d", bits, signature.MinimumKeyBits)
	}

	publicKeyPEM, err := signature.EncodePublicKeyPEM(&cfg.PrivateKey.PublicKey)
	if err != nil {
		return nil, err
	}

	timeSource := cfg.Clock
	if timeSource == nil {
		timeSource = clock.Real()
	}

	return &Identity{
		componentID:   cfg.ComponentID,
		componentType: cfg.Type,
		privateKey:    cfg.PrivateKey,
		publicKeyPEM:  publicKeyPEM,
		clock:         timeSource,
	}, nil
}

// ComponentID returns this node's component ID.
func (id *Identity) ComponentID() string { return id.componentID }

// ComponentType returns this node's declared type.
func (id *Identity) ComponentType() component.Type { return id.componentType }

// PublicKeyPEM returns the PKIX PEM encoding of this node's public key,
// the value peers register for it.
func (id *Identity) PublicKeyPEM() string { return id.publicKeyPEM }

// PublicKey returns this node's public key.
func (id *Identity) PublicKey() *rsa.PublicKey { return &id.privateKey.PublicKey }

// Sign returns an RSA-PSS signature over SHA-256(payload).
func (id *Identity) Sign(payload []byte) ([]byte, error) {
	return signature.Sign(id.privateKey, payload)
}

// Descriptor returns the component record peers should register for
// this node. Status is pending: registration never grants trust.
func (id *Identity) Descriptor() component.Identity {
	return component.Identity{
		ComponentID:  id.componentID,
		Type:         id.componentType,
		PublicKeyPEM: id.publicKeyPEM,
		Status:       component.Pending,
	}
}
