// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

package component

import (
	"fmt"
	"time"
)

// Type identifies the role a component plays in a deployment. The set
// is closed: Parse rejects anything not listed here.
type Type string

const (
	EnforcementProxy Type = "enforcement-proxy"
	AdminAPI         Type = "admin-api"
	TenantAdmin      Type = "tenant-admin"
	SyncCoordinator  Type = "sync-coordinator"
)

// Types lists every valid component type in declaration order.
var Types = []Type{EnforcementProxy, AdminAPI, TenantAdmin, SyncCoordinator}

// Valid reports whether t is one of the declared component types.
func (t Type) Valid() bool {
	switch t {
	case EnforcementProxy, AdminAPI, TenantAdmin, SyncCoordinator:
		return true
	}
	return false
}

func (t Type) String() string { return string(t) }

// ParseType converts a string to a Type, rejecting unknown values.
func ParseType(value string) (Type, error) {
	t := Type(value)
	if !t.Valid() {
		return "", fmt.Errorf("component: unknown component type %q", value)
	}
	return t, nil
}

// UnmarshalText implements encoding.TextUnmarshaler so that JSON and
// YAML decoding reject unknown component types at the boundary.
func (t *Type) UnmarshalText(text []byte) error {
	parsed, err := ParseType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Status is the verification state of a registered component.
type Status string

const (
	// Pending is the state of a freshly registered (or re-registered)
	// component that has not yet completed an authentication.
	Pending Status = "pending"

	// Verified means the most recent authentication succeeded.
	// Whether the component is currently trusted also depends on the
	// age of that authentication; see trust.Registry.IsFresh.
	Verified Status = "verified"

	// Failed means the most recent authentication failed. The entry
	// is kept for audit continuity.
	Failed Status = "failed"
)

// Identity is one known remote component. Values returned by the trust
// registry are snapshots: mutating them has no effect on the registry.
type Identity struct {
	// ComponentID is the stable unique key of the component.
	ComponentID string `json:"component_id"`

	// Type is the declared role of the component.
	Type Type `json:"component_type"`

	// PublicKeyPEM is the component's RSA public key in PEM form.
	// Replacing it requires an explicit re-registration.
	PublicKeyPEM string `json:"public_key"`

	// Certificate is optional and opaque to the protocol.
	Certificate []byte `json:"certificate,omitempty"`

	// LastVerifiedAt is the time of the last successful
	// authentication, or nil if the component has never
	// authenticated.
	LastVerifiedAt *time.Time `json:"last_verified_at,omitempty"`

	// Status is the outcome of the most recent authentication.
	Status Status `json:"verification_status"`
}
