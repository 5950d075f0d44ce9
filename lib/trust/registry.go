// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

package trust

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/controlcoreio/policysync/lib/audit"
	"github.com/controlcoreio/policysync/lib/clock"
	"github.com/controlcoreio/policysync/lib/component"
	"github.com/controlcoreio/policysync/lib/signature"
	"github.com/controlcoreio/policysync/lib/syncerr"
)

// DefaultVerificationInterval is how long a successful authentication
// keeps a component trusted.
const DefaultVerificationInterval = 300 * time.Second

// Errors returned by lookups.
var (
	ErrNotFound  = errors.New("trust: component not registered")
	ErrAmbiguous = errors.New("trust: more than one component registered for type")
)

// Auditor receives registry audit entries. *audit.Trail satisfies it.
type Auditor interface {
	Emit(ctx context.Context, entry audit.Entry) error
}

// Config configures a Registry.
type Config struct {
	// VerificationInterval is the maximum age of a successful
	// authentication. Defaults to DefaultVerificationInterval.
	VerificationInterval time.Duration

	// Clock is the time source for freshness. Defaults to
	// clock.Real().
	Clock clock.Clock

	// Audit receives register and authenticate records. Optional.
	Audit Auditor

	// Logger receives verification failure reasons. If nil, logging
	// is discarded.
	Logger *slog.Logger
}

// Registry is the component trust registry.
type Registry struct {
	interval time.Duration
	clock    clock.Clock
	audit    Auditor
	logger   *slog.Logger

	mu      sync.RWMutex
	entries map[string]*entry
}

type entry struct {
	mu       sync.Mutex
	identity component.Identity
}

// New returns an empty registry.
func New(cfg Config) *Registry {
	interval := cfg.VerificationInterval
	if interval <= 0 {
		interval = DefaultVerificationInterval
	}
	timeSource := cfg.Clock
	if timeSource == nil {
		timeSource = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{
		interval: interval,
		clock:    timeSource,
		audit:    cfg.Audit,
		logger:   logger,
		entries:  make(map[string]*entry),
	}
}

// VerificationInterval returns the configured freshness window.
func (r *Registry) VerificationInterval() time.Duration { return r.interval }

// Register adds identity or updates the existing entry with the same
// component ID. Registering the same key again is a no-op that keeps
// the current verification state. Registering a different key (an
// explicit key replacement) resets the entry to pending. The status and
// last-verified fields of identity are ignored.
func (r *Registry) Register(ctx context.Context, identity component.Identity) error {
	if identity.ComponentID == "" {
		return errors.New("trust: component ID is required")
	}
	if !identity.Type.Valid() {
		return fmt.Errorf("trust: component %s has invalid type %q", identity.ComponentID, identity.Type)
	}
	if _, err := signature.ParsePublicKeyPEM(identity.PublicKeyPEM); err != nil {
		return fmt.Errorf("trust: component %s: %w", identity.ComponentID, err)
	}

	r.mu.Lock()
	existing, found := r.entries[identity.ComponentID]
	if !found {
		existing = &entry{}
		r.entries[identity.ComponentID] = existing
	}
	existing.mu.Lock()
	r.mu.Unlock()

	change := "created"
	switch {
	case !found:
		existing.identity = component.Identity{
			ComponentID:  identity.ComponentID,
			Type:         identity.Type,
			PublicKeyPEM: identity.PublicKeyPEM,
			Certificate:  append([]byte(nil), identity.Certificate...),
			Status:       component.Pending,
		}
	case existing.identity.PublicKeyPEM != identity.PublicKeyPEM || existing.identity.Type != identity.Type:
		change = "replaced"
		existing.identity.Type = identity.Type
		existing.identity.PublicKeyPEM = identity.PublicKeyPEM
		existing.identity.Certificate = append([]byte(nil), identity.Certificate...)
		existing.identity.Status = component.Pending
		existing.identity.LastVerifiedAt = nil
	default:
		change = "unchanged"
		if identity.Certificate != nil {
			existing.identity.Certificate = append([]byte(nil), identity.Certificate...)
		}
	}
	existing.mu.Unlock()

	r.emit(ctx, audit.Entry{
		Operation:   audit.OpRegister,
		ComponentID: identity.ComponentID,
		Outcome:     audit.Success,
		Detail: map[string]string{
			"component_type": string(identity.Type),
			"change":         change,
		},
	})
	return nil
}

// Authenticate verifies signature over payload with the registered key
// of componentID. Success marks the component verified as of now;
// every failure marks a known component failed. Unknown components
// return false without creating an entry.
func (r *Registry) Authenticate(ctx context.Context, componentID string, sig, payload []byte) bool {
	r.mu.RLock()
	found, ok := r.entries[componentID]
	r.mu.RUnlock()

	if !ok {
		r.logger.Warn("authentication of unregistered component", "component_id", componentID)
		r.emit(ctx, audit.Entry{
			Operation:   audit.OpAuthenticate,
			ComponentID: componentID,
			Outcome:     audit.Failure,
			Detail:      map[string]string{"reason": string(syncerr.UnknownComponent)},
		})
		return false
	}

	found.mu.Lock()
	verified := signature.Verify(r.logger.With("component_id", componentID), sig, payload, found.identity.PublicKeyPEM)
	if verified {
		now := r.clock.Now()
		found.identity.LastVerifiedAt = &now
		found.identity.Status = component.Verified
	} else {
		found.identity.Status = component.Failed
	}
	componentType := found.identity.Type
	found.mu.Unlock()

	entry := audit.Entry{
		Operation:   audit.OpAuthenticate,
		ComponentID: componentID,
		Outcome:     audit.Success,
		Detail:      map[string]string{"component_type": string(componentType)},
	}
	if !verified {
		entry.Outcome = audit.Failure
		entry.Detail["reason"] = string(syncerr.SignatureInvalid)
		r.logger.Warn("component authentication failed", "component_id", componentID)
	}
	r.emit(ctx, entry)
	return verified
}

// IsFresh reports whether identity's last successful verification is
// within the verification interval as of now. It looks only at
// LastVerifiedAt; use Trusted to also require verified status.
func (r *Registry) IsFresh(identity component.Identity) bool {
	if identity.LastVerifiedAt == nil {
		return false
	}
	return r.clock.Now().Sub(*identity.LastVerifiedAt) <= r.interval
}

// Get returns a snapshot of the entry for componentID.
func (r *Registry) Get(componentID string) (component.Identity, bool) {
	r.mu.RLock()
	found, ok := r.entries[componentID]
	r.mu.RUnlock()
	if !ok {
		return component.Identity{}, false
	}
	return found.snapshot(), true
}

// ResolveByType returns the component ID registered for componentType.
// Failed entries are skipped. More than one candidate is ambiguous and
// resolves to nothing.
func (r *Registry) ResolveByType(componentType component.Type) (string, error) {
	var candidates []string
	for _, identity := range r.List() {
		if identity.Type == componentType && identity.Status != component.Failed {
			candidates = append(candidates, identity.ComponentID)
		}
	}
	switch len(candidates) {
	case 0:
		return "", fmt.Errorf("%w: no component of type %s", ErrNotFound, componentType)
	case 1:
		return candidates[0], nil
	default:
		return "", fmt.Errorf("%w %s: %v", ErrAmbiguous, componentType, candidates)
	}
}

// Trusted resolves componentType and requires the result to be
// verified and fresh. Unknown and ambiguous types fail with
// UnknownComponent; pending, failed, or expired verification fails with
// StaleVerification. Callers treat both the same way: refuse.
func (r *Registry) Trusted(componentType component.Type) (component.Identity, error) {
	componentID, err := r.ResolveByType(componentType)
	if err != nil {
		return component.Identity{}, &syncerr.Error{
			Kind:          syncerr.UnknownComponent,
			Op:            "resolve",
			ComponentType: string(componentType),
			Err:           err,
		}
	}
	return r.TrustedID(componentID)
}

// TrustedID is Trusted for a known component ID.
func (r *Registry) TrustedID(componentID string) (component.Identity, error) {
	identity, ok := r.Get(componentID)
	if !ok {
		return component.Identity{}, &syncerr.Error{
			Kind:        syncerr.UnknownComponent,
			Op:          "resolve",
			ComponentID: componentID,
			Err:         ErrNotFound,
		}
	}
	if identity.Status != component.Verified || !r.IsFresh(identity) {
		return identity, &syncerr.Error{
			Kind:          syncerr.StaleVerification,
			Op:            "freshness",
			ComponentID:   componentID,
			ComponentType: string(identity.Type),
			Err:           fmt.Errorf("status %s, last verified %s", identity.Status, formatVerifiedAt(identity.LastVerifiedAt)),
		}
	}
	return identity, nil
}

// List returns snapshots of every entry ordered by component ID.
func (r *Registry) List() []component.Identity {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for _, found := range r.entries {
		entries = append(entries, found)
	}
	r.mu.RUnlock()

	identities := make([]component.Identity, 0, len(entries))
	for _, found := range entries {
		identities = append(identities, found.snapshot())
	}
	sort.Slice(identities, func(i, j int) bool {
		return identities[i].ComponentID < identities[j].ComponentID
	})
	return identities
}

func (r *Registry) emit(ctx context.Context, entry audit.Entry) {
	if r.audit == nil {
		return
	}
	if err := r.audit.Emit(ctx, entry); err != nil {
		r.logger.Error("registry audit failed", "operation", entry.Operation, "component_id", entry.ComponentID, "error", err)
	}
}

func (e *entry) snapshot() component.Identity {
	e.mu.Lock()
	defer e.mu.Unlock()
	identity := e.identity
	if identity.LastVerifiedAt != nil {
		verifiedAt := *identity.LastVerifiedAt
		identity.LastVerifiedAt = &verifiedAt
	}
	identity.Certificate = append([]byte(nil), identity.Certificate...)
	return identity
}

func formatVerifiedAt(verifiedAt *time.Time) string {
	if verifiedAt == nil {
		return "never"
	}
	return verifiedAt.UTC().Format(time.RFC3339)
}
