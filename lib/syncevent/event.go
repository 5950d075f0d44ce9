// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

package syncevent

import (
	"time"

	"github.com/controlcoreio/policysync/lib/component"
	"github.com/controlcoreio/policysync/lib/syncerr"
	"github.com/controlcoreio/policysync/lib/wire"
)

// Status is the externally reported status of a sync event.
type Status string

const (
	Pending   Status = "pending"
	Completed Status = "completed"
	Failed    Status = "failed"
)

// State is the lifecycle position of a sync event.
type State string

const (
	StateCreated            State = "created"
	StateTargetVerification State = "target-verification"
	StateEncrypting         State = "encrypting"
	StateDispatching        State = "dispatching"
	StateCompleted          State = "completed"
	StateFailed             State = "failed"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Request asks the engine to distribute one payload.
type Request struct {
	// Source is the component type the event is sent as. It must be
	// the local node's type; empty means the local node's type.
	Source component.Type `json:"source_component,omitempty"`

	// Targets are the receiving component types. Duplicates are
	// removed, keeping the first occurrence. Required.
	Targets []component.Type `json:"target_components"`

	EventType wire.EventType `json:"event_type"`

	// Payload is any JSON-serializable value.
	Payload any `json:"payload"`
}

// SyncEvent is one distribution attempt.
type SyncEvent struct {
	EventID          string           `json:"event_id"`
	Timestamp        time.Time        `json:"timestamp"`
	SourceComponent  component.Type   `json:"source_component"`
	TargetComponents []component.Type `json:"target_components"`
	EventType        wire.EventType   `json:"event_type"`

	// PayloadHash is the hex SHA-256 of the canonical payload.
	PayloadHash string `json:"payload_hash"`

	// Signature is the hex RSA-PSS signature over the canonical
	// payload.
	Signature string `json:"signature"`

	SyncStatus Status `json:"sync_status"`
	State      State  `json:"state"`

	// Failure is set when the event failed before dispatch.
	Failure *syncerr.Failure `json:"failure,omitempty"`

	// Outcomes has one entry per target, in target order.
	Outcomes []TargetOutcome `json:"outcomes,omitempty"`

	// FinishedAt is when the terminal status was assigned.
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// TargetOutcome records what happened to one target.
type TargetOutcome struct {
	Target component.Type `json:"target"`

	// ComponentID is the registry entry the target resolved to, if
	// it resolved.
	ComponentID string `json:"component_id,omitempty"`

	// Verified is true if the target passed the verification gate.
	Verified bool `json:"verified"`

	// Delivered is true if the target acknowledged the delivery.
	Delivered bool `json:"delivered"`

	// StatusCode is the HTTP status of the target's reply.
	StatusCode int `json:"status_code,omitempty"`

	// LatencyMillis is the delivery round-trip time.
	LatencyMillis int64 `json:"latency_ms,omitempty"`

	Failure *syncerr.Failure `json:"failure,omitempty"`
}

func (e *SyncEvent) clone() SyncEvent {
	copied := *e
	copied.TargetComponents = append([]component.Type(nil), e.TargetComponents...)
	copied.Outcomes = append([]TargetOutcome(nil), e.Outcomes...)
	if e.Failure != nil {
		failure := *e.Failure
		copied.Failure = &failure
	}
	for index := range copied.Outcomes {
		if failure := copied.Outcomes[index].Failure; failure != nil {
			failureCopy := *failure
			copied.Outcomes[index].Failure = &failureCopy
		}
	}
	if e.FinishedAt != nil {
		finishedAt := *e.FinishedAt
		copied.FinishedAt = &finishedAt
	}
	return copied
}

// dedupeTargets removes repeated targets, keeping first occurrences.
func dedupeTargets(targets []component.Type) []component.Type {
	seen := make(map[component.Type]bool, len(targets))
	unique := make([]component.Type, 0, len(targets))
	for _, target := range targets {
		if seen[target] {
			continue
		}
		seen[target] = true
		unique = append(unique, target)
	}
	return unique
}
