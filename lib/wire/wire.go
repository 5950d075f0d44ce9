// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"fmt"
	"time"
)

// Paths served by a receiving node.
const (
	SyncPath      = "/sync"
	ChallengePath = "/challenge"
)

// Headers carried by a sync delivery.
const (
	HeaderEventID   = "X-Sync-Event-ID"
	HeaderSignature = "X-Sync-Signature"
	HeaderHash      = "X-Sync-Hash"
)

// EventType classifies what a sync event carries. The set is closed.
type EventType string

const (
	PolicyUpdate        EventType = "policy-update"
	ContextUpdate       EventType = "context-update"
	ConfigurationUpdate EventType = "configuration-update"
	SecurityUpdate      EventType = "security-update"
	DataSourceUpdate    EventType = "data-source-update"
)

// EventTypes lists every valid event type in declaration order.
var EventTypes = []EventType{PolicyUpdate, ContextUpdate, ConfigurationUpdate, SecurityUpdate, DataSourceUpdate}

// Valid reports whether t is a declared event type.
func (t EventType) Valid() bool {
	switch t {
	case PolicyUpdate, ContextUpdate, ConfigurationUpdate, SecurityUpdate, DataSourceUpdate:
		return true
	}
	return false
}

// UnmarshalText rejects undeclared event types during decoding.
func (t *EventType) UnmarshalText(text []byte) error {
	parsed := EventType(text)
	if !parsed.Valid() {
		return fmt.Errorf("wire: unknown event type %q", text)
	}
	*t = parsed
	return nil
}

// Envelope is the JSON body of a sync delivery.
type Envelope struct {
	EventID          string    `json:"event_id"`
	EventType        EventType `json:"event_type"`
	SourceComponent  string    `json:"source_component"`
	Timestamp        time.Time `json:"timestamp"`
	EncryptedPayload string    `json:"encrypted_payload"`
}

// SyncStatus is the receiver's acknowledgement of a delivery.
type SyncStatus string

const (
	// Applied means the payload was handed to the policy sink.
	Applied SyncStatus = "applied"

	// Duplicate means a payload with the same hash was applied
	// before; nothing was applied this time.
	Duplicate SyncStatus = "duplicate"
)

// SyncResponse is the body of a 200 reply to a delivery.
type SyncResponse struct {
	Status      SyncStatus `json:"status"`
	EventID     string     `json:"event_id"`
	PayloadHash string     `json:"payload_hash"`
}

// ChallengeRequest asks a node to prove possession of its private key.
type ChallengeRequest struct {
	// Nonce is hex-encoded random bytes chosen by the challenger.
	Nonce string `json:"nonce"`
}

// ChallengeDomain prefixes every challenge message so that a challenge
// signature never verifies as a signature over a sync payload.
const ChallengeDomain = "policysync.challenge.v1\x00"

// ChallengeMessage returns the bytes a node signs to answer nonce.
func ChallengeMessage(nonce []byte) []byte {
	message := make([]byte, 0, len(ChallengeDomain)+len(nonce))
	message = append(message, ChallengeDomain...)
	return append(message, nonce...)
}

// ChallengeResponse carries the node's signature over
// ChallengeMessage(nonce).
type ChallengeResponse struct {
	ComponentID string `json:"component_id"`

	// Signature is the hex RSA-PSS signature.
	Signature string `json:"signature"`
}
