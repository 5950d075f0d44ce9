// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestEnvelopeRejectsUnknownEventType(t *testing.T) {
	var envelope Envelope
	err := json.Unmarshal([]byte(`{"event_id":"e1","event_type":"schema-update"}`), &envelope)
	if err == nil {
		t.Fatal("Unmarshal accepted an undeclared event type")
	}

	if err := json.Unmarshal([]byte(`{"event_id":"e1","event_type":"security-update"}`), &envelope); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if envelope.EventType != SecurityUpdate {
		t.Errorf("EventType = %q", envelope.EventType)
	}
}

func TestEventTypesAreValid(t *testing.T) {
	for _, eventType := range EventTypes {
		if !eventType.Valid() {
			t.Errorf("%q listed but not valid", eventType)
		}
	}
	if EventType("").Valid() {
		t.Error("empty event type is valid")
	}
}

func TestChallengeMessageIsNotJSON(t *testing.T) {
	nonce := []byte(`{"rule":"allow-all"}`)
	message := ChallengeMessage(nonce)
	if !bytes.HasPrefix(message, []byte(ChallengeDomain)) || !bytes.HasSuffix(message, nonce) {
		t.Errorf("ChallengeMessage = %q", message)
	}
	if json.Valid(message) {
		t.Error("a challenge message parses as JSON")
	}
}
