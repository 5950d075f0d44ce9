// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
	"time"
)

type sampleRecord struct {
	Operation string            `cbor:"1,keyasint"`
	Detail    map[string]string `cbor:"2,keyasint,omitempty"`
	At        time.Time         `cbor:"3,keyasint"`
}

func TestMarshalIsDeterministic(t *testing.T) {
	at := time.Date(2026, 2, 3, 4, 5, 6, 789, time.UTC)
	first := sampleRecord{
		Operation: "create",
		Detail:    map[string]string{"z": "1", "a": "2", "m": "3"},
		At:        at,
	}
	second := sampleRecord{
		Operation: "create",
		Detail:    map[string]string{"m": "3", "a": "2", "z": "1"},
		At:        at,
	}

	firstBytes, err := Marshal(first)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	secondBytes, err := Marshal(second)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !bytes.Equal(firstBytes, secondBytes) {
		t.Error("same logical record encoded to different bytes")
	}

	var decoded sampleRecord
	if err := Unmarshal(firstBytes, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !decoded.At.Equal(at) {
		t.Errorf("At = %v, want %v (nanoseconds must survive)", decoded.At, at)
	}
	if decoded.Detail["a"] != "2" {
		t.Errorf("Detail = %v", decoded.Detail)
	}
}

func TestUnmarshalUntypedMap(t *testing.T) {
	data, err := Marshal(map[string]any{"outcome": "success"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if _, ok := decoded.(map[string]any); !ok {
		t.Errorf("decoded %T, want map[string]any", decoded)
	}
}
