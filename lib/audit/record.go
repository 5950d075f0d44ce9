// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"encoding/hex"
	"time"

	"github.com/zeebo/blake3"

	"github.com/controlcoreio/policysync/lib/codec"
)

// Operation names the audited action.
type Operation string

const (
	OpRegister           Operation = "register"
	OpAuthenticate       Operation = "authenticate"
	OpCreate             Operation = "create"
	OpTargetVerification Operation = "target-verification"
	OpEncrypt            Operation = "encrypt"
	OpDispatchResult     Operation = "dispatch-result"
	OpReceive            Operation = "receive"
	OpChallenge          Operation = "challenge"
)

// Outcome is whether the audited action succeeded.
type Outcome string

const (
	Success Outcome = "success"
	Failure Outcome = "failure"
)

// Entry is what a caller supplies to Trail.Emit.
type Entry struct {
	Operation   Operation
	ComponentID string
	EventID     string
	Outcome     Outcome

	// Detail carries operation-specific context: component types,
	// payload hashes, HTTP status codes, failure kinds. Never secrets
	// or payload content.
	Detail map[string]string
}

// Record is a stored audit entry.
type Record struct {
	Sequence    uint64            `json:"sequence"`
	Timestamp   time.Time         `json:"timestamp"`
	Operation   Operation         `json:"operation"`
	ComponentID string            `json:"component_id,omitempty"`
	EventID     string            `json:"event_id,omitempty"`
	Outcome     Outcome           `json:"outcome"`
	Detail      map[string]string `json:"detail,omitempty"`

	// ChainHash is the hex BLAKE3 digest linking this record to its
	// predecessor.
	ChainHash string `json:"chain_hash"`
}

// chainInput is the hashed form of a record: everything except the
// chain hash itself.
type chainInput struct {
	Sequence    uint64            `cbor:"1,keyasint"`
	Timestamp   int64             `cbor:"2,keyasint"`
	Operation   string            `cbor:"3,keyasint"`
	ComponentID string            `cbor:"4,keyasint,omitempty"`
	EventID     string            `cbor:"5,keyasint,omitempty"`
	Outcome     string            `cbor:"6,keyasint"`
	Detail      map[string]string `cbor:"7,keyasint,omitempty"`
}

// computeChainHash returns the chain hash of record given the previous
// record's chain hash (empty for the first record).
func computeChainHash(previous string, record Record) (string, error) {
	encoded, err := codec.Marshal(chainInput{
		Sequence:    record.Sequence,
		Timestamp:   record.Timestamp.UnixNano(),
		Operation:   string(record.Operation),
		ComponentID: record.ComponentID,
		EventID:     record.EventID,
		Outcome:     string(record.Outcome),
		Detail:      record.Detail,
	})
	if err != nil {
		return "", err
	}

	hasher := blake3.New()
	hasher.Write([]byte(previous))
	hasher.Write(encoded)
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// Filter returns the records with the given operation, in order.
func Filter(records []Record, operation Operation) []Record {
	var matched []Record
	for _, record := range records {
		if record.Operation == operation {
			matched = append(matched, record)
		}
	}
	return matched
}
