// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/controlcoreio/policysync/lib/clock"
)

// Sink persists records. Several trails, possibly in different
// processes, may share one sink, so the sink owns the chain head.
// Implementations must not reorder, update, or drop records.
type Sink interface {
	// Append reads the most recent record (nil if the sink is empty),
	// passes it to seal, and stores the record seal returns. The read
	// and the store are atomic with respect to every other Append on
	// the same underlying storage. If seal returns an error nothing
	// is stored.
	Append(ctx context.Context, seal func(last *Record) (Record, error)) (Record, error)

	// Records returns every stored record in sequence order.
	Records(ctx context.Context) ([]Record, error)
}

// Config configures a Trail.
type Config struct {
	// Sink stores records. Required.
	Sink Sink

	// Clock timestamps records. Defaults to clock.Real().
	Clock clock.Clock

	// Logger receives a line for every emitted record and for sink
	// failures. If nil, logging is discarded.
	Logger *slog.Logger
}

// Trail builds records from entries and appends them to its sink,
// which assigns each record the next sequence number and links it to
// the chain. Emit is safe for concurrent use.
type Trail struct {
	sink   Sink
	clock  clock.Clock
	logger *slog.Logger
}

// New creates a Trail over cfg.Sink. The chain continues from whatever
// the sink already holds.
func New(ctx context.Context, cfg Config) (*Trail, error) {
	if cfg.Sink == nil {
		return nil, errors.New("audit: Sink is required")
	}
	timeSource := cfg.Clock
	if timeSource == nil {
		timeSource = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Trail{sink: cfg.Sink, clock: timeSource, logger: logger}, nil
}

// Emit appends a record for entry. A sink failure is logged and
// returned; nothing is stored, so the chain stays intact.
func (t *Trail) Emit(ctx context.Context, entry Entry) error {
	if entry.Operation == "" {
		return errors.New("audit: entry has no operation")
	}
	if entry.Outcome == "" {
		entry.Outcome = Success
	}

	draft := Record{
		Timestamp:   t.clock.Now().UTC(),
		Operation:   entry.Operation,
		ComponentID: entry.ComponentID,
		EventID:     entry.EventID,
		Outcome:     entry.Outcome,
		Detail:      copyDetail(entry.Detail),
	}

	record, err := t.sink.Append(ctx, func(last *Record) (Record, error) {
		return Seal(last, draft)
	})
	if err != nil {
		t.logger.Error("audit record not stored",
			"operation", draft.Operation,
			"component_id", draft.ComponentID,
			"event_id", draft.EventID,
			"error", err,
		)
		return fmt.Errorf("audit: appending record: %w", err)
	}

	t.logger.Info("audit",
		"sequence", record.Sequence,
		"operation", record.Operation,
		"outcome", record.Outcome,
		"component_id", record.ComponentID,
		"event_id", record.EventID,
	)
	return nil
}

// Seal returns record with the sequence and chain hash that follow
// last (nil for the first record).
func Seal(last *Record, record Record) (Record, error) {
	previous := ""
	record.Sequence = 1
	if last != nil {
		previous = last.ChainHash
		record.Sequence = last.Sequence + 1
	}
	chainHash, err := computeChainHash(previous, record)
	if err != nil {
		return Record{}, fmt.Errorf("audit: hashing record: %w", err)
	}
	record.ChainHash = chainHash
	return record, nil
}

// Records returns every record in the sink.
func (t *Trail) Records(ctx context.Context) ([]Record, error) {
	return t.sink.Records(ctx)
}

// VerifyChain recomputes the chain over records and returns an error
// identifying the first record whose sequence or hash does not match.
// records must start at sequence 1.
func VerifyChain(records []Record) error {
	previous := ""
	for index, record := range records {
		if want := uint64(index + 1); record.Sequence != want {
			return fmt.Errorf("audit: record %d has sequence %d, want %d", index, record.Sequence, want)
		}
		expected, err := computeChainHash(previous, record)
		if err != nil {
			return fmt.Errorf("audit: hashing record %d: %w", record.Sequence, err)
		}
		if expected != record.ChainHash {
			return fmt.Errorf("audit: chain broken at sequence %d", record.Sequence)
		}
		previous = record.ChainHash
	}
	return nil
}

func copyDetail(detail map[string]string) map[string]string {
	if len(detail) == 0 {
		return nil
	}
	copied := make(map[string]string, len(detail))
	for key, value := range detail {
		copied[key] = value
	}
	return copied
}
