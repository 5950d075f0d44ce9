// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Applied describes an update a receiver has applied.
type Applied struct {
	EventID     string
	EventType   string
	PayloadHash string
	Source      string
	AppliedAt   time.Time
}

const appliedColumns = `e.event_id, e.event_type, e.payload_hash, e.source, e.applied_at_ns`

// LookupApplied reports whether an update is already in effect. It
// returns the ledger entry for eventID if that event was applied, or
// else the current head for eventType if the head carries payloadHash.
// Otherwise it returns nil: a payload that was applied earlier but
// has since been superseded for its event type is not in effect.
func (s *Store) LookupApplied(ctx context.Context, eventType, eventID, payloadHash string) (*Applied, error) {
	var found *Applied
	err := s.pool.Read(ctx, func(conn *sqlite.Conn) error {
		entries, err := selectApplied(conn, `
			SELECT `+appliedColumns+` FROM applied_events e WHERE e.event_id = ?`, eventID)
		if err != nil {
			return err
		}
		if len(entries) > 0 {
			found = &entries[0]
			return nil
		}
		head, err := selectHead(conn, eventType)
		if err != nil {
			return err
		}
		if head != nil && head.PayloadHash == payloadHash {
			found = head
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: looking up %s event %s: %w", eventType, eventID, err)
	}
	return found, nil
}

// Head returns the most recently applied update for eventType, or nil.
func (s *Store) Head(ctx context.Context, eventType string) (*Applied, error) {
	var head *Applied
	err := s.pool.Read(ctx, func(conn *sqlite.Conn) error {
		var err error
		head, err = selectHead(conn, eventType)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("store: reading %s head: %w", eventType, err)
	}
	return head, nil
}

// RecordApplied adds entry to the ledger and makes it the head for its
// event type. It returns false without error if the event ID was
// already recorded; the first entry is kept and the head is unchanged.
func (s *Store) RecordApplied(ctx context.Context, entry Applied) (bool, error) {
	var inserted bool
	err := s.pool.Write(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, `
			INSERT INTO applied_events (event_id, event_type, payload_hash, source, applied_at_ns)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (event_id) DO NOTHING`,
			&sqlitex.ExecOptions{
				Args: []any{entry.EventID, entry.EventType, entry.PayloadHash, entry.Source, entry.AppliedAt.UnixNano()},
			})
		if err != nil {
			return err
		}
		if conn.Changes() == 0 {
			return nil
		}
		inserted = true
		return sqlitex.Execute(conn, `
			INSERT INTO applied_heads (event_type, event_id) VALUES (?, ?)
			ON CONFLICT (event_type) DO UPDATE SET event_id = excluded.event_id`,
			&sqlitex.ExecOptions{Args: []any{entry.EventType, entry.EventID}})
	})
	if err != nil {
		return false, fmt.Errorf("store: recording event %s: %w", entry.EventID, err)
	}
	return inserted, nil
}

func selectHead(conn *sqlite.Conn, eventType string) (*Applied, error) {
	entries, err := selectApplied(conn, `
		SELECT `+appliedColumns+`
		FROM applied_heads h JOIN applied_events e ON e.event_id = h.event_id
		WHERE h.event_type = ?`, eventType)
	if err != nil || len(entries) == 0 {
		return nil, err
	}
	return &entries[0], nil
}

func selectApplied(conn *sqlite.Conn, query string, args ...any) ([]Applied, error) {
	var entries []Applied
	err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			entries = append(entries, Applied{
				EventID:     stmt.ColumnText(0),
				EventType:   stmt.ColumnText(1),
				PayloadHash: stmt.ColumnText(2),
				Source:      stmt.ColumnText(3),
				AppliedAt:   time.Unix(0, stmt.ColumnInt64(4)).UTC(),
			})
			return nil
		},
	})
	return entries, err
}
