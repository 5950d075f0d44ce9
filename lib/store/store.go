// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/controlcoreio/policysync/lib/audit"
	"github.com/controlcoreio/policysync/lib/codec"
	"github.com/controlcoreio/policysync/lib/sqlitepool"
)

var migrations = []string{
	`
	CREATE TABLE audit_records (
		sequence     INTEGER PRIMARY KEY,
		timestamp_ns INTEGER NOT NULL,
		operation    TEXT NOT NULL,
		component_id TEXT NOT NULL DEFAULT '',
		event_id     TEXT NOT NULL DEFAULT '',
		outcome      TEXT NOT NULL,
		detail       BLOB,
		chain_hash   TEXT NOT NULL
	);
	CREATE INDEX audit_records_event ON audit_records (event_id) WHERE event_id != '';

	CREATE TABLE applied_events (
		event_id      TEXT PRIMARY KEY,
		event_type    TEXT NOT NULL,
		payload_hash  TEXT NOT NULL,
		source        TEXT NOT NULL,
		applied_at_ns INTEGER NOT NULL
	);

	CREATE TABLE applied_heads (
		event_type TEXT PRIMARY KEY,
		event_id   TEXT NOT NULL REFERENCES applied_events (event_id)
	);
	`,
}

// Config holds the parameters for opening a Store.
type Config struct {
	// Path is the SQLite database file. The parent directory must
	// exist. Required.
	Path string

	// PoolSize is passed to sqlitepool.
	PoolSize int

	// Logger receives pool lifecycle messages.
	Logger *slog.Logger
}

// Store is the SQLite-backed audit sink and applied-update ledger.
type Store struct {
	pool *sqlitepool.Pool
}

// Open opens or creates the database at cfg.Path.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	pool, err := sqlitepool.Open(ctx, sqlitepool.Config{
		Path:       cfg.Path,
		PoolSize:   cfg.PoolSize,
		Migrations: migrations,
		Logger:     cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.pool.Close()
}

var _ audit.Sink = (*Store)(nil)

// Append reads the highest stored record, seals the next one with
// seal, and inserts it, all inside one immediate transaction. Writers
// in other processes sharing the database are serialized by SQLite, so
// each sees the head the previous writer left.
func (s *Store) Append(ctx context.Context, seal func(last *audit.Record) (audit.Record, error)) (audit.Record, error) {
	var stored audit.Record
	err := s.pool.Write(ctx, func(conn *sqlite.Conn) error {
		records, err := selectRecords(conn, lastRecordQuery)
		if err != nil {
			return err
		}
		var last *audit.Record
		if len(records) > 0 {
			last = &records[0]
		}
		record, err := seal(last)
		if err != nil {
			return err
		}

		var detail []byte
		if len(record.Detail) > 0 {
			detail, err = codec.Marshal(record.Detail)
			if err != nil {
				return fmt.Errorf("encoding audit detail: %w", err)
			}
		}
		err = sqlitex.Execute(conn, `
			INSERT INTO audit_records
				(sequence, timestamp_ns, operation, component_id, event_id, outcome, detail, chain_hash)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			&sqlitex.ExecOptions{
				Args: []any{
					int64(record.Sequence),
					record.Timestamp.UnixNano(),
					string(record.Operation),
					record.ComponentID,
					record.EventID,
					string(record.Outcome),
					detail,
					record.ChainHash,
				},
			})
		if err != nil {
			return fmt.Errorf("inserting record %d: %w", record.Sequence, err)
		}
		stored = record
		return nil
	})
	if err != nil {
		return audit.Record{}, fmt.Errorf("store: appending audit record: %w", err)
	}
	return stored, nil
}

const recordColumns = `sequence, timestamp_ns, operation, component_id, event_id, outcome, detail, chain_hash`

const lastRecordQuery = `SELECT ` + recordColumns + ` FROM audit_records ORDER BY sequence DESC LIMIT 1`

// Last returns the record with the highest sequence, or nil.
func (s *Store) Last(ctx context.Context) (*audit.Record, error) {
	records, err := s.queryRecords(ctx, lastRecordQuery)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

// Records returns every audit record in sequence order.
func (s *Store) Records(ctx context.Context) ([]audit.Record, error) {
	return s.queryRecords(ctx, `SELECT `+recordColumns+` FROM audit_records ORDER BY sequence`)
}

// EventRecords returns the audit records for one sync event in
// sequence order.
func (s *Store) EventRecords(ctx context.Context, eventID string) ([]audit.Record, error) {
	return s.queryRecords(ctx, `SELECT `+recordColumns+` FROM audit_records WHERE event_id = ? ORDER BY sequence`, eventID)
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]audit.Record, error) {
	var records []audit.Record
	err := s.pool.Read(ctx, func(conn *sqlite.Conn) error {
		var err error
		records, err = selectRecords(conn, query, args...)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("store: reading audit records: %w", err)
	}
	return records, nil
}

func selectRecords(conn *sqlite.Conn, query string, args ...any) ([]audit.Record, error) {
	var records []audit.Record
	err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			record := audit.Record{
				Sequence:    uint64(stmt.ColumnInt64(0)),
				Timestamp:   time.Unix(0, stmt.ColumnInt64(1)).UTC(),
				Operation:   audit.Operation(stmt.ColumnText(2)),
				ComponentID: stmt.ColumnText(3),
				EventID:     stmt.ColumnText(4),
				Outcome:     audit.Outcome(stmt.ColumnText(5)),
				ChainHash:   stmt.ColumnText(7),
			}
			if size := stmt.ColumnLen(6); size > 0 {
				blob := make([]byte, size)
				stmt.ColumnBytes(6, blob)
				if err := codec.Unmarshal(blob, &record.Detail); err != nil {
					return fmt.Errorf("decoding detail of record %d: %w", record.Sequence, err)
				}
			}
			records = append(records, record)
			return nil
		},
	})
	return records, err
}
