// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

package policydir

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/controlcoreio/policysync/lib/component"
	"github.com/controlcoreio/policysync/lib/receiver"
	"github.com/controlcoreio/policysync/lib/wire"
)

// Document is the on-disk form of one applied update.
type Document struct {
	EventID     string         `json:"event_id"`
	EventType   wire.EventType `json:"event_type"`
	Source      component.Type `json:"source_component"`
	SourceID    string         `json:"source_id"`
	Timestamp   time.Time      `json:"timestamp"`
	PayloadHash string         `json:"payload_hash"`

	// Payload is the canonical JSON the sender signed, embedded
	// verbatim.
	Payload json.RawMessage `json:"payload"`
}

// Dir is a receiver.Sink writing one document per event type.
type Dir struct {
	path   string
	logger *slog.Logger
}

// Open creates path (mode 0700) if needed and returns a Dir over it.
func Open(path string, logger *slog.Logger) (*Dir, error) {
	if path == "" {
		return nil, fmt.Errorf("policydir: path is required")
	}
	if err := os.MkdirAll(path, 0o700); err != nil {
		return nil, fmt.Errorf("policydir: creating %s: %w", path, err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Dir{path: path, logger: logger}, nil
}

// Path returns the directory holding the documents.
func (d *Dir) Path() string { return d.path }

// DocumentPath returns the file that holds the latest update of
// eventType.
func (d *Dir) DocumentPath(eventType wire.EventType) string {
	return filepath.Join(d.path, string(eventType)+".json")
}

// Apply replaces the document for update.EventType.
func (d *Dir) Apply(_ context.Context, update receiver.Update) error {
	if !update.EventType.Valid() {
		return fmt.Errorf("policydir: invalid event type %q", update.EventType)
	}
	if !json.Valid(update.Payload) {
		return fmt.Errorf("policydir: payload for event %s is not JSON", update.EventID)
	}
	document := Document{
		EventID:     update.EventID,
		EventType:   update.EventType,
		Source:      update.Source,
		SourceID:    update.SourceID,
		Timestamp:   update.Timestamp.UTC(),
		PayloadHash: update.PayloadHash,
		Payload:     json.RawMessage(update.Payload),
	}
	if err := write(d.DocumentPath(update.EventType), document); err != nil {
		return err
	}
	d.logger.Info("update written",
		"event_id", update.EventID,
		"event_type", update.EventType,
		"payload_hash", update.PayloadHash,
	)
	return nil
}

// Read returns the latest document for eventType. When none has been
// applied the error wraps os.ErrNotExist.
func (d *Dir) Read(eventType wire.EventType) (Document, error) {
	path := d.DocumentPath(eventType)
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, err
	}
	var document Document
	if err := json.Unmarshal(data, &document); err != nil {
		return Document{}, fmt.Errorf("policydir: parsing %s: %w", path, err)
	}
	return document, nil
}

func write(path string, document Document) error {
	data, err := json.Marshal(document)
	if err != nil {
		return fmt.Errorf("policydir: marshaling document: %w", err)
	}
	data = append(data, '\n')

	temporaryPath := path + ".tmp"
	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("policydir: creating temporary file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("policydir: writing temporary file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("policydir: syncing temporary file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("policydir: closing temporary file: %w", err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("policydir: renaming into place: %w", err)
	}

	// The rename is only durable once the directory entry is flushed.
	if parent, err := os.Open(filepath.Dir(path)); err == nil {
		parent.Sync()
		parent.Close()
	}
	return nil
}
