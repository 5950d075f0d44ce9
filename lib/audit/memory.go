// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"context"
	"sync"
)

// MemorySink keeps records in process memory.
type MemorySink struct {
	mu      sync.RWMutex
	records []Record
}

// NewMemorySink returns an empty sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Append(_ context.Context, seal func(last *Record) (Record, error)) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var last *Record
	if len(s.records) > 0 {
		last = &s.records[len(s.records)-1]
	}
	record, err := seal(last)
	if err != nil {
		return Record{}, err
	}
	s.records = append(s.records, record)
	return record, nil
}

func (s *MemorySink) Records(context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Record(nil), s.records...), nil
}
