// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

package syncevent

import (
	"time"

	"github.com/controlcoreio/policysync/lib/wire"
)

// Events returns copies of the retained events in creation order.
func (e *Engine) Events() []SyncEvent {
	e.mu.RLock()
	defer e.mu.RUnlock()
	events := make([]SyncEvent, len(e.events))
	for index, event := range e.events {
		events[index] = event.clone()
	}
	return events
}

// Event returns a copy of the event with the given ID.
func (e *Engine) Event(eventID string) (SyncEvent, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	event, ok := e.byID[eventID]
	if !ok {
		return SyncEvent{}, false
	}
	return event.clone(), true
}

// Summary aggregates the retained events.
type Summary struct {
	Total       int                    `json:"total"`
	ByStatus    map[Status]int         `json:"by_status"`
	ByType      map[wire.EventType]int `json:"by_type"`
	LastEventAt *time.Time             `json:"last_event_at,omitempty"`
}

// Summary counts retained events by status and type.
func (e *Engine) Summary() Summary {
	e.mu.RLock()
	defer e.mu.RUnlock()

	summary := Summary{
		Total:    len(e.events),
		ByStatus: map[Status]int{Pending: 0, Completed: 0, Failed: 0},
		ByType:   make(map[wire.EventType]int),
	}
	for _, event := range e.events {
		summary.ByStatus[event.SyncStatus]++
		summary.ByType[event.EventType]++
		if summary.LastEventAt == nil || event.Timestamp.After(*summary.LastEventAt) {
			timestamp := event.Timestamp
			summary.LastEventAt = &timestamp
		}
	}
	return summary
}
