// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"sync"
	"time"
)

// ReplayCache remembers the IDs of tokens a receiver has accepted so
// that a captured token cannot be presented twice. Entries are kept
// until the token's own expiry, after which VerifyToken rejects the
// token anyway and the entry is dropped by Cleanup.
type ReplayCache struct {
	mu      sync.Mutex
	entries map[string]time.Time // token ID -> token expiry
}

// NewReplayCache returns an empty cache.
func NewReplayCache() *ReplayCache {
	return &ReplayCache{entries: make(map[string]time.Time)}
}

// Accept records tokenID and reports whether it was unseen. A false
// result means the token is a replay.
func (c *ReplayCache) Accept(tokenID string, expiresAt time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, seen := c.entries[tokenID]; seen {
		return false
	}
	c.entries[tokenID] = expiresAt
	return true
}

// Cleanup drops entries whose token expired (including clock skew
// tolerance) before now. Returns the number removed.
func (c *ReplayCache) Cleanup(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for tokenID, expiresAt := range c.entries {
		if now.After(expiresAt.Add(ClockSkew)) {
			delete(c.entries, tokenID)
			removed++
		}
	}
	return removed
}

// Len returns the number of remembered token IDs.
func (c *ReplayCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
