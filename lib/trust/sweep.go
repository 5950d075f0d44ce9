// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

package trust

import (
	"context"
	"time"

	"github.com/controlcoreio/policysync/lib/component"
)

// Sweep returns every verified identity whose verification has aged
// past the interval. It changes nothing: expired components are
// already refused by Trusted. The result tells an operator (or a
// re-authentication loop) which components need a new challenge.
func (r *Registry) Sweep() []component.Identity {
	var stale []component.Identity
	for _, identity := range r.List() {
		if identity.Status == component.Verified && !r.IsFresh(identity) {
			stale = append(stale, identity)
		}
	}
	return stale
}

// RunSweeper calls Sweep every interval until ctx is done, logging
// stale components and passing them to onStale when it is non-nil.
func (r *Registry) RunSweeper(ctx context.Context, every time.Duration, onStale func(context.Context, []component.Identity)) {
	if every <= 0 {
		every = r.interval / 2
	}
	ticker := r.clock.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stale := r.Sweep()
			if len(stale) == 0 {
				continue
			}
			for _, identity := range stale {
				r.logger.Info("component verification expired",
					"component_id", identity.ComponentID,
					"component_type", identity.Type,
					"last_verified_at", formatVerifiedAt(identity.LastVerifiedAt),
				)
			}
			if onStale != nil {
				onStale(ctx, stale)
			}
		}
	}
}
