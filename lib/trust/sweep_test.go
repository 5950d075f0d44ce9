// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

package trust

import (
	"context"
	"testing"
	"time"

	"github.com/controlcoreio/policysync/lib/component"
	"github.com/controlcoreio/policysync/lib/testutil"
)

func TestSweepReportsExpiredOnly(t *testing.T) {
	f := newFixture(t)
	fresh, expired := testutil.RSAKey(t, 0), testutil.RSAKey(t, 1)
	f.register(t, "admin-1", component.AdminAPI, expired)
	f.register(t, "proxy-1", component.EnforcementProxy, fresh)
	f.register(t, "tenant-1", component.TenantAdmin, testutil.RSAKey(t, 2))

	f.authenticate(t, "admin-1", expired)
	f.clock.Advance(DefaultVerificationInterval)
	f.authenticate(t, "proxy-1", fresh)
	f.clock.Advance(time.Second)

	stale := f.registry.Sweep()
	if len(stale) != 1 || stale[0].ComponentID != "admin-1" {
		t.Fatalf("Sweep = %+v, want only admin-1", stale)
	}
	if identity, _ := f.registry.Get("admin-1"); identity.Status != component.Verified {
		t.Errorf("Sweep changed admin-1 status to %s", identity.Status)
	}
}

func TestRunSweeperCallsOnStale(t *testing.T) {
	f := newFixture(t)
	key := testutil.RSAKey(t, 0)
	f.register(t, "proxy-1", component.EnforcementProxy, key)
	f.authenticate(t, "proxy-1", key)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reports := make(chan []component.Identity, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.registry.RunSweeper(ctx, time.Minute, func(_ context.Context, stale []component.Identity) {
			reports <- stale
		})
	}()

	f.clock.WaitForWaiters(1)
	f.clock.Advance(DefaultVerificationInterval + time.Minute)

	stale := testutil.RequireReceive(t, reports, 5*time.Second, "waiting for sweep report")
	if len(stale) != 1 || stale[0].ComponentID != "proxy-1" {
		t.Errorf("stale = %+v, want proxy-1", stale)
	}

	cancel()
	testutil.RequireClosed(t, done, 5*time.Second, "sweeper exit")
}
