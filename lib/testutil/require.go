// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"time"
)

// TB is the part of testing.TB the helpers use.
type TB interface {
	Helper()
	Fatalf(format string, args ...any)
}

// RequireReceive returns the next value from ch. The test fails if ch
// is closed first or nothing arrives within timeout. what describes
// the wait for the failure message and may be a format string.
//
//	outcome := testutil.RequireReceive(t, outcomes, 5*time.Second, "delivery to %s", target)
func RequireReceive[T any](t TB, ch <-chan T, timeout time.Duration, what string, args ...any) T {
	t.Helper()
	timer := time.NewTimer(timeout) //nolint:realclock bounds a hung test
	defer timer.Stop()
	select {
	case value, ok := <-ch:
		if !ok {
			t.Fatalf("%s: channel closed before a value arrived", describe(what, args))
		}
		return value
	case <-timer.C:
		t.Fatalf("%s: nothing received within %v", describe(what, args), timeout)
	}
	var zero T
	return zero
}

// RequireClosed waits for ch to close (or deliver a value) within
// timeout. Use it for done and readiness channels.
func RequireClosed(t TB, ch <-chan struct{}, timeout time.Duration, what string, args ...any) {
	t.Helper()
	timer := time.NewTimer(timeout) //nolint:realclock bounds a hung test
	defer timer.Stop()
	select {
	case <-ch:
	case <-timer.C:
		t.Fatalf("%s: not closed within %v", describe(what, args), timeout)
	}
}

func describe(what string, args []any) string {
	if len(args) == 0 {
		return what
	}
	return fmt.Sprintf(what, args...)
}
