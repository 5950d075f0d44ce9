// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"strconv"
	"sync/atomic"
)

var sequence atomic.Uint64

// UniqueID returns prefix followed by a number no other call in this
// test binary has returned: "event-1", "event-2", and so on. Use it
// for event and component IDs that must not collide across subtests.
func UniqueID(prefix string) string {
	return prefix + "-" + strconv.FormatUint(sequence.Add(1), 10)
}
