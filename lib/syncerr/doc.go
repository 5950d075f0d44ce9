// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

// Package syncerr classifies the failures the policy sync protocol
// distinguishes. Each failure carries a Kind that determines how it
// propagates: verification and encryption failures abort a sync event
// before any network egress, transport failures are scoped to one
// target, and integrity mismatches are rejected by receivers without
// partial application.
//
// Expected protocol failures are recorded as data on sync events and
// audit records. An *Error is still a Go error so that it composes with
// errors.Is and errors.As where a package does return it.
package syncerr
