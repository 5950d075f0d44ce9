// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

package syncerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("gate: %w", &Error{
		Kind:          StaleVerification,
		Op:            "target-verification",
		ComponentType: "admin-api",
	})

	if !errors.Is(err, &Error{Kind: StaleVerification}) {
		t.Error("errors.Is did not match on Kind")
	}
	if errors.Is(err, &Error{Kind: UnknownComponent}) {
		t.Error("errors.Is matched a different Kind")
	}
	if got := KindOf(err); got != StaleVerification {
		t.Errorf("KindOf = %q, want %q", got, StaleVerification)
	}
	if got := KindOf(errors.New("plain")); got != "" {
		t.Errorf("KindOf(plain) = %q, want empty", got)
	}
}

func TestErrorMessage(t *testing.T) {
	cause := errors.New("connection refused")
	err := &Error{Kind: TransportFailure, Op: "dispatch", ComponentID: "pep-1", Err: cause}

	want := "dispatch: transport-failure (pep-1): connection refused"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, cause) {
		t.Error("Unwrap did not expose the cause")
	}
}

func TestRetryable(t *testing.T) {
	for _, kind := range []Kind{UnknownComponent, StaleVerification, SignatureInvalid, EncryptionFailure, IntegrityMismatch} {
		if kind.Retryable() {
			t.Errorf("%s.Retryable() = true", kind)
		}
	}
	if !TransportFailure.Retryable() {
		t.Error("TransportFailure.Retryable() = false")
	}
}

func TestFailureOf(t *testing.T) {
	if FailureOf(nil) != nil {
		t.Error("FailureOf(nil) != nil")
	}
	failure := FailureOf(New(EncryptionFailure, "encrypt", errors.New("empty secret")))
	if failure.Kind != EncryptionFailure {
		t.Errorf("Kind = %q", failure.Kind)
	}
	if failure.Message != "encrypt: encryption-failure: empty secret" {
		t.Errorf("Message = %q", failure.Message)
	}
}
