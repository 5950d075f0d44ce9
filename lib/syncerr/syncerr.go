// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

package syncerr

import (
	"errors"
	"fmt"
)

// Kind is the classification of a protocol failure.
type Kind string

const (
	// UnknownComponent: the component is not in the trust registry
	// (or its type resolves to more than one identity).
	UnknownComponent Kind = "unknown-component"

	// StaleVerification: the component is registered but its last
	// successful authentication is older than the verification
	// interval, or it has never authenticated.
	StaleVerification Kind = "stale-verification"

	// SignatureInvalid: cryptographic verification failed.
	SignatureInvalid Kind = "signature-invalid"

	// EncryptionFailure: key derivation or cipher error.
	EncryptionFailure Kind = "encryption-failure"

	// TransportFailure: network error, timeout, or non-2xx response
	// for one target.
	TransportFailure Kind = "transport-failure"

	// IntegrityMismatch: the decrypted payload does not match the
	// declared hash, or the ciphertext failed authentication.
	IntegrityMismatch Kind = "integrity-mismatch"
)

// Retryable reports whether a caller may retry the operation by
// creating a new sync event. Only transport failures qualify: a
// signature or integrity failure with the same bytes fails the same
// way every time.
func (k Kind) Retryable() bool {
	return k == TransportFailure
}

// Error is a classified protocol failure.
type Error struct {
	Kind Kind

	// Op names the operation that failed ("target-verification",
	// "encrypt", "dispatch", "receive").
	Op string

	// ComponentID or ComponentType identify the component involved,
	// when there is one.
	ComponentID   string
	ComponentType string

	// Err is the underlying cause. May be nil.
	Err error
}

func (e *Error) Error() string {
	subject := e.ComponentID
	if subject == "" {
		subject = e.ComponentType
	}

	message := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if subject != "" {
		message += " (" + subject + ")"
	}
	if e.Err != nil {
		message += ": " + e.Err.Error()
	}
	return message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error with the same Kind, so that
// errors.Is(err, &syncerr.Error{Kind: syncerr.StaleVerification})
// works regardless of the other fields.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return other.Kind == e.Kind && other.Op == "" && other.Err == nil
}

// New returns an *Error of the given kind.
func New(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if
// there is none.
func KindOf(err error) Kind {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return ""
}

// Failure is the serializable form of an *Error, recorded on sync
// events and per-target outcomes.
type Failure struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// FailureOf converts err to a Failure. Errors without a classification
// keep an empty Kind.
func FailureOf(err error) *Failure {
	if err == nil {
		return nil
	}
	return &Failure{Kind: KindOf(err), Message: err.Error()}
}
