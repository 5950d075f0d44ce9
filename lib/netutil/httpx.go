// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides bounded HTTP body I/O for the sync protocol.
//
// Every body that crosses the network is read through a size limit.
// Response helpers (ReadResponse, DecodeResponse, ErrorBody) are used
// by the dispatcher on replies from receivers. Request helpers
// (DecodeRequest, WriteJSON, WriteError) are used by the receiver and
// the coordinator's admin listener.
package netutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// MaxResponseSize bounds reads of a receiver's reply. Replies are small
// JSON acknowledgements.
const MaxResponseSize int64 = 1 << 20

// MaxRequestSize bounds inbound request bodies: a sync envelope
// carrying an encrypted policy bundle.
const MaxRequestSize int64 = 16 << 20

// maxErrorBody bounds how much of an error reply is quoted in a
// diagnostic message.
const maxErrorBody = 512

// ErrRequestTooLarge is returned by DecodeRequest when the body exceeds
// MaxRequestSize.
var ErrRequestTooLarge = errors.New("netutil: request body too large")

// ReadResponse reads a response body up to MaxResponseSize bytes.
func ReadResponse(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, MaxResponseSize))
}

// DecodeResponse reads a response body (up to MaxResponseSize bytes)
// and JSON-decodes it into v.
func DecodeResponse(body io.Reader, v any) error {
	data, err := ReadResponse(body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	return json.Unmarshal(data, v)
}

// ErrorBody returns the start of an error reply for a diagnostic
// message. Read errors are ignored; a partial body is still useful.
func ErrorBody(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, maxErrorBody))
	return strings.TrimSpace(string(data))
}

// DecodeRequest JSON-decodes the request body into v. Unknown fields
// and trailing data are rejected.
func DecodeRequest(writer http.ResponseWriter, request *http.Request, v any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(writer, request.Body, MaxRequestSize))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return ErrRequestTooLarge
		}
		return fmt.Errorf("decoding request body: %w", err)
	}
	if decoder.More() {
		return errors.New("decoding request body: trailing data after JSON value")
	}
	return nil
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(writer http.ResponseWriter, status int, v any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	json.NewEncoder(writer).Encode(v)
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// WriteError writes an ErrorResponse with the given status.
func WriteError(writer http.ResponseWriter, status int, kind, message string) {
	WriteJSON(writer, status, ErrorResponse{Error: message, Kind: kind})
}
