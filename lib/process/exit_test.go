// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"failure", errors.New("dispatch failed"), ExitFailure},
		{"usage", Usagef("unknown command %q", "frobnicate"), ExitUsage},
		{"wrapped usage", fmt.Errorf("distribute: %w", Usagef("--targets is required")), ExitUsage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestReport(t *testing.T) {
	var output strings.Builder
	Report(&output, Usagef("--config is required"))
	if got := output.String(); got != "error: usage: --config is required\n" {
		t.Errorf("Report wrote %q", got)
	}
}
