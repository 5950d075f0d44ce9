// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds the binary entrypoint helpers: reporting the
// error that ends a run, and choosing the exit status. It is the one
// place outside command output that writes to stderr directly, since
// it runs before or after the structured logger exists.
package process
