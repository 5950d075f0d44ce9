// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports which build of policysync is running.
//
// Release builds inject [GitCommit], [GitDirty], [BuildTime], and
// [Version] with -ldflags -X:
//
//	go build -ldflags "-X github.com/controlcoreio/policysync/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// When they are not injected, the VCS stamp the Go toolchain embeds
// in the binary is used instead. [UserAgent] identifies outbound sync
// deliveries.
package version
