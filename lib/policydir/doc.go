// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

// Package policydir stores the latest applied update of each event
// type as a JSON document in a directory. It is the default sink for
// receiving nodes: an enforcement proxy or admin API watches the
// directory (or reads it on start) to pick up new policy.
//
// Each document is written atomically (write to a temporary file,
// fsync, rename, fsync the directory) so readers never see a partial
// update.
package policydir
