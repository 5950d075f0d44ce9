// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens the SQLite database that backs a node's
// durable state: the audit trail and the applied-payload ledger.
//
// It wraps zombiezen.com/go/sqlite's sqlitex.Pool with fixed pragmas
// and a forward-only migration list tracked in PRAGMA user_version.
// Connections are not safe for concurrent use; callers either Take and
// Put a connection themselves or use [Pool.Read] and [Pool.Write],
// which scope one connection to one function call.
//
// # Pragmas
//
//   - busy_timeout=5000: wait for the write lock instead of failing
//     with SQLITE_BUSY.
//   - journal_mode=WAL: readers never block the single writer.
//   - synchronous=FULL: a committed audit record survives power loss.
//   - foreign_keys=ON
//   - temp_store=MEMORY
//
// # Migrations
//
// Migrations is an ordered list of SQL scripts. Script i brings the
// schema to version i+1. Open applies every script above the stored
// user_version inside one immediate transaction, so a crash mid-upgrade
// leaves the previous version intact. A database whose user_version is
// newer than the list is refused.
package sqlitepool
