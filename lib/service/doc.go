// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides the process scaffolding a policysync node
// runs inside: [HTTPServer] binds a listener, serves a handler with
// conservative timeouts, and drains in-flight requests on shutdown;
// [Run] runs a node's long-lived tasks (listeners, the sweeper) and
// stops all of them when any one fails.
//
// Both follow one lifecycle: a blocking call that returns once its
// context is cancelled and work has drained. Commands compose them in
// their own run function rather than through a framework.
package service
