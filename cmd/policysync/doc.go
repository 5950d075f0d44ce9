// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

// Policysync runs one node of a policy synchronization deployment and
// provides the operator commands around it.
//
// Subcommands:
//
//   - serve: run the node. Every node serves POST /sync and POST
//     /challenge and writes applied updates to its policy directory.
//     A node with sync.endpoints configured is also a sender: it
//     challenges its inventory at start, re-challenges components
//     whose verification has gone stale, and serves the loopback
//     admin API (POST /distribute, GET /events, GET /components).
//   - keygen: create or show the node's RSA identity and age
//     recipient.
//   - seal-secret: seal the shared secret and the deployment salt to
//     the age recipients of every node.
//   - distribute: challenge the targets and run one sync event
//     without starting a server.
//   - audit: export the audit trail as a zstd archive, or verify the
//     chain of the store or an archive.
//   - version: print build information.
//
// Every command that reads configuration takes --config (or
// POLICYSYNC_CONFIG). Logs are JSON on stderr.
package main
