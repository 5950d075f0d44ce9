// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for policysync
// nodes.
//
// Configuration is loaded from a single file specified by either the
// POLICYSYNC_CONFIG environment variable (via [Load]) or a --config
// flag (via [LoadFile]). There are no fallbacks and no automatic file
// search.
//
// The configuration file supports environment-specific sections
// (development, staging, production) that override base values when
// [Config].Environment matches. Production defaults are stricter: the
// payload encryption salt defaults to a per-deployment salt, and the
// legacy fixed salt is refused unless allow_legacy_salt is set.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${POLICYSYNC_ROOT}, and ${VAR:-default} patterns are
// expanded. No other environment variables override config values.
// The shared secret itself never appears in the file; the file names
// where to find it.
//
// Key exports:
//
//   - [Config] -- master struct with Node, Paths, Listen, Sync, Secret
//   - [Default] -- returns a Config with development defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
package config
