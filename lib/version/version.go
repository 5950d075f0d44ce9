// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// These variables are set via -ldflags at build time.
var (
	// GitCommit is the short git SHA of the build.
	GitCommit = "unknown"

	// GitDirty is "true" if the tree had uncommitted changes.
	GitDirty = "false"

	// BuildTime is the UTC timestamp of the build.
	BuildTime = "unknown"

	// Version is the semantic version, set manually for releases.
	Version = "0.1.0-dev"
)

// build is what Info reports.
type build struct {
	commit string
	dirty  bool
	time   string
}

func current() build {
	return resolve(GitCommit, GitDirty, BuildTime, readBuildSettings())
}

func readBuildSettings() map[string]string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return nil
	}
	settings := make(map[string]string, len(info.Settings))
	for _, setting := range info.Settings {
		settings[setting.Key] = setting.Value
	}
	return settings
}

// resolve prefers injected values and falls back to the toolchain's
// vcs.* settings.
func resolve(commit, dirty, buildTime string, settings map[string]string) build {
	result := build{commit: commit, dirty: dirty == "true", time: buildTime}
	if commit != "unknown" {
		return result
	}
	if revision := settings["vcs.revision"]; revision != "" {
		if len(revision) > 12 {
			revision = revision[:12]
		}
		result.commit = revision
		result.dirty = settings["vcs.modified"] == "true"
		if stamp := settings["vcs.time"]; stamp != "" {
			result.time = stamp
		}
	}
	return result
}

func (b build) String() string {
	dirty := ""
	if b.dirty {
		dirty = "-dirty"
	}
	return fmt.Sprintf("%s (%s%s, %s)", Version, b.commit, dirty, b.time)
}

// Info returns a formatted version string suitable for --version output.
func Info() string {
	return current().String()
}

// Full returns Info plus the Go version and platform.
func Full() string {
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s/%s",
		Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// UserAgent is the User-Agent header for outbound requests.
func UserAgent() string {
	return "policysync/" + Version
}
