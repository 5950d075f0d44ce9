// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

// Package quorum evaluates multi-party gates: "all of these must
// succeed", "any of these suffices", "these must succeed in order".
//
// A Rule is a closed set of variants (AllOf, AnyOf, Sequential).
// Evaluate takes a rule and the per-party results collected so far and
// returns a Verdict that is either still open, satisfied, or rejected.
// The sync event engine gates target verification and completion on
// AllOf; other variants exist for callers whose gate semantics differ,
// such as approval chains.
package quorum
