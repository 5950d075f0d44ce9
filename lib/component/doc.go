// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

// Package component defines the vocabulary shared by every policy sync
// package: the component types that participate in the protocol, the
// verification status of a registered component, and the
// ComponentIdentity record held by the trust registry.
//
// These are plain value types with no behavior beyond parsing and
// validation, so that lower-level packages (signature, dispatch,
// audit) can depend on them without pulling in the registry.
package component
