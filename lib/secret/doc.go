// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds the deployment's shared secret and private key
// material in memory the garbage collector never sees.
//
// [Buffer] is an anonymous mmap region locked into RAM (mlock) and
// excluded from core dumps (MADV_DONTDUMP). Close zeroes, unlocks,
// and unmaps it; any read after Close panics.
//
// Sources:
//
//   - [FromEnv] moves a secret out of an environment variable and
//     unsets the variable
//   - [ReadFromPath] reads a file, or stdin for "-"
//   - [Prompt] reads from the terminal without echo
//
// Every source trims surrounding whitespace, refuses an empty secret,
// and zeroes its intermediate heap copies.
package secret
