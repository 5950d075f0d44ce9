// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

// Package inventory loads the static list of components a node trusts
// at startup. An inventory is a JSONC file (JSON with // comments,
// /* block comments */, and trailing commas):
//
//	{
//	  "components": [
//	    {
//	      "component_id": "proxy-eu-1",
//	      "component_type": "enforcement-proxy",
//	      // Relative paths resolve against the inventory's directory.
//	      "public_key_path": "keys/proxy-eu-1.pem",
//	    },
//	  ],
//	}
//
// Each entry names either public_key_path or an inline public_key.
// Apply registers every entry with a trust registry; registration
// leaves the component pending until it authenticates.
package inventory
