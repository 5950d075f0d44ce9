// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/controlcoreio/policysync/lib/payloadcrypt"
	"github.com/controlcoreio/policysync/lib/process"
	"github.com/controlcoreio/policysync/lib/sealed"
	"github.com/controlcoreio/policysync/lib/secret"
)

// runSealSecret seals the shared secret and a salt into one bundle
// that every recipient node can open with its own age identity.
func runSealSecret(args []string, stdout, stderr io.Writer) error {
	flags := pflag.NewFlagSet("seal-secret", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	var (
		recipients []string
		output     string
		secretFile string
		saltFile   string
		legacySalt bool
	)
	flags.StringArrayVar(&recipients, "recipient", nil, "age recipient of a node (repeatable)")
	flags.StringVarP(&output, "output", "o", "", "bundle file to write")
	flags.StringVar(&secretFile, "secret-file", "", `read the shared secret from this file ("-" for stdin) instead of prompting`)
	flags.StringVar(&saltFile, "salt-file", "", "reuse (or create) the hex salt in this file instead of generating a new one")
	flags.BoolVar(&legacySalt, "legacy-salt", false, "seal the legacy fixed salt (for deployments with pre-existing peers)")
	if ok, err := parseFlags(flags, args); !ok {
		return err
	}
	if len(recipients) == 0 {
		return process.Usagef("--recipient is required")
	}
	if output == "" {
		return process.Usagef("--output is required")
	}
	if legacySalt && saltFile != "" {
		return process.Usagef("--legacy-salt and --salt-file are mutually exclusive")
	}
	for _, recipient := range recipients {
		if err := sealed.ParseRecipient(recipient); err != nil {
			return process.Usagef("--recipient %q: %v", recipient, err)
		}
	}

	sharedSecret, err := readSharedSecret(secretFile, stderr)
	if err != nil {
		return err
	}
	defer sharedSecret.Close()

	var salt []byte
	switch {
	case legacySalt:
		salt = payloadcrypt.LegacySalt
	case saltFile != "":
		var created bool
		salt, created, err = payloadcrypt.LoadOrGenerateSalt(saltFile)
		if err != nil {
			return err
		}
		if created {
			fmt.Fprintf(stderr, "# generated salt in %s\n", saltFile)
		}
	default:
		salt, err = payloadcrypt.GenerateSalt()
		if err != nil {
			return err
		}
	}

	bundle, err := sealed.SealBundle(sharedSecret.Bytes(), salt, recipients)
	if err != nil {
		return err
	}
	if err := os.WriteFile(output, bundle, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", output, err)
	}
	fmt.Fprintf(stdout, "sealed shared secret to %d recipient(s) in %s\n", len(recipients), output)
	return nil
}

func readSharedSecret(path string, prompt io.Writer) (*secret.Buffer, error) {
	if path != "" {
		return secret.ReadFromPath(path)
	}
	buffer, err := secret.Prompt(int(os.Stdin.Fd()), prompt, "Shared secret: ")
	if err != nil {
		return nil, fmt.Errorf("reading shared secret (use --secret-file when stdin is not a terminal): %w", err)
	}
	return buffer, nil
}
