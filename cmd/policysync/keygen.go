// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/controlcoreio/policysync/lib/identity"
	"github.com/controlcoreio/policysync/lib/sealed"
	"github.com/controlcoreio/policysync/lib/signature"
)

// runKeygen creates (or loads) the node's RSA identity and age
// keypair and prints what peers need: the public key PEM for their
// inventories and the age recipient for seal-secret.
func runKeygen(args []string, stdout, stderr io.Writer) error {
	flags := pflag.NewFlagSet("keygen", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	common := addCommonFlags(flags)
	var publicKeyOut string
	flags.StringVar(&publicKeyOut, "public-key-out", "", "also write the public key PEM to this file")
	if ok, err := parseFlags(flags, args); !ok {
		return err
	}

	cfg, err := common.loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	privateKey, created, err := identity.LoadOrGenerateKeypair(cfg.Paths.State)
	if err != nil {
		return err
	}
	publicKeyPEM, err := signature.EncodePublicKeyPEM(&privateKey.PublicKey)
	if err != nil {
		return err
	}
	keypair, ageCreated, err := sealed.LoadOrGenerateKeypair(cfg.Paths.State)
	if err != nil {
		return err
	}
	defer keypair.Close()

	if publicKeyOut != "" {
		if err := os.WriteFile(publicKeyOut, []byte(publicKeyPEM), 0o644); err != nil {
			return fmt.Errorf("writing public key: %w", err)
		}
	}

	fmt.Fprintf(stderr, "# RSA identity: %s\n", describeCreated(created))
	fmt.Fprintf(stderr, "# age identity: %s\n", describeCreated(ageCreated))
	fmt.Fprintf(stdout, "component_id: %s\n", cfg.Node.ComponentID)
	fmt.Fprintf(stdout, "component_type: %s\n", cfg.Node.ComponentType)
	fmt.Fprintf(stdout, "age_recipient: %s\n", keypair.PublicKey)
	fmt.Fprint(stdout, publicKeyPEM)
	return nil
}

func describeCreated(created bool) string {
	if created {
		return "generated"
	}
	return "existing"
}
