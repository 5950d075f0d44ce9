// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/controlcoreio/policysync/lib/audit"
	"github.com/controlcoreio/policysync/lib/process"
	"github.com/controlcoreio/policysync/lib/store"
)

func runAudit(args []string, stdout, stderr io.Writer) error {
	if len(args) < 1 {
		printAuditUsage(stderr)
		return process.Usagef("audit subcommand required")
	}
	switch args[0] {
	case "export":
		return runAuditExport(args[1:], stdout, stderr)
	case "verify":
		return runAuditVerify(args[1:], stdout, stderr)
	case "show":
		return runAuditShow(args[1:], stdout, stderr)
	case "-h", "--help", "help":
		printAuditUsage(stdout)
		return nil
	default:
		printAuditUsage(stderr)
		return process.Usagef("unknown audit subcommand: %q", args[0])
	}
}

func printAuditUsage(w io.Writer) {
	fmt.Fprintf(w, `Usage: policysync audit <subcommand> [flags]

Subcommands:
  export   Write the audit trail as a zstd-compressed JSON Lines archive
  verify   Check the chain of the store or of an archive
  show     Print the records of one event as JSON Lines
`)
}

// openAuditStore opens the node's store read-side. It needs no
// identity or shared secret.
func openAuditStore(ctx context.Context, common *commonFlags, stderr io.Writer) (*store.Store, error) {
	logger, err := common.logger(stderr)
	if err != nil {
		return nil, err
	}
	cfg, err := common.loadConfig()
	if err != nil {
		return nil, err
	}
	return store.Open(ctx, store.Config{Path: cfg.DatabasePath(), Logger: logger})
}

func runAuditExport(args []string, stdout, stderr io.Writer) error {
	flags := pflag.NewFlagSet("audit export", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	common := addCommonFlags(flags)
	var output string
	flags.StringVarP(&output, "output", "o", "", "archive file to write (required)")
	if ok, err := parseFlags(flags, args); !ok {
		return err
	}
	if output == "" {
		return process.Usagef("--output is required")
	}

	ctx := context.Background()
	auditStore, err := openAuditStore(ctx, common, stderr)
	if err != nil {
		return err
	}
	defer auditStore.Close()

	records, err := auditStore.Records(ctx)
	if err != nil {
		return err
	}
	if err := audit.VerifyChain(records); err != nil {
		return fmt.Errorf("refusing to export a broken chain: %w", err)
	}

	file, err := os.OpenFile(output, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("creating archive: %w", err)
	}
	if err := audit.WriteArchive(file, records); err != nil {
		file.Close()
		os.Remove(output)
		return err
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("closing archive: %w", err)
	}
	fmt.Fprintf(stdout, "exported %d records to %s\n", len(records), output)
	return nil
}

func runAuditVerify(args []string, stdout, stderr io.Writer) error {
	flags := pflag.NewFlagSet("audit verify", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	common := addCommonFlags(flags)
	var archivePath string
	flags.StringVar(&archivePath, "archive", "", "verify this archive instead of the store")
	if ok, err := parseFlags(flags, args); !ok {
		return err
	}

	var (
		records []audit.Record
		source  string
	)
	if archivePath != "" {
		file, err := os.Open(archivePath)
		if err != nil {
			return err
		}
		defer file.Close()
		records, err = audit.ReadArchive(file)
		if err != nil {
			return err
		}
		source = archivePath
	} else {
		ctx := context.Background()
		auditStore, err := openAuditStore(ctx, common, stderr)
		if err != nil {
			return err
		}
		defer auditStore.Close()
		records, err = auditStore.Records(ctx)
		if err != nil {
			return err
		}
		source = "store"
	}

	if err := audit.VerifyChain(records); err != nil {
		return fmt.Errorf("%s: %w", source, err)
	}
	fmt.Fprintf(stdout, "%s: %d records, chain intact\n", source, len(records))
	return nil
}

func runAuditShow(args []string, stdout, stderr io.Writer) error {
	flags := pflag.NewFlagSet("audit show", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	common := addCommonFlags(flags)
	var eventID string
	flags.StringVar(&eventID, "event", "", "event ID (required)")
	if ok, err := parseFlags(flags, args); !ok {
		return err
	}
	if eventID == "" {
		return process.Usagef("--event is required")
	}

	ctx := context.Background()
	auditStore, err := openAuditStore(ctx, common, stderr)
	if err != nil {
		return err
	}
	defer auditStore.Close()

	records, err := auditStore.EventRecords(ctx, eventID)
	if err != nil {
		return err
	}
	encoder := json.NewEncoder(stdout)
	for _, record := range records {
		if err := encoder.Encode(record); err != nil {
			return err
		}
	}
	return nil
}
