// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/controlcoreio/policysync/lib/config"
	"github.com/controlcoreio/policysync/lib/process"
	"github.com/controlcoreio/policysync/lib/version"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		process.Fatal(err)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) < 1 {
		printUsage(stderr)
		return process.Usagef("subcommand required")
	}

	subcommand := args[0]
	switch subcommand {
	case "serve":
		return runServe(args[1:], stderr)
	case "keygen":
		return runKeygen(args[1:], stdout, stderr)
	case "seal-secret":
		return runSealSecret(args[1:], stdout, stderr)
	case "distribute":
		return runDistribute(args[1:], stdout, stderr)
	case "audit":
		return runAudit(args[1:], stdout, stderr)
	case "version", "--version":
		fmt.Fprintf(stdout, "policysync %s\n", version.Info())
		return nil
	case "-h", "--help", "help":
		printUsage(stdout)
		return nil
	default:
		printUsage(stderr)
		return process.Usagef("unknown subcommand: %q", subcommand)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `Usage: policysync <subcommand> [flags]

Subcommands:
  serve         Run this node (receiver, and sender when endpoints are configured)
  keygen        Create or show this node's RSA identity and age recipient
  seal-secret   Seal the shared secret and deployment salt to node recipients
  distribute    Run one sync event and print it as JSON
  audit         Export or verify the audit trail
  version       Print version information

Run 'policysync <subcommand> --help' for subcommand flags.
`)
}

// commonFlags are shared by every subcommand that reads configuration.
type commonFlags struct {
	configPath string
	logLevel   string
}

func addCommonFlags(flags *pflag.FlagSet) *commonFlags {
	common := &commonFlags{}
	flags.StringVar(&common.configPath, "config", "", "path to policysync.yaml (default: $POLICYSYNC_CONFIG)")
	flags.StringVar(&common.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	return common
}

// loadConfig loads and validates the configuration.
func (c *commonFlags) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if c.configPath != "" {
		cfg, err = config.LoadFile(c.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// logger returns a JSON logger on w at the configured level.
func (c *commonFlags) logger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.logLevel)); err != nil {
		return nil, process.Usagef("--log-level: %v", err)
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})), nil
}

// parseFlags parses args into flags. It returns false without an error
// when --help was requested and usage has been printed.
func parseFlags(flags *pflag.FlagSet, args []string) (bool, error) {
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return false, nil
		}
		return false, process.Usagef("%v", err)
	}
	if flags.NArg() > 0 {
		return false, process.Usagef("unexpected argument %q", flags.Arg(0))
	}
	return true, nil
}
