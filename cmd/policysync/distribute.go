// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/controlcoreio/policysync/lib/component"
	"github.com/controlcoreio/policysync/lib/process"
	"github.com/controlcoreio/policysync/lib/syncevent"
	"github.com/controlcoreio/policysync/lib/wire"
)

// runDistribute runs one sync event from the command line: it
// challenges the target components, distributes the payload file, and
// prints the resulting event. A failed event is an error.
func runDistribute(args []string, stdout, stderr io.Writer) error {
	flags := pflag.NewFlagSet("distribute", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	common := addCommonFlags(flags)
	var (
		eventType   string
		targets     []string
		payloadPath string
	)
	flags.StringVar(&eventType, "event-type", string(wire.PolicyUpdate), "event type")
	flags.StringSliceVar(&targets, "target", nil, "target component type (repeatable or comma-separated)")
	flags.StringVar(&payloadPath, "payload", "", `JSON payload file ("-" for stdin)`)
	if ok, err := parseFlags(flags, args); !ok {
		return err
	}

	parsedType := wire.EventType(eventType)
	if !parsedType.Valid() {
		return process.Usagef("--event-type %q: must be one of %v", eventType, wire.EventTypes)
	}
	if len(targets) == 0 {
		return process.Usagef("--target is required")
	}
	targetTypes := make([]component.Type, 0, len(targets))
	for _, target := range targets {
		parsed, err := component.ParseType(target)
		if err != nil {
			return process.Usagef("--target: %v", err)
		}
		targetTypes = append(targetTypes, parsed)
	}
	if payloadPath == "" {
		return process.Usagef("--payload is required")
	}
	payload, err := readPayload(payloadPath)
	if err != nil {
		return err
	}

	logger, err := common.logger(stderr)
	if err != nil {
		return err
	}
	cfg, err := common.loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	n, err := openNode(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer n.Close()

	dispatcher, engine, err := n.sender()
	if err != nil {
		return err
	}
	challenges := &challenger{
		selfID:    n.identity.ComponentID(),
		transport: dispatcher,
		registry:  n.registry,
		logger:    logger,
	}
	var candidates []component.Identity
	for _, identity := range n.registry.List() {
		if slices.Contains(targetTypes, identity.Type) {
			candidates = append(candidates, identity)
		}
	}
	challenges.challenge(ctx, candidates)

	event, err := engine.CreateAndDistribute(ctx, syncevent.Request{
		Targets:   targetTypes,
		EventType: parsedType,
		Payload:   payload,
	})
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(event); err != nil {
		return err
	}
	if event.SyncStatus != syncevent.Completed {
		return fmt.Errorf("event %s finished %s", event.EventID, event.SyncStatus)
	}
	return nil
}

// readPayload reads a JSON document from path, or stdin for "-".
func readPayload(path string) (json.RawMessage, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading payload: %w", err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("payload %s is not valid JSON", path)
	}
	return json.RawMessage(data), nil
}
