// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/controlcoreio/policysync/lib/component"
	"github.com/controlcoreio/policysync/lib/policydir"
	"github.com/controlcoreio/policysync/lib/receiver"
	"github.com/controlcoreio/policysync/lib/service"
	"github.com/controlcoreio/policysync/lib/version"
)

func runServe(args []string, stderr io.Writer) error {
	flags := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	common := addCommonFlags(flags)
	if ok, err := parseFlags(flags, args); !ok {
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

	logger = logger.With("component_id", cfg.Node.ComponentID, "component_type", cfg.Node.ComponentType)
	logger.Info("policysync starting", "version", version.Info(), "environment", cfg.Environment)

	n, err := openNode(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer n.Close()

	policies, err := policydir.Open(cfg.PolicyDir(), logger)
	if err != nil {
		return err
	}
	inbound, err := receiver.New(receiver.Config{
		Self:      n.identity,
		Registry:  n.registry,
		Decrypter: n.crypt,
		Secret:    n.secret,
		Ledger:    n.store,
		Sink:      policies,
		Audit:     n.trail,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	syncServer, err := service.NewHTTPServer(service.HTTPServerConfig{
		Name:        "sync",
		Address:     cfg.Listen.Sync,
		Handler:     inbound.Handler(),
		TLSCertFile: cfg.Listen.TLSCertFile,
		TLSKeyFile:  cfg.Listen.TLSKeyFile,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	tasks := []service.Task{syncServer.Serve}

	if len(cfg.Sync.Endpoints) > 0 {
		extra, err := senderTasks(n)
		if err != nil {
			return err
		}
		tasks = append(tasks, extra...)
	} else {
		logger.Info("no sync endpoints configured; running as receiver only")
	}

	if err := service.Run(ctx, tasks...); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	logger.Info("policysync stopped")
	return nil
}

// senderTasks builds the tasks of a node that distributes: the initial
// challenge of its inventory, the staleness sweeper, and the admin
// listener.
func senderTasks(n *node) ([]service.Task, error) {
	cfg := n.config
	dispatcher, engine, err := n.sender()
	if err != nil {
		return nil, err
	}
	challenges := &challenger{
		selfID:    n.identity.ComponentID(),
		transport: dispatcher,
		registry:  n.registry,
		logger:    n.logger,
	}

	tasks := []service.Task{
		func(ctx context.Context) error {
			verified := challenges.challenge(ctx, n.registry.List())
			n.logger.Info("initial challenge complete", "verified", verified)
			return nil
		},
		func(ctx context.Context) error {
			var onStale func(context.Context, []component.Identity)
			if cfg.Sync.ChallengeStale {
				onStale = challenges.onStale
			}
			n.registry.RunSweeper(ctx, cfg.Sync.SweepInterval, onStale)
			return nil
		},
	}

	if cfg.Listen.Admin == "" {
		n.logger.Info("admin listener disabled")
		return tasks, nil
	}
	api := &admin{engine: engine, registry: n.registry, challenger: challenges, logger: n.logger}
	adminServer, err := service.NewHTTPServer(service.HTTPServerConfig{
		Name:    "admin",
		Address: cfg.Listen.Admin,
		Handler: api.handler(),
		Logger:  n.logger,
	})
	if err != nil {
		return nil, err
	}
	return append(tasks, adminServer.Serve), nil
}
