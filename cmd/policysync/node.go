// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/controlcoreio/policysync/lib/audit"
	"github.com/controlcoreio/policysync/lib/config"
	"github.com/controlcoreio/policysync/lib/dispatch"
	"github.com/controlcoreio/policysync/lib/identity"
	"github.com/controlcoreio/policysync/lib/inventory"
	"github.com/controlcoreio/policysync/lib/payloadcrypt"
	"github.com/controlcoreio/policysync/lib/quorum"
	"github.com/controlcoreio/policysync/lib/sealed"
	"github.com/controlcoreio/policysync/lib/secret"
	"github.com/controlcoreio/policysync/lib/store"
	"github.com/controlcoreio/policysync/lib/syncevent"
	"github.com/controlcoreio/policysync/lib/trust"
)

// node holds the collaborators every running command shares.
type node struct {
	config   *config.Config
	logger   *slog.Logger
	identity *identity.Identity
	secret   *secret.Buffer
	crypt    *payloadcrypt.Engine
	store    *store.Store
	trail    *audit.Trail
	registry *trust.Registry
}

// openNode loads the identity, the shared secret, the store, and the
// inventory described by cfg.
func openNode(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *node, err error) {
	if err := cfg.EnsurePaths(); err != nil {
		return nil, err
	}

	n := &node{config: cfg, logger: logger}
	defer func() {
		if err != nil {
			n.Close()
		}
	}()

	privateKey, created, err := identity.LoadOrGenerateKeypair(cfg.Paths.State)
	if err != nil {
		return nil, err
	}
	n.identity, err = identity.New(identity.Config{
		ComponentID: cfg.Node.ComponentID,
		Type:        cfg.Node.ComponentType,
		PrivateKey:  privateKey,
	})
	if err != nil {
		return nil, err
	}
	if created {
		logger.Info("generated node identity", "component_id", cfg.Node.ComponentID, "state_dir", cfg.Paths.State)
	}

	var salt []byte
	n.secret, salt, err = loadSecret(cfg)
	if err != nil {
		return nil, err
	}
	n.crypt, err = payloadcrypt.New(salt)
	if err != nil {
		return nil, err
	}

	n.store, err = store.Open(ctx, store.Config{Path: cfg.DatabasePath(), Logger: logger})
	if err != nil {
		return nil, err
	}
	n.trail, err = audit.New(ctx, audit.Config{Sink: n.store, Logger: logger})
	if err != nil {
		return nil, err
	}
	n.registry = trust.New(trust.Config{
		VerificationInterval: cfg.Sync.VerificationInterval,
		Audit:                n.trail,
		Logger:               logger,
	})

	if cfg.Paths.Inventory != "" {
		components, err := inventory.ReadFile(cfg.Paths.Inventory)
		if err != nil {
			return nil, err
		}
		registered, err := components.Apply(ctx, n.registry)
		if err != nil {
			return nil, err
		}
		logger.Info("inventory loaded", "path", cfg.Paths.Inventory, "components", registered)
	}
	return n, nil
}

// Close releases the shared secret and the store.
func (n *node) Close() error {
	var errs []error
	if n.secret != nil {
		errs = append(errs, n.secret.Close())
	}
	if n.store != nil {
		errs = append(errs, n.store.Close())
	}
	return errors.Join(errs...)
}

// sender builds the dispatcher and the engine for a node with
// endpoints configured.
func (n *node) sender() (*dispatch.Dispatcher, *syncevent.Engine, error) {
	endpoints, err := n.config.EndpointMap()
	if err != nil {
		return nil, nil, err
	}
	if len(endpoints) == 0 {
		return nil, nil, errors.New("sync.endpoints is empty: this node cannot send")
	}
	rule, err := quorum.ParseRule(n.config.Sync.Completion)
	if err != nil {
		return nil, nil, err
	}
	dispatcher, err := dispatch.New(dispatch.Config{
		Endpoints: endpoints,
		Tokens:    n.identity,
		TokenTTL:  n.config.Sync.TokenTTL,
		Logger:    n.logger,
	})
	if err != nil {
		return nil, nil, err
	}
	engine, err := syncevent.New(syncevent.Config{
		Identity:        n.identity,
		Registry:        n.registry,
		Encrypter:       n.crypt,
		Secret:          n.secret,
		Transport:       dispatcher,
		Audit:           n.trail,
		CompletionRule:  rule,
		DispatchTimeout: n.config.Sync.DispatchTimeout,
		Logger:          n.logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return dispatcher, engine, nil
}

// loadSecret returns the shared secret and the salt. A sealed bundle
// carries both; otherwise the secret comes from the environment and the
// salt is either the legacy constant or the deployment salt file.
func loadSecret(cfg *config.Config) (*secret.Buffer, []byte, error) {
	if cfg.Secret.SealedFile != "" {
		keypair, created, err := sealed.LoadOrGenerateKeypair(cfg.Paths.State)
		if err != nil {
			return nil, nil, err
		}
		defer keypair.Close()
		if created {
			return nil, nil, fmt.Errorf("no age identity existed in %s; reseal %s to the new recipient %s",
				cfg.Paths.State, cfg.Secret.SealedFile, keypair.PublicKey)
		}
		bundle, err := sealed.OpenBundleFile(cfg.Secret.SealedFile, keypair.PrivateKey)
		if err != nil {
			return nil, nil, err
		}
		return bundle.Secret, bundle.Salt, nil
	}

	sharedSecret, err := secret.FromEnv(cfg.Secret.Env)
	if err != nil {
		return nil, nil, fmt.Errorf("reading shared secret from $%s: %w", cfg.Secret.Env, err)
	}
	switch cfg.Secret.Salt {
	case config.SaltLegacy:
		return sharedSecret, payloadcrypt.LegacySalt, nil
	case config.SaltDeployment:
		salt, err := payloadcrypt.LoadSalt(cfg.SaltPath())
		if err != nil {
			sharedSecret.Close()
			return nil, nil, err
		}
		return sharedSecret, salt, nil
	default:
		sharedSecret.Close()
		return nil, nil, fmt.Errorf("secret.salt: unknown mode %q", cfg.Secret.Salt)
	}
}
