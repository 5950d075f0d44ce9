// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"crypto/rand"
	"log/slog"
	"time"

	"github.com/controlcoreio/policysync/lib/component"
	"github.com/controlcoreio/policysync/lib/wire"
)

// challengeNonceSize is the size of each challenge nonce.
const challengeNonceSize = 32

// defaultChallengeTimeout bounds one challenge round trip.
const defaultChallengeTimeout = 10 * time.Second

// challengeTransport sends challenges. *dispatch.Dispatcher satisfies
// it.
type challengeTransport interface {
	Endpoint(target component.Type) (string, bool)
	Challenge(ctx context.Context, target component.Type, nonce []byte) (string, []byte, error)
}

// authenticator checks challenge signatures. *trust.Registry
// satisfies it.
type authenticator interface {
	Authenticate(ctx context.Context, componentID string, sig, payload []byte) bool
}

// challenger verifies components by asking each to sign a fresh nonce.
// It is how a sender brings its inventory from pending to verified and
// keeps it fresh.
type challenger struct {
	selfID    string
	transport challengeTransport
	registry  authenticator
	timeout   time.Duration
	logger    *slog.Logger
}

// challenge authenticates every identity reachable through the
// transport and returns how many verified. The local node and
// components without an endpoint are skipped.
func (c *challenger) challenge(ctx context.Context, identities []component.Identity) int {
	verified := 0
	for _, identity := range identities {
		if ctx.Err() != nil {
			break
		}
		if identity.ComponentID == c.selfID {
			continue
		}
		if _, ok := c.transport.Endpoint(identity.Type); !ok {
			continue
		}
		if c.challengeOne(ctx, identity) {
			verified++
		}
	}
	return verified
}

func (c *challenger) challengeOne(ctx context.Context, identity component.Identity) bool {
	logger := c.logger.With("component_id", identity.ComponentID, "component_type", identity.Type)

	nonce := make([]byte, challengeNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		logger.Error("generating challenge nonce", "error", err)
		return false
	}

	timeout := c.timeout
	if timeout <= 0 {
		timeout = defaultChallengeTimeout
	}
	challengeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	responderID, signature, err := c.transport.Challenge(challengeCtx, identity.Type, nonce)
	if err != nil {
		logger.Warn("challenge failed", "error", err)
		return false
	}
	if responderID != identity.ComponentID {
		// The endpoint for this type is served by a different
		// component; its signature says nothing about this one.
		logger.Warn("challenge answered by another component", "responder_id", responderID)
		return false
	}
	if !c.registry.Authenticate(ctx, identity.ComponentID, signature, wire.ChallengeMessage(nonce)) {
		logger.Warn("challenge signature rejected")
		return false
	}
	logger.Debug("component verified by challenge")
	return true
}

// onStale is the sweeper hook: it re-challenges stale components.
func (c *challenger) onStale(ctx context.Context, stale []component.Identity) {
	verified := c.challenge(ctx, stale)
	c.logger.Info("re-challenged stale components", "stale", len(stale), "verified", verified)
}
