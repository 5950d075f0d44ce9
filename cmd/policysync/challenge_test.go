// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"crypto/rsa"
	"errors"
	"testing"

	"github.com/controlcoreio/policysync/lib/component"
	"github.com/controlcoreio/policysync/lib/signature"
	"github.com/controlcoreio/policysync/lib/testutil"
	"github.com/controlcoreio/policysync/lib/trust"
	"github.com/controlcoreio/policysync/lib/wire"
)

// fakeResponder answers challenges for each type with a fixed
// component ID signed by a fixed key. bareNonce signs the nonce
// without the challenge domain.
type fakeResponder struct {
	componentID string
	key         *rsa.PrivateKey
	bareNonce   bool
	err         error
}

type fakeChallengeTransport struct {
	responders map[component.Type]fakeResponder
	calls      []component.Type
}

func (f *fakeChallengeTransport) Endpoint(target component.Type) (string, bool) {
	_, ok := f.responders[target]
	return "http://" + string(target), ok
}

func (f *fakeChallengeTransport) Challenge(_ context.Context, target component.Type, nonce []byte) (string, []byte, error) {
	f.calls = append(f.calls, target)
	responder := f.responders[target]
	if responder.err != nil {
		return "", nil, responder.err
	}
	message := wire.ChallengeMessage(nonce)
	if responder.bareNonce {
		message = nonce
	}
	sig, err := signature.Sign(responder.key, message)
	if err != nil {
		return "", nil, err
	}
	return responder.componentID, sig, nil
}

func registerIdentity(t *testing.T, registry *trust.Registry, componentID string, componentType component.Type, key *rsa.PrivateKey) {
	t.Helper()
	err := registry.Register(context.Background(), component.Identity{
		ComponentID:  componentID,
		Type:         componentType,
		PublicKeyPEM: testutil.PublicKeyPEM(t, key),
	})
	if err != nil {
		t.Fatalf("Register(%s): %v", componentID, err)
	}
}

func TestChallengeVerifiesReachableComponents(t *testing.T) {
	ctx := context.Background()
	proxyKey := testutil.RSAKey(t, 1)
	adminKey := testutil.RSAKey(t, 2)

	registry := trust.New(trust.Config{})
	registerIdentity(t, registry, "coordinator-1", component.SyncCoordinator, testutil.RSAKey(t, 0))
	registerIdentity(t, registry, "proxy-1", component.EnforcementProxy, proxyKey)
	registerIdentity(t, registry, "admin-api-1", component.AdminAPI, adminKey)
	registerIdentity(t, registry, "tenant-admin-1", component.TenantAdmin, testutil.RSAKey(t, 3))

	transport := &fakeChallengeTransport{responders: map[component.Type]fakeResponder{
		component.SyncCoordinator:  {componentID: "coordinator-1", key: testutil.RSAKey(t, 0)},
		component.EnforcementProxy: {componentID: "proxy-1", key: proxyKey},
		component.AdminAPI:         {componentID: "admin-api-1", key: adminKey},
	}}
	challenges := &challenger{selfID: "coordinator-1", transport: transport, registry: registry, logger: discardLogger()}

	if verified := challenges.challenge(ctx, registry.List()); verified != 2 {
		t.Errorf("verified = %d, want 2", verified)
	}
	for _, call := range transport.calls {
		if call == component.SyncCoordinator {
			t.Error("challenger challenged its own node")
		}
		if call == component.TenantAdmin {
			t.Error("challenger challenged a component with no endpoint")
		}
	}
	for _, componentType := range []component.Type{component.EnforcementProxy, component.AdminAPI} {
		if _, err := registry.Trusted(componentType); err != nil {
			t.Errorf("Trusted(%s) after challenge: %v", componentType, err)
		}
	}
}

func TestChallengeRefusesWrongResponder(t *testing.T) {
	ctx := context.Background()
	registry := trust.New(trust.Config{})
	registerIdentity(t, registry, "proxy-1", component.EnforcementProxy, testutil.RSAKey(t, 1))

	transport := &fakeChallengeTransport{responders: map[component.Type]fakeResponder{
		component.EnforcementProxy: {componentID: "proxy-2", key: testutil.RSAKey(t, 4)},
	}}
	challenges := &challenger{transport: transport, registry: registry, logger: discardLogger()}

	if verified := challenges.challenge(ctx, registry.List()); verified != 0 {
		t.Errorf("verified = %d, want 0", verified)
	}
	identity, _ := registry.Get("proxy-1")
	if identity.Status != component.Pending {
		t.Errorf("status after foreign answer = %s, want pending (untouched)", identity.Status)
	}
}

func TestChallengeBadSignatureFailsComponent(t *testing.T) {
	ctx := context.Background()
	registry := trust.New(trust.Config{})
	registerIdentity(t, registry, "proxy-1", component.EnforcementProxy, testutil.RSAKey(t, 1))

	transport := &fakeChallengeTransport{responders: map[component.Type]fakeResponder{
		component.EnforcementProxy: {componentID: "proxy-1", key: testutil.RSAKey(t, 4)},
	}}
	challenges := &challenger{transport: transport, registry: registry, logger: discardLogger()}

	if verified := challenges.challenge(ctx, registry.List()); verified != 0 {
		t.Errorf("verified = %d, want 0", verified)
	}
	identity, _ := registry.Get("proxy-1")
	if identity.Status != component.Failed {
		t.Errorf("status after forged signature = %s, want failed", identity.Status)
	}
}

func TestChallengeRequiresDomainSeparatedSignature(t *testing.T) {
	ctx := context.Background()
	proxyKey := testutil.RSAKey(t, 1)
	registry := trust.New(trust.Config{})
	registerIdentity(t, registry, "proxy-1", component.EnforcementProxy, proxyKey)

	transport := &fakeChallengeTransport{responders: map[component.Type]fakeResponder{
		component.EnforcementProxy: {componentID: "proxy-1", key: proxyKey, bareNonce: true},
	}}
	challenges := &challenger{transport: transport, registry: registry, logger: discardLogger()}

	if verified := challenges.challenge(ctx, registry.List()); verified != 0 {
		t.Errorf("verified = %d, want 0 for a signature over the bare nonce", verified)
	}
}

func TestChallengeTransportFailure(t *testing.T) {
	registry := trust.New(trust.Config{})
	registerIdentity(t, registry, "proxy-1", component.EnforcementProxy, testutil.RSAKey(t, 1))

	transport := &fakeChallengeTransport{responders: map[component.Type]fakeResponder{
		component.EnforcementProxy: {err: errors.New("connection refused")},
	}}
	challenges := &challenger{transport: transport, registry: registry, logger: discardLogger()}
	if verified := challenges.challenge(context.Background(), registry.List()); verified != 0 {
		t.Errorf("verified = %d, want 0", verified)
	}
}

func TestChallengeStopsOnCancelledContext(t *testing.T) {
	registry := trust.New(trust.Config{})
	registerIdentity(t, registry, "proxy-1", component.EnforcementProxy, testutil.RSAKey(t, 1))
	transport := &fakeChallengeTransport{responders: map[component.Type]fakeResponder{
		component.EnforcementProxy: {componentID: "proxy-1", key: testutil.RSAKey(t, 1)},
	}}
	challenges := &challenger{transport: transport, registry: registry, logger: discardLogger()}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	challenges.challenge(ctx, registry.List())
	if len(transport.calls) != 0 {
		t.Errorf("challenger sent %d challenges after cancellation", len(transport.calls))
	}
}
