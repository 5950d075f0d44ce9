// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

package syncevent

import (
	"context"
	"encoding/hex"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/controlcoreio/policysync/lib/audit"
	"github.com/controlcoreio/policysync/lib/canonical"
	"github.com/controlcoreio/policysync/lib/clock"
	"github.com/controlcoreio/policysync/lib/component"
	"github.com/controlcoreio/policysync/lib/dispatch"
	"github.com/controlcoreio/policysync/lib/identity"
	"github.com/controlcoreio/policysync/lib/payloadcrypt"
	"github.com/controlcoreio/policysync/lib/quorum"
	"github.com/controlcoreio/policysync/lib/signature"
	"github.com/controlcoreio/policysync/lib/store"
	"github.com/controlcoreio/policysync/lib/syncerr"
	"github.com/controlcoreio/policysync/lib/testutil"
	"github.com/controlcoreio/policysync/lib/trust"
	"github.com/controlcoreio/policysync/lib/wire"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type staticSecret []byte

func (s staticSecret) Bytes() []byte { return s }

// recordingTransport acknowledges every delivery except those to
// failing targets, and records each call.
type recordingTransport struct {
	mu         sync.Mutex
	deliveries []dispatch.Delivery
	failing    map[component.Type]bool
}

func (r *recordingTransport) Deliver(_ context.Context, delivery dispatch.Delivery) dispatch.Outcome {
	r.mu.Lock()
	r.deliveries = append(r.deliveries, delivery)
	failing := r.failing[delivery.Target]
	r.mu.Unlock()

	if failing {
		return dispatch.Outcome{
			Target:     delivery.Target,
			StatusCode: 503,
			Err:        syncerr.New(syncerr.TransportFailure, "dispatch", errors.New("HTTP 503")),
		}
	}
	return dispatch.Outcome{Target: delivery.Target, StatusCode: 200, Latency: 3 * time.Millisecond}
}

func (r *recordingTransport) calls() []dispatch.Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]dispatch.Delivery(nil), r.deliveries...)
}

type transportFunc func(context.Context, dispatch.Delivery) dispatch.Outcome

func (f transportFunc) Deliver(ctx context.Context, delivery dispatch.Delivery) dispatch.Outcome {
	return f(ctx, delivery)
}

type failingEncrypter struct{}

func (failingEncrypter) Encrypt([]byte, []byte) (string, error) {
	return "", errors.New("cipher unavailable")
}

type fixture struct {
	engine      *Engine
	registry    *trust.Registry
	clock       *clock.FakeClock
	trail       *audit.Trail
	crypter     *payloadcrypt.Engine
	coordinator *identity.Identity
	secret      staticSecret
}

func newFixture(t *testing.T, transport Transport, configure func(*Config)) *fixture {
	t.Helper()
	fake := clock.Fake(epoch)
	trail, err := audit.New(context.Background(), audit.Config{Sink: audit.NewMemorySink(), Clock: fake})
	if err != nil {
		t.Fatalf("audit.New: %v", err)
	}
	registry := trust.New(trust.Config{Clock: fake, Audit: trail})
	crypter, err := payloadcrypt.New(payloadcrypt.LegacySalt)
	if err != nil {
		t.Fatalf("payloadcrypt.New: %v", err)
	}
	coordinator, err := identity.New(identity.Config{
		ComponentID: "coordinator-1",
		Type:        component.SyncCoordinator,
		PrivateKey:  testutil.RSAKey(t, 0),
		Clock:       fake,
	})
	if err != nil {
		t.Fatalf("identity.New: %v", err)
	}

	secret := staticSecret("shared-secret-for-tests")
	cfg := Config{
		Identity:  coordinator,
		Registry:  registry,
		Encrypter: crypter,
		Secret:    secret,
		Transport: transport,
		Audit:     trail,
		Clock:     fake,
	}
	if configure != nil {
		configure(&cfg)
	}
	engine, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &fixture{
		engine:      engine,
		registry:    registry,
		clock:       fake,
		trail:       trail,
		crypter:     crypter,
		coordinator: coordinator,
		secret:      secret,
	}
}

// trustComponent registers a component with key slot and
// authenticates it.
func (f *fixture) trustComponent(t *testing.T, componentID string, componentType component.Type, slot int) {
	t.Helper()
	key := testutil.RSAKey(t, slot)
	ctx := context.Background()
	err := f.registry.Register(ctx, component.Identity{
		ComponentID:  componentID,
		Type:         componentType,
		PublicKeyPEM: testutil.PublicKeyPEM(t, key),
	})
	if err != nil {
		t.Fatalf("Register(%s): %v", componentID, err)
	}
	nonce := []byte("nonce-" + componentID)
	sig, err := signature.Sign(key, nonce)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !f.registry.Authenticate(ctx, componentID, sig, nonce) {
		t.Fatalf("Authenticate(%s) failed", componentID)
	}
}

func (f *fixture) records(t *testing.T) []audit.Record {
	t.Helper()
	records, err := f.trail.Records(context.Background())
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	return records
}

func policyRequest(targets ...component.Type) Request {
	return Request{
		Source:    component.SyncCoordinator,
		Targets:   targets,
		EventType: wire.PolicyUpdate,
		Payload:   map[string]any{"rule": "allow-all"},
	}
}

func TestEndToEndDistribution(t *testing.T) {
	transport := &recordingTransport{}
	f := newFixture(t, transport, nil)
	f.trustComponent(t, "proxy-1", component.EnforcementProxy, 1)
	f.trustComponent(t, "admin-1", component.AdminAPI, 2)

	event, err := f.engine.CreateAndDistribute(context.Background(),
		policyRequest(component.EnforcementProxy, component.AdminAPI))
	if err != nil {
		t.Fatalf("CreateAndDistribute: %v", err)
	}

	if event.SyncStatus != Completed || event.State != StateCompleted {
		t.Fatalf("event = %s/%s, want completed (failure %+v, outcomes %+v)",
			event.SyncStatus, event.State, event.Failure, event.Outcomes)
	}
	if got := len(transport.calls()); got != 2 {
		t.Errorf("%d dispatch calls, want 2", got)
	}

	records := f.records(t)
	if err := audit.VerifyChain(records); err != nil {
		t.Fatalf("VerifyChain: %v", err)
	}
	eventRecords := make([]audit.Record, 0, len(records))
	for _, record := range records {
		if record.EventID == event.EventID {
			eventRecords = append(eventRecords, record)
		}
	}
	if got := len(audit.Filter(eventRecords, audit.OpCreate)); got != 1 {
		t.Errorf("%d create records, want 1", got)
	}
	dispatchResults := audit.Filter(eventRecords, audit.OpDispatchResult)
	if len(dispatchResults) != 2 {
		t.Fatalf("%d dispatch-result records, want 2", len(dispatchResults))
	}
	for _, record := range dispatchResults {
		if record.Outcome != audit.Success {
			t.Errorf("dispatch-result for %s = %s", record.ComponentID, record.Outcome)
		}
	}
}

func TestPayloadBindsHashSignatureAndCiphertext(t *testing.T) {
	transport := &recordingTransport{}
	f := newFixture(t, transport, nil)
	f.trustComponent(t, "proxy-1", component.EnforcementProxy, 1)

	payload := map[string]any{"z": 1, "a": []any{"x", true}, "rule": "deny <script>"}
	event, err := f.engine.CreateAndDistribute(context.Background(), Request{
		Targets:   []component.Type{component.EnforcementProxy},
		EventType: wire.ContextUpdate,
		Payload:   payload,
	})
	if err != nil {
		t.Fatalf("CreateAndDistribute: %v", err)
	}
	if event.SourceComponent != component.SyncCoordinator {
		t.Errorf("SourceComponent = %q, want the node's own type", event.SourceComponent)
	}

	canonicalBytes, digest, err := canonical.MarshalDigest(payload)
	if err != nil {
		t.Fatalf("MarshalDigest: %v", err)
	}
	if event.PayloadHash != digest {
		t.Errorf("PayloadHash = %s, want %s", event.PayloadHash, digest)
	}
	sig, err := hex.DecodeString(event.Signature)
	if err != nil {
		t.Fatalf("signature is not hex: %v", err)
	}
	if !signature.Verify(nil, sig, canonicalBytes, f.coordinator.PublicKeyPEM()) {
		t.Error("signature does not verify over the canonical payload")
	}

	calls := transport.calls()
	if len(calls) != 1 {
		t.Fatalf("%d calls, want 1", len(calls))
	}
	delivery := calls[0]
	if delivery.Signature != event.Signature || delivery.PayloadHash != event.PayloadHash {
		t.Error("delivery headers differ from the event")
	}
	if delivery.TargetID != "proxy-1" {
		t.Errorf("TargetID = %q", delivery.TargetID)
	}
	if delivery.Envelope.EventID != event.EventID || delivery.Envelope.SourceComponent != string(component.SyncCoordinator) {
		t.Errorf("envelope = %+v", delivery.Envelope)
	}
	plaintext, err := f.crypter.Decrypt(delivery.Envelope.EncryptedPayload, f.secret)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if string(plaintext) != string(canonicalBytes) {
		t.Errorf("ciphertext decrypts to %s, want %s", plaintext, canonicalBytes)
	}
}

func TestAllOrNothingVerificationGate(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, f *fixture)
		kind  syncerr.Kind
	}{
		{
			name:  "unregistered target",
			setup: func(*testing.T, *fixture) {},
			kind:  syncerr.UnknownComponent,
		},
		{
			name: "pending target",
			setup: func(t *testing.T, f *fixture) {
				err := f.registry.Register(context.Background(), component.Identity{
					ComponentID:  "admin-1",
					Type:         component.AdminAPI,
					PublicKeyPEM: testutil.PublicKeyPEM(t, testutil.RSAKey(t, 2)),
				})
				if err != nil {
					t.Fatalf("Register: %v", err)
				}
			},
			kind: syncerr.StaleVerification,
		},
		{
			name: "expired target",
			setup: func(t *testing.T, f *fixture) {
				f.trustComponent(t, "admin-1", component.AdminAPI, 2)
				f.clock.Advance(trust.DefaultVerificationInterval + time.Second)
				f.trustComponent(t, "proxy-1", component.EnforcementProxy, 1)
			},
			kind: syncerr.StaleVerification,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			transport := &recordingTransport{}
			f := newFixture(t, transport, nil)
			f.trustComponent(t, "proxy-1", component.EnforcementProxy, 1)
			test.setup(t, f)

			event, err := f.engine.CreateAndDistribute(context.Background(),
				policyRequest(component.EnforcementProxy, component.AdminAPI))
			if err != nil {
				t.Fatalf("CreateAndDistribute: %v", err)
			}
			if event.SyncStatus != Failed || event.State != StateFailed {
				t.Fatalf("event = %s/%s, want failed", event.SyncStatus, event.State)
			}
			if got := len(transport.calls()); got != 0 {
				t.Errorf("%d dispatch calls, want 0", got)
			}
			if event.Failure == nil || event.Failure.Kind != test.kind {
				t.Errorf("failure = %+v, want kind %s", event.Failure, test.kind)
			}
			if len(event.Outcomes) != 2 || !event.Outcomes[0].Verified || event.Outcomes[1].Verified {
				t.Errorf("outcomes = %+v", event.Outcomes)
			}

			records := audit.Filter(f.records(t), audit.OpTargetVerification)
			if len(records) != 1 || records[0].Outcome != audit.Failure {
				t.Fatalf("target-verification records = %+v", records)
			}
			if records[0].Detail[string(component.AdminAPI)] != string(test.kind) {
				t.Errorf("detail = %v", records[0].Detail)
			}
			if got := len(audit.Filter(f.records(t), audit.OpDispatchResult)); got != 0 {
				t.Errorf("%d dispatch-result records, want 0", got)
			}
		})
	}
}

func TestPartialDispatchIndependence(t *testing.T) {
	transport := &recordingTransport{failing: map[component.Type]bool{component.AdminAPI: true}}
	f := newFixture(t, transport, nil)
	f.trustComponent(t, "proxy-1", component.EnforcementProxy, 1)
	f.trustComponent(t, "admin-1", component.AdminAPI, 2)
	f.trustComponent(t, "tenant-1", component.TenantAdmin, 3)

	event, err := f.engine.CreateAndDistribute(context.Background(),
		policyRequest(component.EnforcementProxy, component.AdminAPI, component.TenantAdmin))
	if err != nil {
		t.Fatalf("CreateAndDistribute: %v", err)
	}
	if event.SyncStatus != Failed {
		t.Fatalf("sync_status = %s, want failed", event.SyncStatus)
	}
	if event.Failure != nil {
		t.Errorf("event-level failure %+v set for a per-target failure", event.Failure)
	}

	calls := transport.calls()
	if len(calls) != 3 {
		t.Fatalf("%d dispatch calls, want 3", len(calls))
	}
	delivered := map[component.Type]bool{}
	for _, outcome := range event.Outcomes {
		delivered[outcome.Target] = outcome.Delivered
	}
	if !delivered[component.EnforcementProxy] || !delivered[component.TenantAdmin] || delivered[component.AdminAPI] {
		t.Errorf("delivered = %v", delivered)
	}
	admin := event.Outcomes[1]
	if admin.Failure == nil || admin.Failure.Kind != syncerr.TransportFailure || admin.StatusCode != 503 {
		t.Errorf("admin outcome = %+v", admin)
	}

	failures := 0
	for _, record := range audit.Filter(f.records(t), audit.OpDispatchResult) {
		if record.Outcome == audit.Failure {
			failures++
			if record.Detail["status_code"] != "503" || record.Detail["reason"] != string(syncerr.TransportFailure) {
				t.Errorf("failure detail = %v", record.Detail)
			}
		}
	}
	if failures != 1 {
		t.Errorf("%d failed dispatch-result records, want 1", failures)
	}
}

func TestIdenticalPayloadsGetDistinctEventIDs(t *testing.T) {
	f := newFixture(t, &recordingTransport{}, nil)
	f.trustComponent(t, "proxy-1", component.EnforcementProxy, 1)

	first, err := f.engine.CreateAndDistribute(context.Background(), policyRequest(component.EnforcementProxy))
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := f.engine.CreateAndDistribute(context.Background(), policyRequest(component.EnforcementProxy))
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if first.EventID == second.EventID {
		t.Error("identical payloads produced the same event ID")
	}
	if first.PayloadHash != second.PayloadHash {
		t.Error("identical payloads produced different hashes")
	}
}

func TestEncryptionFailureAbortsBeforeEgress(t *testing.T) {
	tests := []struct {
		name      string
		configure func(*Config)
	}{
		{"cipher error", func(cfg *Config) { cfg.Encrypter = failingEncrypter{} }},
		{"empty secret", func(cfg *Config) { cfg.Secret = staticSecret(nil) }},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			transport := &recordingTransport{}
			f := newFixture(t, transport, test.configure)
			f.trustComponent(t, "proxy-1", component.EnforcementProxy, 1)

			event, err := f.engine.CreateAndDistribute(context.Background(), policyRequest(component.EnforcementProxy))
			if err != nil {
				t.Fatalf("CreateAndDistribute: %v", err)
			}
			if event.SyncStatus != Failed || event.Failure == nil || event.Failure.Kind != syncerr.EncryptionFailure {
				t.Fatalf("event = %s, failure %+v", event.SyncStatus, event.Failure)
			}
			if got := len(transport.calls()); got != 0 {
				t.Errorf("%d dispatch calls after encryption failure", got)
			}
			if got := len(audit.Filter(f.records(t), audit.OpEncrypt)); got != 1 {
				t.Errorf("%d encrypt audit records, want 1", got)
			}
		})
	}
}

func TestInvalidRequests(t *testing.T) {
	f := newFixture(t, &recordingTransport{}, nil)
	tests := []struct {
		name    string
		request Request
	}{
		{"no targets", Request{EventType: wire.PolicyUpdate, Payload: 1}},
		{"unknown target", Request{Targets: []component.Type{"database"}, EventType: wire.PolicyUpdate, Payload: 1}},
		{"unknown event type", Request{Targets: []component.Type{component.AdminAPI}, EventType: "schema-update", Payload: 1}},
		{"foreign source", Request{Source: component.AdminAPI, Targets: []component.Type{component.AdminAPI}, EventType: wire.PolicyUpdate, Payload: 1}},
		{"unserializable payload", Request{Targets: []component.Type{component.AdminAPI}, EventType: wire.PolicyUpdate, Payload: make(chan int)}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := f.engine.CreateAndDistribute(context.Background(), test.request)
			if !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("CreateAndDistribute error = %v, want ErrInvalidRequest", err)
			}
		})
	}
	if got := len(f.engine.Events()); got != 0 {
		t.Errorf("invalid requests created %d events", got)
	}
}

func TestDuplicateTargetsDispatchOnce(t *testing.T) {
	transport := &recordingTransport{}
	f := newFixture(t, transport, nil)
	f.trustComponent(t, "proxy-1", component.EnforcementProxy, 1)
	f.trustComponent(t, "admin-1", component.AdminAPI, 2)

	event, err := f.engine.CreateAndDistribute(context.Background(),
		policyRequest(component.AdminAPI, component.EnforcementProxy, component.AdminAPI))
	if err != nil {
		t.Fatalf("CreateAndDistribute: %v", err)
	}
	want := []component.Type{component.AdminAPI, component.EnforcementProxy}
	if len(event.TargetComponents) != 2 || event.TargetComponents[0] != want[0] || event.TargetComponents[1] != want[1] {
		t.Errorf("TargetComponents = %v, want %v", event.TargetComponents, want)
	}
	if got := len(transport.calls()); got != 2 {
		t.Errorf("%d dispatch calls, want 2", got)
	}
}

func TestSlowTargetTimesOutAlone(t *testing.T) {
	transport := transportFunc(func(ctx context.Context, delivery dispatch.Delivery) dispatch.Outcome {
		if delivery.Target == component.AdminAPI {
			<-ctx.Done()
			return dispatch.Outcome{Target: delivery.Target, Err: syncerr.New(syncerr.TransportFailure, "dispatch", ctx.Err())}
		}
		return dispatch.Outcome{Target: delivery.Target, StatusCode: 200}
	})
	f := newFixture(t, transport, func(cfg *Config) { cfg.DispatchTimeout = 50 * time.Millisecond })
	f.trustComponent(t, "proxy-1", component.EnforcementProxy, 1)
	f.trustComponent(t, "admin-1", component.AdminAPI, 2)

	event, err := f.engine.CreateAndDistribute(context.Background(),
		policyRequest(component.EnforcementProxy, component.AdminAPI))
	if err != nil {
		t.Fatalf("CreateAndDistribute: %v", err)
	}
	if event.SyncStatus != Failed {
		t.Fatalf("sync_status = %s, want failed", event.SyncStatus)
	}
	if !event.Outcomes[0].Delivered || event.Outcomes[1].Delivered {
		t.Errorf("outcomes = %+v", event.Outcomes)
	}
	if failure := event.Outcomes[1].Failure; failure == nil || failure.Kind != syncerr.TransportFailure {
		t.Errorf("slow target failure = %+v", event.Outcomes[1].Failure)
	}
}

func TestJoinDeadlineBoundsUnresponsiveTransport(t *testing.T) {
	release := make(chan struct{})
	transport := transportFunc(func(_ context.Context, delivery dispatch.Delivery) dispatch.Outcome {
		if delivery.Target == component.AdminAPI {
			<-release
		}
		return dispatch.Outcome{Target: delivery.Target, StatusCode: 200}
	})
	defer close(release)

	f := newFixture(t, transport, nil)
	f.trustComponent(t, "proxy-1", component.EnforcementProxy, 1)
	f.trustComponent(t, "admin-1", component.AdminAPI, 2)

	results := make(chan SyncEvent, 1)
	go func() {
		event, err := f.engine.CreateAndDistribute(context.Background(),
			policyRequest(component.EnforcementProxy, component.AdminAPI))
		if err != nil {
			t.Errorf("CreateAndDistribute: %v", err)
		}
		results <- event
	}()

	f.clock.WaitForWaiters(1)
	f.clock.Advance(DefaultDispatchTimeout + joinGrace)

	event := testutil.RequireReceive(t, results, 5*time.Second, "waiting for the join deadline")
	if event.SyncStatus != Failed {
		t.Fatalf("sync_status = %s, want failed", event.SyncStatus)
	}
	admin := event.Outcomes[1]
	if admin.Delivered || admin.Failure == nil || admin.Failure.Kind != syncerr.TransportFailure {
		t.Errorf("unresponsive target outcome = %+v", admin)
	}
}

func TestCallerCancellationDoesNotAbortDispatch(t *testing.T) {
	transport := transportFunc(func(ctx context.Context, delivery dispatch.Delivery) dispatch.Outcome {
		if err := ctx.Err(); err != nil {
			return dispatch.Outcome{Target: delivery.Target, Err: syncerr.New(syncerr.TransportFailure, "dispatch", err)}
		}
		return dispatch.Outcome{Target: delivery.Target, StatusCode: 200}
	})
	f := newFixture(t, transport, nil)
	f.trustComponent(t, "proxy-1", component.EnforcementProxy, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	event, err := f.engine.CreateAndDistribute(ctx, policyRequest(component.EnforcementProxy))
	if err != nil {
		t.Fatalf("CreateAndDistribute: %v", err)
	}
	if event.SyncStatus != Completed {
		t.Errorf("sync_status = %s, want completed despite caller cancellation", event.SyncStatus)
	}
}

func TestCallerCancellationKeepsDurableAudit(t *testing.T) {
	tests := []struct {
		name string
		// cancelEarly cancels before CreateAndDistribute; otherwise
		// the transport cancels mid-delivery.
		cancelEarly bool
	}{
		{"cancelled during delivery", false},
		{"cancelled before create", true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			transport := transportFunc(func(_ context.Context, delivery dispatch.Delivery) dispatch.Outcome {
				cancel()
				return dispatch.Outcome{Target: delivery.Target, StatusCode: 200}
			})

			durable, err := store.Open(context.Background(), store.Config{Path: filepath.Join(t.TempDir(), "policysync.db")})
			if err != nil {
				t.Fatalf("store.Open: %v", err)
			}
			t.Cleanup(func() { durable.Close() })
			trail, err := audit.New(context.Background(), audit.Config{Sink: durable})
			if err != nil {
				t.Fatalf("audit.New: %v", err)
			}

			f := newFixture(t, transport, func(cfg *Config) { cfg.Audit = trail })
			f.trustComponent(t, "proxy-1", component.EnforcementProxy, 1)

			if test.cancelEarly {
				cancel()
			}
			event, err := f.engine.CreateAndDistribute(ctx, policyRequest(component.EnforcementProxy))
			if err != nil {
				t.Fatalf("CreateAndDistribute: %v", err)
			}
			if event.SyncStatus != Completed {
				t.Fatalf("sync_status = %s, want completed", event.SyncStatus)
			}

			records, err := durable.EventRecords(context.Background(), event.EventID)
			if err != nil {
				t.Fatalf("EventRecords: %v", err)
			}
			for _, operation := range []audit.Operation{audit.OpCreate, audit.OpTargetVerification, audit.OpDispatchResult} {
				if got := len(audit.Filter(records, operation)); got != 1 {
					t.Errorf("%s records = %d, want 1", operation, got)
				}
			}
		})
	}
}

func TestAnyOfCompletionRule(t *testing.T) {
	transport := &recordingTransport{failing: map[component.Type]bool{component.AdminAPI: true}}
	f := newFixture(t, transport, func(cfg *Config) { cfg.CompletionRule = quorum.AnyOf{} })
	f.trustComponent(t, "proxy-1", component.EnforcementProxy, 1)
	f.trustComponent(t, "admin-1", component.AdminAPI, 2)

	event, err := f.engine.CreateAndDistribute(context.Background(),
		policyRequest(component.EnforcementProxy, component.AdminAPI))
	if err != nil {
		t.Fatalf("CreateAndDistribute: %v", err)
	}
	if event.SyncStatus != Completed {
		t.Errorf("sync_status = %s, want completed under any-of", event.SyncStatus)
	}
}

func TestEventsAndSummary(t *testing.T) {
	transport := &recordingTransport{failing: map[component.Type]bool{component.AdminAPI: true}}
	f := newFixture(t, transport, nil)
	f.trustComponent(t, "proxy-1", component.EnforcementProxy, 1)
	f.trustComponent(t, "admin-1", component.AdminAPI, 2)

	first, _ := f.engine.CreateAndDistribute(context.Background(), policyRequest(component.EnforcementProxy))
	f.clock.Advance(time.Minute)
	second, _ := f.engine.CreateAndDistribute(context.Background(), Request{
		Targets:   []component.Type{component.AdminAPI},
		EventType: wire.SecurityUpdate,
		Payload:   map[string]string{"revoke": "key-7"},
	})

	events := f.engine.Events()
	if len(events) != 2 || events[0].EventID != first.EventID || events[1].EventID != second.EventID {
		t.Fatalf("Events = %+v", events)
	}

	found, ok := f.engine.Event(second.EventID)
	if !ok || found.SyncStatus != Failed {
		t.Errorf("Event(%s) = %+v, %v", second.EventID, found, ok)
	}
	found.Outcomes[0].Delivered = true
	if again, _ := f.engine.Event(second.EventID); again.Outcomes[0].Delivered {
		t.Error("mutating a returned event changed the engine's copy")
	}
	if _, ok := f.engine.Event("missing"); ok {
		t.Error("Event found a missing ID")
	}

	summary := f.engine.Summary()
	if summary.Total != 2 || summary.ByStatus[Completed] != 1 || summary.ByStatus[Failed] != 1 {
		t.Errorf("summary = %+v", summary)
	}
	if summary.ByType[wire.PolicyUpdate] != 1 || summary.ByType[wire.SecurityUpdate] != 1 {
		t.Errorf("by type = %v", summary.ByType)
	}
	if summary.LastEventAt == nil || !summary.LastEventAt.Equal(epoch.Add(time.Minute)) {
		t.Errorf("LastEventAt = %v", summary.LastEventAt)
	}
}

func TestEventHistoryIsBounded(t *testing.T) {
	f := newFixture(t, &recordingTransport{}, func(cfg *Config) { cfg.MaxEvents = 2 })
	f.trustComponent(t, "proxy-1", component.EnforcementProxy, 1)

	var ids []string
	for range 3 {
		event, err := f.engine.CreateAndDistribute(context.Background(), policyRequest(component.EnforcementProxy))
		if err != nil {
			t.Fatalf("CreateAndDistribute: %v", err)
		}
		ids = append(ids, event.EventID)
	}
	events := f.engine.Events()
	if len(events) != 2 || events[0].EventID != ids[1] {
		t.Errorf("retained %d events starting at %v, want the last two", len(events), events)
	}
	if _, ok := f.engine.Event(ids[0]); ok {
		t.Error("evicted event still retrievable")
	}
}

func TestEventHistoryEvictsAroundInFlightEvent(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	transport := transportFunc(func(_ context.Context, delivery dispatch.Delivery) dispatch.Outcome {
		if delivery.Target == component.AdminAPI {
			close(entered)
			<-release
		}
		return dispatch.Outcome{Target: delivery.Target, StatusCode: 200}
	})
	f := newFixture(t, transport, func(cfg *Config) { cfg.MaxEvents = 2 })
	f.trustComponent(t, "proxy-1", component.EnforcementProxy, 1)
	f.trustComponent(t, "admin-1", component.AdminAPI, 2)

	inFlight := make(chan SyncEvent, 1)
	go func() {
		event, _ := f.engine.CreateAndDistribute(context.Background(), policyRequest(component.AdminAPI))
		inFlight <- event
	}()
	testutil.RequireClosed(t, entered, 5*time.Second, "in-flight delivery")

	var last SyncEvent
	for range 3 {
		event, err := f.engine.CreateAndDistribute(context.Background(), policyRequest(component.EnforcementProxy))
		if err != nil {
			t.Fatalf("CreateAndDistribute: %v", err)
		}
		last = event
	}

	events := f.engine.Events()
	if len(events) != 2 {
		t.Fatalf("retained %d events while one is in flight, want 2", len(events))
	}
	if events[0].State.Terminal() || events[1].EventID != last.EventID {
		t.Errorf("retained %+v, want the in-flight event and the newest", events)
	}

	close(release)
	event := testutil.RequireReceive(t, inFlight, 5*time.Second, "in-flight event")
	if event.SyncStatus != Completed {
		t.Errorf("in-flight event finished %s, want completed", event.SyncStatus)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("New accepted an empty config")
	}
}
