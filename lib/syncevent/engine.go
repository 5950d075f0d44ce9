// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

package syncevent

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/controlcoreio/policysync/lib/audit"
	"github.com/controlcoreio/policysync/lib/canonical"
	"github.com/controlcoreio/policysync/lib/clock"
	"github.com/controlcoreio/policysync/lib/component"
	"github.com/controlcoreio/policysync/lib/dispatch"
	"github.com/controlcoreio/policysync/lib/quorum"
	"github.com/controlcoreio/policysync/lib/syncerr"
	"github.com/controlcoreio/policysync/lib/wire"
)

// DefaultDispatchTimeout bounds each target's delivery.
const DefaultDispatchTimeout = 30 * time.Second

// DefaultMaxEvents is the number of events retained for reporting.
const DefaultMaxEvents = 10000

// ErrInvalidRequest wraps every error CreateAndDistribute returns for
// a request that could never succeed.
var ErrInvalidRequest = errors.New("syncevent: invalid request")

// joinGrace is how long the join waits past the dispatch timeout for a
// transport that does not honor its context.
const joinGrace = 5 * time.Second

// Signer is the local node's identity. *identity.Identity satisfies it.
type Signer interface {
	ComponentType() component.Type
	Sign(payload []byte) ([]byte, error)
}

// Verifier gates targets. *trust.Registry satisfies it.
type Verifier interface {
	Trusted(componentType component.Type) (component.Identity, error)
}

// Encrypter seals the canonical payload. *payloadcrypt.Engine
// satisfies it.
type Encrypter interface {
	Encrypt(payload, sharedSecret []byte) (string, error)
}

// Transport delivers one envelope to one target. *dispatch.Dispatcher
// satisfies it.
type Transport interface {
	Deliver(ctx context.Context, delivery dispatch.Delivery) dispatch.Outcome
}

// Auditor records lifecycle steps. *audit.Trail satisfies it.
type Auditor interface {
	Emit(ctx context.Context, entry audit.Entry) error
}

// SecretSource holds the shared secret. *secret.Buffer satisfies it.
type SecretSource interface {
	Bytes() []byte
}

// Config wires an Engine to its collaborators. Identity, Registry,
// Encrypter, Secret, and Transport are required.
type Config struct {
	Identity  Signer
	Registry  Verifier
	Encrypter Encrypter
	Secret    SecretSource
	Transport Transport

	// Audit receives create, target-verification, encrypt, and
	// dispatch-result records. Optional.
	Audit Auditor

	// CompletionRule decides the terminal status from per-target
	// delivery results. Defaults to quorum.AllOf, under which
	// "completed" means every target acknowledged the event.
	CompletionRule quorum.Rule

	// DispatchTimeout bounds each target's delivery. Defaults to
	// DefaultDispatchTimeout.
	DispatchTimeout time.Duration

	// MaxEvents bounds the in-memory event history. The oldest
	// terminal events are dropped wherever they sit; events still in
	// flight are never dropped. Defaults to DefaultMaxEvents.
	MaxEvents int

	// Clock stamps events. Defaults to clock.Real().
	Clock clock.Clock

	// NewEventID allocates event IDs. Defaults to UUIDv7.
	NewEventID func() (string, error)

	// Logger receives lifecycle transitions. If nil, logging is
	// discarded.
	Logger *slog.Logger
}

// Engine creates and distributes sync events. It is safe for
// concurrent use; concurrent events proceed independently.
type Engine struct {
	identity        Signer
	registry        Verifier
	encrypter       Encrypter
	secret          SecretSource
	transport       Transport
	audit           Auditor
	completionRule  quorum.Rule
	dispatchTimeout time.Duration
	maxEvents       int
	clock           clock.Clock
	newEventID      func() (string, error)
	logger          *slog.Logger

	mu     sync.RWMutex
	events []*SyncEvent
	byID   map[string]*SyncEvent
}

// New validates cfg and returns an Engine.
func New(cfg Config) (*Engine, error) {
	var missing []string
	if cfg.Identity == nil {
		missing = append(missing, "Identity")
	}
	if cfg.Registry == nil {
		missing = append(missing, "Registry")
	}
	if cfg.Encrypter == nil {
		missing = append(missing, "Encrypter")
	}
	if cfg.Secret == nil {
		missing = append(missing, "Secret")
	}
	if cfg.Transport == nil {
		missing = append(missing, "Transport")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("syncevent: missing required config: %s", strings.Join(missing, ", "))
	}

	engine := &Engine{
		identity:        cfg.Identity,
		registry:        cfg.Registry,
		encrypter:       cfg.Encrypter,
		secret:          cfg.Secret,
		transport:       cfg.Transport,
		audit:           cfg.Audit,
		completionRule:  cfg.CompletionRule,
		dispatchTimeout: cfg.DispatchTimeout,
		maxEvents:       cfg.MaxEvents,
		clock:           cfg.Clock,
		newEventID:      cfg.NewEventID,
		logger:          cfg.Logger,
		byID:            make(map[string]*SyncEvent),
	}
	if engine.completionRule == nil {
		engine.completionRule = quorum.AllOf{}
	}
	if engine.dispatchTimeout <= 0 {
		engine.dispatchTimeout = DefaultDispatchTimeout
	}
	if engine.maxEvents <= 0 {
		engine.maxEvents = DefaultMaxEvents
	}
	if engine.clock == nil {
		engine.clock = clock.Real()
	}
	if engine.newEventID == nil {
		engine.newEventID = newUUIDv7
	}
	if engine.logger == nil {
		engine.logger = slog.New(slog.DiscardHandler)
	}
	return engine, nil
}

func newUUIDv7() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// CreateAndDistribute runs one sync event to its terminal status and
// returns a copy of it. See the package documentation for which
// failures are returned as errors.
func (e *Engine) CreateAndDistribute(ctx context.Context, request Request) (SyncEvent, error) {
	source, targets, err := e.validate(request)
	if err != nil {
		return SyncEvent{}, err
	}

	canonicalPayload, payloadHash, err := canonical.MarshalDigest(request.Payload)
	if err != nil {
		return SyncEvent{}, fmt.Errorf("%w: payload: %w", ErrInvalidRequest, err)
	}
	signature, err := e.identity.Sign(canonicalPayload)
	if err != nil {
		return SyncEvent{}, fmt.Errorf("syncevent: signing payload: %w", err)
	}
	eventID, err := e.newEventID()
	if err != nil {
		return SyncEvent{}, fmt.Errorf("syncevent: allocating event ID: %w", err)
	}

	event := &SyncEvent{
		EventID:          eventID,
		Timestamp:        e.clock.Now().UTC(),
		SourceComponent:  source,
		TargetComponents: targets,
		EventType:        request.EventType,
		PayloadHash:      payloadHash,
		Signature:        hex.EncodeToString(signature),
		SyncStatus:       Pending,
		State:            StateCreated,
	}
	e.insert(event)

	// Audit records outlive the caller: a client that disconnects
	// mid-event must still leave every record in the trail.
	auditCtx := context.WithoutCancel(ctx)
	logger := e.logger.With("event_id", eventID)
	logger.Info("sync event created",
		"event_type", request.EventType,
		"targets", targets,
		"payload_hash", payloadHash,
	)
	e.emit(auditCtx, audit.Entry{
		Operation: audit.OpCreate,
		EventID:   eventID,
		Outcome:   audit.Success,
		Detail: map[string]string{
			"source_component": string(source),
			"event_type":       string(request.EventType),
			"targets":          joinTypes(targets),
			"payload_hash":     payloadHash,
		},
	})

	outcomes, err := e.verifyTargets(auditCtx, event, targets)
	if err != nil {
		return e.fail(event, outcomes, err), nil
	}

	e.transition(event, StateEncrypting)
	ciphertext, err := e.encrypter.Encrypt(canonicalPayload, e.secret.Bytes())
	if err != nil {
		failure := syncerr.New(syncerr.EncryptionFailure, "encrypt", err)
		e.emit(auditCtx, audit.Entry{
			Operation: audit.OpEncrypt,
			EventID:   eventID,
			Outcome:   audit.Failure,
			Detail:    map[string]string{"reason": string(syncerr.EncryptionFailure)},
		})
		return e.fail(event, outcomes, failure), nil
	}

	e.transition(event, StateDispatching)
	envelope := wire.Envelope{
		EventID:          eventID,
		EventType:        request.EventType,
		SourceComponent:  string(source),
		Timestamp:        event.Timestamp,
		EncryptedPayload: ciphertext,
	}
	e.dispatchAll(auditCtx, event, envelope, outcomes)

	results := make([]quorum.Result, len(outcomes))
	for index, outcome := range outcomes {
		if outcome.Delivered {
			results[index] = quorum.Passed
		} else {
			results[index] = quorum.Rejected
		}
	}
	if quorum.Evaluate(e.completionRule, results).State == quorum.Satisfied {
		return e.finish(event, StateCompleted, outcomes, nil), nil
	}
	return e.finish(event, StateFailed, outcomes, nil), nil
}

func (e *Engine) validate(request Request) (component.Type, []component.Type, error) {
	source := request.Source
	own := e.identity.ComponentType()
	if source == "" {
		source = own
	}
	if source != own {
		return "", nil, fmt.Errorf("%w: source %q is not this node's type %q", ErrInvalidRequest, source, own)
	}
	if !request.EventType.Valid() {
		return "", nil, fmt.Errorf("%w: unknown event type %q", ErrInvalidRequest, request.EventType)
	}
	targets := dedupeTargets(request.Targets)
	if len(targets) == 0 {
		return "", nil, fmt.Errorf("%w: at least one target is required", ErrInvalidRequest)
	}
	for _, target := range targets {
		if !target.Valid() {
			return "", nil, fmt.Errorf("%w: unknown target type %q", ErrInvalidRequest, target)
		}
	}
	return source, targets, nil
}

// verifyTargets applies the all-or-nothing verification gate. The
// returned outcomes always have one entry per target.
func (e *Engine) verifyTargets(ctx context.Context, event *SyncEvent, targets []component.Type) ([]TargetOutcome, error) {
	e.transition(event, StateTargetVerification)

	outcomes := make([]TargetOutcome, len(targets))
	results := make([]quorum.Result, len(targets))
	detail := map[string]string{"rule": quorum.AllOf{}.String()}
	var firstFailure error
	for index, target := range targets {
		outcomes[index].Target = target
		identity, err := e.registry.Trusted(target)
		if identity.ComponentID != "" {
			outcomes[index].ComponentID = identity.ComponentID
		}
		if err != nil {
			outcomes[index].Failure = syncerr.FailureOf(err)
			results[index] = quorum.Rejected
			detail[string(target)] = string(syncerr.KindOf(err))
			if firstFailure == nil {
				firstFailure = err
			}
			continue
		}
		outcomes[index].Verified = true
		results[index] = quorum.Passed
		detail[string(target)] = "verified"
	}

	verdict := quorum.Evaluate(quorum.AllOf{}, results)
	entry := audit.Entry{
		Operation: audit.OpTargetVerification,
		EventID:   event.EventID,
		Outcome:   audit.Success,
		Detail:    detail,
	}
	if verdict.State != quorum.Satisfied {
		entry.Outcome = audit.Failure
	}
	e.emit(ctx, entry)

	if verdict.State != quorum.Satisfied {
		if firstFailure == nil {
			firstFailure = syncerr.New(syncerr.UnknownComponent, "target-verification", errors.New("no targets"))
		}
		return outcomes, firstFailure
	}
	return outcomes, nil
}

// dispatchAll delivers envelope to every target concurrently and fills
// in outcomes. It returns when every target has reported or the join
// deadline passes, whichever is first. ctx must already be detached
// from the caller's cancellation.
func (e *Engine) dispatchAll(ctx context.Context, event *SyncEvent, envelope wire.Envelope, outcomes []TargetOutcome) {
	type report struct {
		index   int
		outcome dispatch.Outcome
	}

	reports := make(chan report, len(outcomes))
	for index := range outcomes {
		delivery := dispatch.Delivery{
			Target:      outcomes[index].Target,
			TargetID:    outcomes[index].ComponentID,
			Envelope:    envelope,
			Signature:   event.Signature,
			PayloadHash: event.PayloadHash,
		}
		go func() {
			targetCtx, cancel := context.WithTimeout(ctx, e.dispatchTimeout)
			defer cancel()
			reports <- report{index: index, outcome: e.transport.Deliver(targetCtx, delivery)}
		}()
	}

	reported := make([]bool, len(outcomes))
	deadline := e.clock.After(e.dispatchTimeout + joinGrace)
	for pending := len(outcomes); pending > 0; {
		select {
		case result := <-reports:
			reported[result.index] = true
			pending--
			outcome := &outcomes[result.index]
			outcome.StatusCode = result.outcome.StatusCode
			outcome.LatencyMillis = result.outcome.Latency.Milliseconds()
			if result.outcome.Succeeded() {
				outcome.Delivered = true
			} else {
				outcome.Failure = syncerr.FailureOf(result.outcome.Err)
			}
		case <-deadline:
			for index, done := range reported {
				if !done {
					outcomes[index].Failure = syncerr.FailureOf(&syncerr.Error{
						Kind:          syncerr.TransportFailure,
						Op:            "dispatch",
						ComponentID:   outcomes[index].ComponentID,
						ComponentType: string(outcomes[index].Target),
						Err:           fmt.Errorf("no result within %s", e.dispatchTimeout+joinGrace),
					})
				}
			}
			pending = 0
		}
	}

	for _, outcome := range outcomes {
		entry := audit.Entry{
			Operation:   audit.OpDispatchResult,
			ComponentID: outcome.ComponentID,
			EventID:     event.EventID,
			Outcome:     audit.Success,
			Detail: map[string]string{
				"target":     string(outcome.Target),
				"latency_ms": fmt.Sprint(outcome.LatencyMillis),
			},
		}
		if outcome.StatusCode != 0 {
			entry.Detail["status_code"] = fmt.Sprint(outcome.StatusCode)
		}
		if !outcome.Delivered {
			entry.Outcome = audit.Failure
			if outcome.Failure != nil {
				entry.Detail["reason"] = string(outcome.Failure.Kind)
			}
		}
		e.emit(ctx, entry)
	}
}

func (e *Engine) insert(event *SyncEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	e.byID[event.EventID] = event
	if len(e.events) <= e.maxEvents {
		return
	}
	excess := len(e.events) - e.maxEvents
	kept := e.events[:0]
	for _, retained := range e.events {
		if excess > 0 && retained.State.Terminal() {
			delete(e.byID, retained.EventID)
			excess--
			continue
		}
		kept = append(kept, retained)
	}
	clear(e.events[len(kept):])
	e.events = kept
}

func (e *Engine) transition(event *SyncEvent, state State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if event.State.Terminal() {
		return
	}
	event.State = state
}

func (e *Engine) fail(event *SyncEvent, outcomes []TargetOutcome, cause error) SyncEvent {
	return e.finish(event, StateFailed, outcomes, syncerr.FailureOf(cause))
}

// finish assigns the terminal status. The first call wins.
func (e *Engine) finish(event *SyncEvent, state State, outcomes []TargetOutcome, failure *syncerr.Failure) SyncEvent {
	e.mu.Lock()
	if !event.State.Terminal() {
		finishedAt := e.clock.Now().UTC()
		event.State = state
		event.SyncStatus = Failed
		if state == StateCompleted {
			event.SyncStatus = Completed
		}
		event.Failure = failure
		event.Outcomes = outcomes
		event.FinishedAt = &finishedAt
	}
	snapshot := event.clone()
	e.mu.Unlock()

	attributes := []any{"event_id", snapshot.EventID, "sync_status", snapshot.SyncStatus}
	if snapshot.Failure != nil {
		attributes = append(attributes, "failure", snapshot.Failure.Kind, "error", snapshot.Failure.Message)
	}
	if snapshot.SyncStatus == Completed {
		e.logger.Info("sync event finished", attributes...)
	} else {
		e.logger.Warn("sync event finished", attributes...)
	}
	return snapshot
}

func (e *Engine) emit(ctx context.Context, entry audit.Entry) {
	if e.audit == nil {
		return
	}
	if err := e.audit.Emit(ctx, entry); err != nil {
		e.logger.Error("sync audit failed", "operation", entry.Operation, "event_id", entry.EventID, "error", err)
	}
}

func joinTypes(types []component.Type) string {
	names := make([]string, len(types))
	for index, componentType := range types {
		names[index] = string(componentType)
	}
	return strings.Join(names, ",")
}
