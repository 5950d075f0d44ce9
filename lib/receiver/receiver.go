// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

package receiver

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/controlcoreio/policysync/lib/audit"
	"github.com/controlcoreio/policysync/lib/canonical"
	"github.com/controlcoreio/policysync/lib/clock"
	"github.com/controlcoreio/policysync/lib/component"
	"github.com/controlcoreio/policysync/lib/identity"
	"github.com/controlcoreio/policysync/lib/netutil"
	"github.com/controlcoreio/policysync/lib/signature"
	"github.com/controlcoreio/policysync/lib/store"
	"github.com/controlcoreio/policysync/lib/syncerr"
	"github.com/controlcoreio/policysync/lib/wire"
)

// Nonce size bounds for /challenge.
const (
	MinimumNonceSize = 16
	MaximumNonceSize = 1024
)

// replayCleanupThreshold is the replay cache size at which expired
// entries are swept.
const replayCleanupThreshold = 1024

// Self is this node's identity. *identity.Identity satisfies it.
type Self interface {
	ComponentID() string
	ComponentType() component.Type
	Sign(payload []byte) ([]byte, error)
}

// Registry is the trust registry. *trust.Registry satisfies it.
type Registry interface {
	Get(componentID string) (component.Identity, bool)
	Authenticate(ctx context.Context, componentID string, sig, payload []byte) bool
}

// Decrypter opens envelope payloads. *payloadcrypt.Engine satisfies
// it.
type Decrypter interface {
	Decrypt(blob string, sharedSecret []byte) ([]byte, error)
}

// SecretSource holds the shared secret. *secret.Buffer satisfies it.
type SecretSource interface {
	Bytes() []byte
}

// Ledger remembers applied events and the current payload per event
// type. *store.Store satisfies it.
type Ledger interface {
	LookupApplied(ctx context.Context, eventType, eventID, payloadHash string) (*store.Applied, error)
	RecordApplied(ctx context.Context, entry store.Applied) (bool, error)
}

// Update is a verified payload handed to the Sink.
type Update struct {
	EventID     string
	EventType   wire.EventType
	Source      component.Type
	SourceID    string
	Timestamp   time.Time
	PayloadHash string

	// Payload is the canonical JSON the sender signed.
	Payload []byte
}

// Sink stores verified updates: the policy or version-control
// backend. An error means the update was not applied and the delivery
// is answered 500 so the sender records a failure.
type Sink interface {
	Apply(ctx context.Context, update Update) error
}

// Auditor records receive and challenge outcomes. *audit.Trail
// satisfies it.
type Auditor interface {
	Emit(ctx context.Context, entry audit.Entry) error
}

// Config wires a Receiver. Every field except Audit, Clock, and Logger
// is required.
type Config struct {
	Self      Self
	Registry  Registry
	Decrypter Decrypter
	Secret    SecretSource
	Ledger    Ledger
	Sink      Sink
	Audit     Auditor
	Clock     clock.Clock
	Logger    *slog.Logger
}

// Receiver handles inbound sync deliveries and challenges.
type Receiver struct {
	self      Self
	registry  Registry
	decrypter Decrypter
	secret    SecretSource
	ledger    Ledger
	sink      Sink
	audit     Auditor
	clock     clock.Clock
	logger    *slog.Logger
	replay    *identity.ReplayCache

	// applyMu serializes the ledger check, the sink call, and the
	// ledger write, so two concurrent deliveries of one payload apply
	// it once.
	applyMu sync.Mutex
}

// New validates cfg and returns a Receiver.
func New(cfg Config) (*Receiver, error) {
	var missing []string
	for name, present := range map[string]bool{
		"Self":      cfg.Self != nil,
		"Registry":  cfg.Registry != nil,
		"Decrypter": cfg.Decrypter != nil,
		"Secret":    cfg.Secret != nil,
		"Ledger":    cfg.Ledger != nil,
		"Sink":      cfg.Sink != nil,
	} {
		if !present {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("receiver: missing required config: %s", strings.Join(missing, ", "))
	}

	timeSource := cfg.Clock
	if timeSource == nil {
		timeSource = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Receiver{
		self:      cfg.Self,
		registry:  cfg.Registry,
		decrypter: cfg.Decrypter,
		secret:    cfg.Secret,
		ledger:    cfg.Ledger,
		sink:      cfg.Sink,
		audit:     cfg.Audit,
		clock:     timeSource,
		logger:    logger,
		replay:    identity.NewReplayCache(),
	}, nil
}

// Handler returns the HTTP handler serving /sync and /challenge.
func (r *Receiver) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+wire.SyncPath, r.handleSync)
	mux.HandleFunc("POST "+wire.ChallengePath, r.handleChallenge)
	return mux
}

// rejection is a refused request: the HTTP status, the failure kind
// reported to the sender, and the reason logged and audited.
type rejection struct {
	status int
	kind   syncerr.Kind
	reason error
}

func (e *rejection) Error() string { return e.reason.Error() }

func reject(status int, kind syncerr.Kind, format string, args ...any) *rejection {
	return &rejection{status: status, kind: kind, reason: fmt.Errorf(format, args...)}
}

// authenticateBearer verifies the request's bearer token and returns
// the issuer's registry entry.
func (r *Receiver) authenticateBearer(request *http.Request) (component.Identity, *rejection) {
	token, ok := strings.CutPrefix(request.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		return component.Identity{}, reject(http.StatusUnauthorized, syncerr.SignatureInvalid, "missing bearer token")
	}

	issuerID, err := identity.TokenIssuer(token)
	if err != nil {
		return component.Identity{}, reject(http.StatusUnauthorized, syncerr.SignatureInvalid, "%v", err)
	}
	issuer, registered := r.registry.Get(issuerID)
	if !registered {
		return component.Identity{}, reject(http.StatusUnauthorized, syncerr.UnknownComponent, "token issuer %q is not registered", issuerID)
	}
	publicKey, err := signature.ParsePublicKeyPEM(issuer.PublicKeyPEM)
	if err != nil {
		return issuer, reject(http.StatusUnauthorized, syncerr.SignatureInvalid, "issuer key unusable: %v", err)
	}

	now := r.clock.Now()
	claims, err := identity.VerifyToken(publicKey, token, identity.Expected{
		Issuer:   issuerID,
		Audience: r.self.ComponentType(),
		Time:     now,
	})
	if err != nil {
		return issuer, reject(http.StatusUnauthorized, syncerr.SignatureInvalid, "%v", err)
	}
	if !r.replay.Accept(claims.ID, claims.ExpiresAt) {
		return issuer, reject(http.StatusUnauthorized, syncerr.SignatureInvalid, "token %s already used", claims.ID)
	}
	if r.replay.Len() >= replayCleanupThreshold {
		r.replay.Cleanup(now)
	}
	return issuer, nil
}

func (r *Receiver) handleSync(writer http.ResponseWriter, request *http.Request) {
	ctx := request.Context()
	eventID := request.Header.Get(wire.HeaderEventID)

	issuer, response, failure := r.receive(ctx, writer, request)
	entry := audit.Entry{
		Operation:   audit.OpReceive,
		ComponentID: issuer.ComponentID,
		EventID:     eventID,
		Outcome:     audit.Success,
		Detail:      map[string]string{"payload_hash": request.Header.Get(wire.HeaderHash)},
	}
	if failure != nil {
		entry.Outcome = audit.Failure
		entry.Detail["reason"] = string(failure.kind)
		entry.Detail["status_code"] = fmt.Sprint(failure.status)
		r.emit(ctx, entry)
		r.logger.Warn("sync delivery rejected",
			"event_id", eventID,
			"component_id", issuer.ComponentID,
			"status", failure.status,
			"reason", failure.kind,
			"error", failure.reason,
		)
		netutil.WriteError(writer, failure.status, string(failure.kind), failure.reason.Error())
		return
	}

	entry.Detail["status"] = string(response.Status)
	r.emit(ctx, entry)
	r.logger.Info("sync delivery accepted",
		"event_id", response.EventID,
		"component_id", issuer.ComponentID,
		"status", response.Status,
		"payload_hash", response.PayloadHash,
	)
	netutil.WriteJSON(writer, http.StatusOK, response)
}

func (r *Receiver) receive(ctx context.Context, writer http.ResponseWriter, request *http.Request) (component.Identity, wire.SyncResponse, *rejection) {
	issuer, failure := r.authenticateBearer(request)
	if failure != nil {
		return issuer, wire.SyncResponse{}, failure
	}

	var envelope wire.Envelope
	if err := netutil.DecodeRequest(writer, request, &envelope); err != nil {
		return issuer, wire.SyncResponse{}, reject(http.StatusBadRequest, "", "%v", err)
	}
	if envelope.EventID == "" || envelope.EventID != request.Header.Get(wire.HeaderEventID) {
		return issuer, wire.SyncResponse{}, reject(http.StatusBadRequest, "", "event ID header does not match envelope")
	}
	sig, err := hex.DecodeString(request.Header.Get(wire.HeaderSignature))
	if err != nil || len(sig) == 0 {
		return issuer, wire.SyncResponse{}, reject(http.StatusBadRequest, "", "malformed %s header", wire.HeaderSignature)
	}
	declaredHash := strings.ToLower(request.Header.Get(wire.HeaderHash))
	if decoded, err := hex.DecodeString(declaredHash); err != nil || len(decoded) != 32 {
		return issuer, wire.SyncResponse{}, reject(http.StatusBadRequest, "", "malformed %s header", wire.HeaderHash)
	}
	if envelope.SourceComponent != string(issuer.Type) {
		return issuer, wire.SyncResponse{}, reject(http.StatusUnauthorized, syncerr.UnknownComponent,
			"source_component %q does not match issuer type %q", envelope.SourceComponent, issuer.Type)
	}

	plaintext, err := r.decrypter.Decrypt(envelope.EncryptedPayload, r.secret.Bytes())
	if err != nil {
		return issuer, wire.SyncResponse{}, reject(http.StatusUnprocessableEntity, syncerr.IntegrityMismatch, "%v", err)
	}
	if !json.Valid(plaintext) {
		return issuer, wire.SyncResponse{}, reject(http.StatusUnprocessableEntity, syncerr.IntegrityMismatch, "decrypted payload is not JSON")
	}
	if actual := canonical.Digest(plaintext); actual != declaredHash {
		return issuer, wire.SyncResponse{}, reject(http.StatusUnprocessableEntity, syncerr.IntegrityMismatch,
			"payload hash %s does not match declared %s", actual, declaredHash)
	}
	if !r.registry.Authenticate(ctx, issuer.ComponentID, sig, plaintext) {
		return issuer, wire.SyncResponse{}, reject(http.StatusUnauthorized, syncerr.SignatureInvalid, "payload signature does not verify")
	}

	status, err := r.apply(ctx, Update{
		EventID:     envelope.EventID,
		EventType:   envelope.EventType,
		Source:      issuer.Type,
		SourceID:    issuer.ComponentID,
		Timestamp:   envelope.Timestamp,
		PayloadHash: declaredHash,
		Payload:     plaintext,
	})
	if err != nil {
		return issuer, wire.SyncResponse{}, reject(http.StatusInternalServerError, "", "%v", err)
	}
	return issuer, wire.SyncResponse{Status: status, EventID: envelope.EventID, PayloadHash: declaredHash}, nil
}

// apply hands update to the sink unless the same event was applied
// before or its payload is already the current one for its event type.
// A payload that was superseded is applied again, so rollbacks take
// effect.
func (r *Receiver) apply(ctx context.Context, update Update) (wire.SyncStatus, error) {
	r.applyMu.Lock()
	defer r.applyMu.Unlock()

	previous, err := r.ledger.LookupApplied(ctx, string(update.EventType), update.EventID, update.PayloadHash)
	if err != nil {
		return "", err
	}
	if previous != nil {
		r.logger.Info("duplicate payload acknowledged",
			"event_id", update.EventID,
			"event_type", update.EventType,
			"applied_event_id", previous.EventID,
			"payload_hash", update.PayloadHash,
		)
		return wire.Duplicate, nil
	}

	if err := r.sink.Apply(ctx, update); err != nil {
		return "", fmt.Errorf("applying update: %w", err)
	}
	_, err = r.ledger.RecordApplied(ctx, store.Applied{
		EventID:     update.EventID,
		EventType:   string(update.EventType),
		PayloadHash: update.PayloadHash,
		Source:      update.SourceID,
		AppliedAt:   r.clock.Now(),
	})
	if err != nil {
		// The sink already has the update; a redelivery will apply it
		// again, which the sink must tolerate.
		r.logger.Error("recording applied event failed", "event_id", update.EventID, "payload_hash", update.PayloadHash, "error", err)
	}
	return wire.Applied, nil
}

func (r *Receiver) handleChallenge(writer http.ResponseWriter, request *http.Request) {
	ctx := request.Context()
	issuer, response, failure := r.challenge(writer, request)

	entry := audit.Entry{
		Operation:   audit.OpChallenge,
		ComponentID: issuer.ComponentID,
		Outcome:     audit.Success,
	}
	if failure != nil {
		entry.Outcome = audit.Failure
		entry.Detail = map[string]string{"reason": string(failure.kind), "status_code": fmt.Sprint(failure.status)}
		r.emit(ctx, entry)
		r.logger.Warn("challenge rejected", "component_id", issuer.ComponentID, "status", failure.status, "error", failure.reason)
		netutil.WriteError(writer, failure.status, string(failure.kind), failure.reason.Error())
		return
	}
	r.emit(ctx, entry)
	netutil.WriteJSON(writer, http.StatusOK, response)
}

func (r *Receiver) challenge(writer http.ResponseWriter, request *http.Request) (component.Identity, wire.ChallengeResponse, *rejection) {
	issuer, failure := r.authenticateBearer(request)
	if failure != nil {
		return issuer, wire.ChallengeResponse{}, failure
	}

	var body wire.ChallengeRequest
	if err := netutil.DecodeRequest(writer, request, &body); err != nil {
		return issuer, wire.ChallengeResponse{}, reject(http.StatusBadRequest, "", "%v", err)
	}
	nonce, err := hex.DecodeString(body.Nonce)
	if err != nil || len(nonce) < MinimumNonceSize || len(nonce) > MaximumNonceSize {
		return issuer, wire.ChallengeResponse{}, reject(http.StatusBadRequest, "",
			"nonce must be %d to %d hex-encoded bytes", MinimumNonceSize, MaximumNonceSize)
	}

	sig, err := r.self.Sign(wire.ChallengeMessage(nonce))
	if err != nil {
		return issuer, wire.ChallengeResponse{}, reject(http.StatusInternalServerError, "", "signing nonce: %v", err)
	}
	return issuer, wire.ChallengeResponse{
		ComponentID: r.self.ComponentID(),
		Signature:   hex.EncodeToString(sig),
	}, nil
}

func (r *Receiver) emit(ctx context.Context, entry audit.Entry) {
	if r.audit == nil {
		return
	}
	if err := r.audit.Emit(context.WithoutCancel(ctx), entry); err != nil {
		r.logger.Error("receiver audit failed", "operation", entry.Operation, "error", err)
	}
}
