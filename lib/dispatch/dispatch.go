// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/controlcoreio/policysync/lib/clock"
	"github.com/controlcoreio/policysync/lib/component"
	"github.com/controlcoreio/policysync/lib/netutil"
	"github.com/controlcoreio/policysync/lib/syncerr"
	"github.com/controlcoreio/policysync/lib/version"
	"github.com/controlcoreio/policysync/lib/wire"
)

// TokenIssuer mints bearer tokens. *identity.Identity satisfies it.
type TokenIssuer interface {
	IssueToken(audience component.Type, ttl time.Duration) (string, error)
}

// Config configures a Dispatcher.
type Config struct {
	// Endpoints maps each reachable component type to its base URL
	// ("https://proxy.internal:8443"). Required.
	Endpoints map[component.Type]string

	// Tokens mints the bearer token for each request. Required.
	Tokens TokenIssuer

	// TokenTTL is the lifetime of minted tokens. Zero means the
	// issuer's default.
	TokenTTL time.Duration

	// Client sends requests. Defaults to a client with no overall
	// timeout; callers bound each delivery through its context.
	Client *http.Client

	// Clock measures delivery latency. Defaults to clock.Real().
	Clock clock.Clock

	// Logger receives one line per delivery. If nil, logging is
	// discarded.
	Logger *slog.Logger
}

// Dispatcher sends envelopes and challenges to receiving nodes. It is
// safe for concurrent use.
type Dispatcher struct {
	endpoints map[component.Type]string
	tokens    TokenIssuer
	tokenTTL  time.Duration
	client    *http.Client
	clock     clock.Clock
	logger    *slog.Logger
}

// New validates cfg and returns a Dispatcher.
func New(cfg Config) (*Dispatcher, error) {
	if cfg.Tokens == nil {
		return nil, errors.New("dispatch: Tokens is required")
	}
	if len(cfg.Endpoints) == 0 {
		return nil, errors.New("dispatch: at least one endpoint is required")
	}

	endpoints := make(map[component.Type]string, len(cfg.Endpoints))
	var errs []error
	for componentType, base := range cfg.Endpoints {
		if !componentType.Valid() {
			errs = append(errs, fmt.Errorf("dispatch: endpoint for unknown component type %q", componentType))
			continue
		}
		parsed, err := url.Parse(base)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			errs = append(errs, fmt.Errorf("dispatch: endpoint for %s: %q is not an http(s) URL", componentType, base))
			continue
		}
		endpoints[componentType] = strings.TrimSuffix(base, "/")
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	timeSource := cfg.Clock
	if timeSource == nil {
		timeSource = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Dispatcher{
		endpoints: endpoints,
		tokens:    cfg.Tokens,
		tokenTTL:  cfg.TokenTTL,
		client:    client,
		clock:     timeSource,
		logger:    logger,
	}, nil
}

// Endpoint returns the base URL configured for target.
func (d *Dispatcher) Endpoint(target component.Type) (string, bool) {
	base, ok := d.endpoints[target]
	return base, ok
}

// Delivery is one envelope addressed to one target.
type Delivery struct {
	// Target is the receiving component's type, which selects the
	// endpoint and the token audience.
	Target component.Type

	// TargetID is the registry ID the target resolved to. It is only
	// used for logging and audit detail.
	TargetID string

	Envelope wire.Envelope

	// Signature is the hex RSA-PSS signature over the canonical
	// payload.
	Signature string

	// PayloadHash is the hex SHA-256 of the canonical payload.
	PayloadHash string
}

// Outcome is the result of one delivery.
type Outcome struct {
	Target component.Type

	// StatusCode is the HTTP status of the reply, or zero if no
	// reply was received.
	StatusCode int

	// Latency is the time from sending to the end of the reply.
	Latency time.Duration

	// Err is nil on success and a *syncerr.Error otherwise.
	Err error
}

// Succeeded reports whether the target acknowledged the delivery with
// a 2xx reply.
func (o Outcome) Succeeded() bool { return o.Err == nil }

// Deliver POSTs delivery to the target's /sync endpoint.
func (d *Dispatcher) Deliver(ctx context.Context, delivery Delivery) Outcome {
	outcome := Outcome{Target: delivery.Target}
	fail := func(kind syncerr.Kind, cause error) Outcome {
		outcome.Err = &syncerr.Error{
			Kind:          kind,
			Op:            "dispatch",
			ComponentID:   delivery.TargetID,
			ComponentType: string(delivery.Target),
			Err:           cause,
		}
		d.logger.Warn("sync delivery failed",
			"event_id", delivery.Envelope.EventID,
			"target", delivery.Target,
			"component_id", delivery.TargetID,
			"status", outcome.StatusCode,
			"error", outcome.Err,
		)
		return outcome
	}

	body, err := json.Marshal(delivery.Envelope)
	if err != nil {
		return fail(syncerr.TransportFailure, fmt.Errorf("encoding envelope: %w", err))
	}

	start := d.clock.Now()
	response, err := d.post(ctx, delivery.Target, wire.SyncPath, body, map[string]string{
		wire.HeaderEventID:   delivery.Envelope.EventID,
		wire.HeaderSignature: delivery.Signature,
		wire.HeaderHash:      delivery.PayloadHash,
	})
	if err != nil {
		outcome.Latency = d.clock.Now().Sub(start)
		return fail(syncerr.TransportFailure, err)
	}
	defer response.Body.Close()
	outcome.StatusCode = response.StatusCode

	if response.StatusCode < 200 || response.StatusCode > 299 {
		message := netutil.ErrorBody(response.Body)
		outcome.Latency = d.clock.Now().Sub(start)
		return fail(classifyStatus(response.StatusCode), fmt.Errorf("HTTP %d: %s", response.StatusCode, message))
	}

	// Drain so the connection can be reused. The acknowledgement body
	// is informational.
	var acknowledgement wire.SyncResponse
	if err := netutil.DecodeResponse(response.Body, &acknowledgement); err != nil {
		d.logger.Debug("unreadable sync acknowledgement", "event_id", delivery.Envelope.EventID, "error", err)
	}
	outcome.Latency = d.clock.Now().Sub(start)

	d.logger.Info("sync delivered",
		"event_id", delivery.Envelope.EventID,
		"target", delivery.Target,
		"component_id", delivery.TargetID,
		"status", response.StatusCode,
		"receiver_status", acknowledgement.Status,
		"latency", outcome.Latency,
	)
	return outcome
}

// Challenge asks the node of type target to sign nonce and returns the
// component ID it claims and its signature. The caller verifies the
// signature; Challenge only transports it.
func (d *Dispatcher) Challenge(ctx context.Context, target component.Type, nonce []byte) (string, []byte, error) {
	body, err := json.Marshal(wire.ChallengeRequest{Nonce: hex.EncodeToString(nonce)})
	if err != nil {
		return "", nil, fmt.Errorf("dispatch: encoding challenge: %w", err)
	}

	response, err := d.post(ctx, target, wire.ChallengePath, body, nil)
	if err != nil {
		return "", nil, syncerr.New(syncerr.TransportFailure, "challenge", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return "", nil, syncerr.New(classifyStatus(response.StatusCode), "challenge",
			fmt.Errorf("HTTP %d: %s", response.StatusCode, netutil.ErrorBody(response.Body)))
	}

	var reply wire.ChallengeResponse
	if err := netutil.DecodeResponse(response.Body, &reply); err != nil {
		return "", nil, syncerr.New(syncerr.TransportFailure, "challenge", err)
	}
	signature, err := hex.DecodeString(reply.Signature)
	if err != nil || reply.ComponentID == "" {
		return "", nil, syncerr.New(syncerr.SignatureInvalid, "challenge",
			fmt.Errorf("malformed challenge reply from %s", target))
	}
	return reply.ComponentID, signature, nil
}

func (d *Dispatcher) post(ctx context.Context, target component.Type, path string, body []byte, headers map[string]string) (*http.Response, error) {
	base, ok := d.endpoints[target]
	if !ok {
		return nil, fmt.Errorf("no endpoint configured for %s", target)
	}

	token, err := d.tokens.IssueToken(target, d.tokenTTL)
	if err != nil {
		return nil, fmt.Errorf("issuing token for %s: %w", target, err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, base+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("User-Agent", version.UserAgent())
	request.Header.Set("Authorization", "Bearer "+token)
	for name, value := range headers {
		request.Header.Set(name, value)
	}

	response, err := d.client.Do(request)
	if err != nil {
		return nil, err
	}
	return response, nil
}

// classifyStatus maps a receiver's rejection to a failure kind. The
// receiver answers 401 for token and signature failures and 422 for
// decryption and hash failures.
func classifyStatus(status int) syncerr.Kind {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return syncerr.SignatureInvalid
	case http.StatusUnprocessableEntity:
		return syncerr.IntegrityMismatch
	default:
		return syncerr.TransportFailure
	}
}
