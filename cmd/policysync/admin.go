// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/controlcoreio/policysync/lib/component"
	"github.com/controlcoreio/policysync/lib/netutil"
	"github.com/controlcoreio/policysync/lib/syncevent"
	"github.com/controlcoreio/policysync/lib/wire"
)

// distributor runs and reports sync events. *syncevent.Engine
// satisfies it.
type distributor interface {
	CreateAndDistribute(ctx context.Context, request syncevent.Request) (syncevent.SyncEvent, error)
	Events() []syncevent.SyncEvent
	Event(eventID string) (syncevent.SyncEvent, bool)
	Summary() syncevent.Summary
}

// componentRegistry is the part of *trust.Registry the admin API uses.
type componentRegistry interface {
	Register(ctx context.Context, identity component.Identity) error
	Get(componentID string) (component.Identity, bool)
	List() []component.Identity
}

// admin serves the sender's loopback API.
type admin struct {
	engine     distributor
	registry   componentRegistry
	challenger *challenger
	logger     *slog.Logger
}

// distributeRequest keeps the payload as raw JSON so numbers reach the
// canonical encoder unchanged.
type distributeRequest struct {
	Source    component.Type   `json:"source_component,omitempty"`
	Targets   []component.Type `json:"target_components"`
	EventType wire.EventType   `json:"event_type"`
	Payload   json.RawMessage  `json:"payload"`
}

// registration is the body of POST /components.
type registration struct {
	ComponentID  string         `json:"component_id"`
	Type         component.Type `json:"component_type"`
	PublicKeyPEM string         `json:"public_key"`
	Certificate  []byte         `json:"certificate,omitempty"`
}

func (a *admin) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /distribute", a.handleDistribute)
	mux.HandleFunc("GET /events", a.handleEvents)
	mux.HandleFunc("GET /events/summary", a.handleSummary)
	mux.HandleFunc("GET /events/{id}", a.handleEvent)
	mux.HandleFunc("GET /components", a.handleComponents)
	mux.HandleFunc("POST /components", a.handleRegister)
	return mux
}

func (a *admin) handleDistribute(writer http.ResponseWriter, request *http.Request) {
	var body distributeRequest
	if err := netutil.DecodeRequest(writer, request, &body); err != nil {
		netutil.WriteError(writer, http.StatusBadRequest, "", err.Error())
		return
	}
	if len(body.Payload) == 0 {
		netutil.WriteError(writer, http.StatusBadRequest, "", "payload is required")
		return
	}

	event, err := a.engine.CreateAndDistribute(request.Context(), syncevent.Request{
		Source:    body.Source,
		Targets:   body.Targets,
		EventType: body.EventType,
		Payload:   body.Payload,
	})
	if err != nil {
		if errors.Is(err, syncevent.ErrInvalidRequest) {
			netutil.WriteError(writer, http.StatusBadRequest, "", err.Error())
			return
		}
		a.logger.Error("distribute failed", "error", err)
		netutil.WriteError(writer, http.StatusInternalServerError, "", err.Error())
		return
	}
	netutil.WriteJSON(writer, http.StatusOK, event)
}

func (a *admin) handleEvents(writer http.ResponseWriter, _ *http.Request) {
	netutil.WriteJSON(writer, http.StatusOK, a.engine.Events())
}

func (a *admin) handleSummary(writer http.ResponseWriter, _ *http.Request) {
	netutil.WriteJSON(writer, http.StatusOK, a.engine.Summary())
}

func (a *admin) handleEvent(writer http.ResponseWriter, request *http.Request) {
	event, ok := a.engine.Event(request.PathValue("id"))
	if !ok {
		netutil.WriteError(writer, http.StatusNotFound, "", "no such event")
		return
	}
	netutil.WriteJSON(writer, http.StatusOK, event)
}

func (a *admin) handleComponents(writer http.ResponseWriter, _ *http.Request) {
	netutil.WriteJSON(writer, http.StatusOK, a.registry.List())
}

// handleRegister registers a component and, when a challenger is
// configured, challenges it immediately so it can be targeted.
func (a *admin) handleRegister(writer http.ResponseWriter, request *http.Request) {
	var body registration
	if err := netutil.DecodeRequest(writer, request, &body); err != nil {
		netutil.WriteError(writer, http.StatusBadRequest, "", err.Error())
		return
	}
	identity := component.Identity{
		ComponentID:  body.ComponentID,
		Type:         body.Type,
		PublicKeyPEM: body.PublicKeyPEM,
		Certificate:  body.Certificate,
	}
	if err := a.registry.Register(request.Context(), identity); err != nil {
		netutil.WriteError(writer, http.StatusBadRequest, "", err.Error())
		return
	}
	if a.challenger != nil {
		a.challenger.challenge(request.Context(), []component.Identity{identity})
	}

	registered, ok := a.registry.Get(identity.ComponentID)
	if !ok {
		netutil.WriteError(writer, http.StatusInternalServerError, "", "component vanished after registration")
		return
	}
	netutil.WriteJSON(writer, http.StatusCreated, registered)
}
