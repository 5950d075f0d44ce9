// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// DefaultShutdownTimeout bounds graceful shutdown when
// HTTPServerConfig.ShutdownTimeout is zero.
const DefaultShutdownTimeout = 10 * time.Second

// HTTPServer serves one handler on one TCP listener. Serve(ctx)
// blocks until ctx is cancelled and active requests drain.
type HTTPServer struct {
	name            string
	address         string
	handler         http.Handler
	tlsConfig       *tls.Config
	logger          *slog.Logger
	shutdownTimeout time.Duration

	// ready is closed once the listener is bound; addr is valid after.
	ready chan struct{}
	addr  net.Addr
}

// HTTPServerConfig configures an HTTPServer.
type HTTPServerConfig struct {
	// Name labels the listener in logs ("sync", "admin").
	Name string

	// Address is the TCP listen address (":9443", "127.0.0.1:0").
	// Required.
	Address string

	// Handler serves every request. Required.
	Handler http.Handler

	// TLSCertFile and TLSKeyFile enable TLS. Both or neither.
	TLSCertFile string
	TLSKeyFile  string

	// ShutdownTimeout is how long Serve waits for in-flight requests
	// after cancellation. Zero means DefaultShutdownTimeout.
	ShutdownTimeout time.Duration

	// Logger is the structured logger. Required.
	Logger *slog.Logger
}

// NewHTTPServer validates config and loads the TLS key pair, if any.
// Missing required fields are programming errors and panic.
func NewHTTPServer(config HTTPServerConfig) (*HTTPServer, error) {
	if config.Address == "" {
		panic("service.HTTPServer: Address is required")
	}
	if config.Handler == nil {
		panic("service.HTTPServer: Handler is required")
	}
	if config.Logger == nil {
		panic("service.HTTPServer: Logger is required")
	}

	var tlsConfig *tls.Config
	switch {
	case config.TLSCertFile != "" && config.TLSKeyFile != "":
		certificate, err := tls.LoadX509KeyPair(config.TLSCertFile, config.TLSKeyFile)
		if err != nil {
			return nil, fmt.Errorf("service: loading TLS key pair: %w", err)
		}
		tlsConfig = &tls.Config{
			Certificates: []tls.Certificate{certificate},
			MinVersion:   tls.VersionTLS12,
		}
	case config.TLSCertFile != "" || config.TLSKeyFile != "":
		return nil, errors.New("service: TLS needs both a certificate and a key")
	}

	timeout := config.ShutdownTimeout
	if timeout == 0 {
		timeout = DefaultShutdownTimeout
	}
	name := config.Name
	if name == "" {
		name = "http"
	}

	return &HTTPServer{
		name:            name,
		address:         config.Address,
		handler:         config.Handler,
		tlsConfig:       tlsConfig,
		logger:          config.Logger.With("listener", name),
		shutdownTimeout: timeout,
		ready:           make(chan struct{}),
	}, nil
}

// Ready is closed once the server is bound and accepting connections.
func (s *HTTPServer) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound address. Only valid after Ready is closed;
// with port 0 it carries the port the OS chose.
func (s *HTTPServer) Addr() net.Addr {
	return s.addr
}

// Serve accepts connections until ctx is cancelled, then stops
// accepting and waits up to the shutdown timeout for active requests.
func (s *HTTPServer) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("service: %s listening on %s: %w", s.name, s.address, err)
	}
	if s.tlsConfig != nil {
		listener = tls.NewListener(listener, s.tlsConfig)
	}
	s.addr = listener.Addr()
	close(s.ready)

	server := &http.Server{
		Handler: s.handler,
		// Sync envelopes are bounded by netutil.MaxRequestSize, so
		// these are generous.
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}

	s.logger.Info("http server listening", "address", s.addr.String(), "tls", s.tlsConfig != nil)

	serveDone := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveDone <- err
		}
		close(serveDone)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("http server shutting down")
	case err := <-serveDone:
		if err != nil {
			return fmt.Errorf("service: %s: %w", s.name, err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("http server shutdown error", "error", err)
		return fmt.Errorf("service: %s shutdown: %w", s.name, err)
	}

	s.logger.Info("http server stopped")
	return nil
}
