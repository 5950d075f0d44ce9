// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestHTTPServerLifecycle(t *testing.T) {
	handler := http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusOK)
		fmt.Fprintf(writer, "ok")
	})

	server, err := NewHTTPServer(HTTPServerConfig{
		Name:            "sync",
		Address:         "127.0.0.1:0",
		Handler:         handler,
		ShutdownTimeout: 2 * time.Second,
		Logger:          discardLogger(),
	})
	if err != nil {
		t.Fatalf("NewHTTPServer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serveDone := make(chan error, 1)
	go func() {
		serveDone <- server.Serve(ctx)
	}()

	select {
	case <-server.Ready():
	case <-t.Context().Done():
		t.Fatal("server did not become ready before test deadline")
	}

	response, err := http.Get("http://" + server.Addr().String() + "/sync")
	if err != nil {
		t.Fatalf("GET /sync: %v", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		t.Errorf("GET /sync status = %d, want 200", response.StatusCode)
	}
	body, _ := io.ReadAll(response.Body)
	if string(body) != "ok" {
		t.Errorf("GET /sync body = %q, want %q", body, "ok")
	}

	cancel()

	select {
	case err := <-serveDone:
		if err != nil {
			t.Errorf("Serve() = %v, want nil", err)
		}
	case <-t.Context().Done():
		t.Fatal("server did not shut down before test deadline")
	}
}

func TestHTTPServerListenFailure(t *testing.T) {
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer occupied.Close()

	server, err := NewHTTPServer(HTTPServerConfig{
		Address: occupied.Addr().String(),
		Handler: http.NotFoundHandler(),
		Logger:  discardLogger(),
	})
	if err != nil {
		t.Fatalf("NewHTTPServer: %v", err)
	}
	if err := server.Serve(context.Background()); err == nil {
		t.Fatal("Serve on an invalid address succeeded")
	}
}

func TestHTTPServerTLSConfig(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.pem")
	tests := []struct {
		name       string
		cert, key  string
		wantFailed bool
	}{
		{"cert without key", missing, "", true},
		{"key without cert", "", missing, true},
		{"unreadable pair", missing, missing, true},
		{"plain", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewHTTPServer(HTTPServerConfig{
				Address:     ":0",
				Handler:     http.NotFoundHandler(),
				TLSCertFile: tt.cert,
				TLSKeyFile:  tt.key,
				Logger:      discardLogger(),
			})
			if (err != nil) != tt.wantFailed {
				t.Errorf("NewHTTPServer() error = %v, wantFailed %v", err, tt.wantFailed)
			}
		})
	}
}

func TestHTTPServerPanicsOnMissingConfig(t *testing.T) {
	logger := discardLogger()
	handler := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})

	tests := []struct {
		name   string
		config HTTPServerConfig
	}{
		{
			name:   "missing_address",
			config: HTTPServerConfig{Handler: handler, Logger: logger},
		},
		{
			name:   "missing_handler",
			config: HTTPServerConfig{Address: ":0", Logger: logger},
		},
		{
			name:   "missing_logger",
			config: HTTPServerConfig{Address: ":0", Handler: handler},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if r := recover(); r == nil {
					t.Error("NewHTTPServer did not panic")
				}
			}()
			NewHTTPServer(tt.config)
		})
	}
}
