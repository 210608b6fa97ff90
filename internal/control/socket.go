// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LoginGuard Contributors

// Package control provides an HTTP control socket for operating a running
// loginguard process: health, attempt status, counter reset and shutdown.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/samber/oops"

	"github.com/loginguard/loginguard/internal/attempt"
	"github.com/loginguard/loginguard/internal/xdg"
)

// SocketName is the file name of the control socket in the runtime directory.
const SocketName = "loginguard.sock"

// HealthResponse is returned by the /health endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// StatusResponse is returned by the /status endpoint.
type StatusResponse struct {
	Running       bool             `json:"running"`
	PID           int              `json:"pid"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Attempts      attempt.Snapshot `json:"attempts"`
}

// ResetResponse is returned by the /reset endpoint.
type ResetResponse struct {
	Message                string `json:"message"`
	PreviousFailedAttempts int    `json:"previous_failed_attempts"`
}

// ShutdownResponse is returned by the /shutdown endpoint.
type ShutdownResponse struct {
	Message string `json:"message"`
}

// ShutdownFunc is called when shutdown is requested.
type ShutdownFunc func()

// AttemptService is the part of the login service the socket operates on.
type AttemptService interface {
	Status() attempt.Snapshot
	Reset(ctx context.Context, source string)
}

// Server runs HTTP over a Unix socket for process management.
type Server struct {
	service      AttemptService
	startTime    time.Time
	listener     net.Listener
	httpServer   *http.Server
	socketPath   string
	shutdownFunc ShutdownFunc
	running      atomic.Bool
}

// NewServer creates a new control socket server. An empty socketPath means
// SocketPath().
func NewServer(socketPath string, service AttemptService, shutdownFunc ShutdownFunc) *Server {
	s := &Server{
		service:      service,
		startTime:    time.Now(),
		socketPath:   socketPath,
		shutdownFunc: shutdownFunc,
	}
	s.running.Store(true)
	return s
}

// SocketPath returns the default path of the control socket.
func SocketPath() (string, error) {
	runtimeDir, err := xdg.RuntimeDir()
	if err != nil {
		return "", oops.With("operation", "resolve runtime directory").Wrap(err)
	}
	return filepath.Join(runtimeDir, SocketName), nil
}

// Path returns the socket path the server listens on, once started.
func (s *Server) Path() string {
	return s.socketPath
}

// Handler returns the control endpoints without binding a socket.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /reset", s.handleReset)
	mux.HandleFunc("POST /shutdown", s.handleShutdown)
	return mux
}

// Start begins listening on the Unix socket.
func (s *Server) Start() error {
	if s.socketPath == "" {
		socketPath, err := SocketPath()
		if err != nil {
			return err
		}
		s.socketPath = socketPath
	}

	if err := xdg.EnsureDir(filepath.Dir(s.socketPath)); err != nil {
		return oops.With("operation", "create runtime directory").Wrap(err)
	}

	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return oops.With("path", s.socketPath).With("operation", "remove stale socket").Wrap(err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return oops.With("path", s.socketPath).With("operation", "listen").Wrap(err)
	}
	s.listener = listener

	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		_ = listener.Close()
		return oops.With("path", s.socketPath).With("operation", "chmod socket").Wrap(err)
	}

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("control socket server error", "path", s.socketPath, "error", err)
		}
	}()

	slog.Info("control socket listening", "path", s.socketPath)
	return nil
}

// Stop gracefully shuts down the control socket server.
func (s *Server) Stop(ctx context.Context) error {
	s.running.Store(false)

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return oops.With("operation", "shutdown control socket").Wrap(err)
		}
	}

	if s.listener != nil {
		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			slog.Warn("failed to close control socket listener", "error", err)
		}
	}

	if s.socketPath != "" && s.listener != nil {
		if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to remove control socket file", "path", s.socketPath, "error", err)
		}
	}

	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if err := writeJSON(w, http.StatusOK, resp); err != nil {
		slog.Error("failed to write health response", "error", err)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{
		Running:       s.running.Load(),
		PID:           os.Getpid(),
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
	}
	if s.service != nil {
		resp.Attempts = s.service.Status()
	}
	if err := writeJSON(w, http.StatusOK, resp); err != nil {
		slog.Error("failed to write status response", "error", err)
	}
}

// handleReset clears the failure counter. The socket is owner-only, so no
// further authorization is applied.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if s.service == nil {
		_ = writeJSON(w, http.StatusServiceUnavailable, ResetResponse{Message: "no login service attached"})
		return
	}
	previous := s.service.Status().FailedAttempts
	s.service.Reset(r.Context(), "control")

	resp := ResetResponse{Message: "attempt counter reset", PreviousFailedAttempts: previous}
	if err := writeJSON(w, http.StatusOK, resp); err != nil {
		slog.Error("failed to write reset response", "error", err)
	}
}

func (s *Server) handleShutdown(w http.ResponseWriter, _ *http.Request) {
	resp := ShutdownResponse{Message: "shutdown initiated"}
	if err := writeJSON(w, http.StatusOK, resp); err != nil {
		slog.Error("failed to write shutdown response", "error", err)
	}

	if s.shutdownFunc != nil {
		go s.shutdownFunc()
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		return oops.With("operation", "encode JSON response").Wrap(err)
	}
	return nil
}
