// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LoginGuard Contributors

// Package observability provides HTTP endpoints for metrics and health checks.
package observability

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"
)

// ReadinessChecker returns whether the service is ready to accept requests.
type ReadinessChecker func() bool

// Registrar registers a package's collectors, e.g. auth.RegisterMetrics.
type Registrar func(prometheus.Registerer)

// Metrics contains the HTTP request metrics recorded by the login API.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers HTTP request metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loginguard_http_requests_total",
				Help: "Total number of HTTP requests by method, route and status",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "loginguard_http_request_duration_seconds",
				Help:    "HTTP request latency by method and route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}

	reg.MustRegister(m.RequestsTotal)
	reg.MustRegister(m.RequestDuration)

	return m
}

// ObserveRequest records one finished HTTP request. A nil receiver is a no-op.
func (m *Metrics) ObserveRequest(method, path string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

// Server provides HTTP endpoints for observability (metrics and health probes).
type Server struct {
	addr       string
	listener   net.Listener
	httpServer *http.Server
	registry   *prometheus.Registry
	metrics    *Metrics
	isReady    ReadinessChecker
	running    atomic.Bool
}

// NewServer creates a new observability server.
// addr: listen address in "host:port" format (e.g., "127.0.0.1:9100", ":9100" for all interfaces).
// Each registrar is called once with the server's private registry.
func NewServer(addr string, readinessChecker ReadinessChecker, registrars ...Registrar) *Server {
	registry := prometheus.NewRegistry()

	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	metrics := NewMetrics(registry)
	for _, register := range registrars {
		register(registry)
	}

	return &Server{
		addr:     addr,
		registry: registry,
		metrics:  metrics,
		isReady:  readinessChecker,
	}
}

// Metrics returns the HTTP request metrics.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Registry returns the registry served on /metrics.
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

// Start begins serving observability endpoints.
// It returns an error channel that will receive any errors from the HTTP server
// after it starts. The channel is closed when the server stops gracefully.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("observability server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/healthz/liveness", s.handleLiveness)
	mux.HandleFunc("/healthz/readiness", s.handleReadiness)

	httpSrv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		// Use local httpSrv to avoid race with subsequent Start() calls
		if serveErr := httpSrv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			slog.Error("observability server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	slog.Info("observability server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts down the observability server.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown_observability_server").Wrap(err)
		}
	}

	slog.Info("observability server stopped")
	return nil
}

// Addr returns the address the server is listening on.
// Returns empty string if not running.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // health check write error is acceptable, client may disconnect
	w.Write([]byte("ok\n"))
}

// handleReadiness returns 200 once the login API is serving, 503 before.
func (s *Server) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	if s.isReady == nil || s.isReady() {
		w.WriteHeader(http.StatusOK)
		//nolint:errcheck // health check write error is acceptable, client may disconnect
		w.Write([]byte("ok\n"))
		return
	}

	w.WriteHeader(http.StatusServiceUnavailable)
	//nolint:errcheck // health check write error is acceptable, client may disconnect
	w.Write([]byte("not ready\n"))
}
