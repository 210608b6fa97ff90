// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LoginGuard Contributors

// Package web exposes the login service over HTTP with gin.
package web

import (
	"context"
	cryptotls "crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/samber/oops"

	"github.com/loginguard/loginguard/internal/observability"
)

// maxBodyBytes caps a request body; a login body is tiny.
const maxBodyBytes = 16 << 10

// Config configures the HTTP API.
type Config struct {
	Service LoginService

	// AdminToken enables POST /reset when non-empty.
	AdminToken string

	// AllowedOrigins lists CORS origins. Empty disables CORS handling.
	AllowedOrigins []string

	// TrustedProxies lists proxy IPs or CIDRs allowed to set X-Forwarded-For.
	// Empty means the client address is always the TCP peer.
	TrustedProxies []string

	// Metrics may be nil.
	Metrics *observability.Metrics

	// Logger defaults to slog.Default() if nil.
	Logger *slog.Logger
}

// SetMode switches gin to release mode unless debug logging is enabled.
// Gin's debug output is written to stdout, outside slog.
func SetMode(level slog.Level) {
	if level <= slog.LevelDebug {
		gin.SetMode(gin.DebugMode)
		return
	}
	gin.SetMode(gin.ReleaseMode)
}

// NewRouter builds the gin engine serving the login API.
func NewRouter(cfg Config) (*gin.Engine, error) {
	if cfg.Service == nil {
		return nil, oops.Code("WEB_INVALID_CONFIG").Errorf("login service is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := gin.New()
	var proxies []string
	if len(cfg.TrustedProxies) > 0 {
		proxies = cfg.TrustedProxies
	}
	if err := r.SetTrustedProxies(proxies); err != nil {
		return nil, oops.Code("WEB_INVALID_CONFIG").With("trusted_proxies", proxies).
			Wrapf(err, "invalid trusted proxies")
	}
	r.Use(requestID(), requestLogger(logger), metrics(cfg.Metrics), gin.Recovery(), limitBody(maxBodyBytes))

	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.AllowedOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", RequestIDHeader},
			ExposeHeaders:    []string{RequestIDHeader},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	h := &handlers{service: cfg.Service, adminToken: cfg.AdminToken}
	r.POST("/login", h.login)
	r.GET("/status", h.status)
	r.GET("/healthz", healthz)
	if cfg.AdminToken != "" {
		r.POST("/reset", h.reset)
	}

	r.NoRoute(func(c *gin.Context) {
		errorResponse(c, http.StatusNotFound, MsgRouteNotFound)
	})

	return r, nil
}

func limitBody(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		c.Next()
	}
}

// Server runs the API on its own listener.
type Server struct {
	addr       string
	handler    http.Handler
	tlsConfig  *cryptotls.Config
	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// NewServer creates a server for handler on addr. tlsConfig may be nil.
func NewServer(addr string, handler http.Handler, tlsConfig *cryptotls.Config) *Server {
	return &Server{addr: addr, handler: handler, tlsConfig: tlsConfig}
}

// Start binds the listener and serves in the background. The returned
// channel receives a serve error, and is closed when the server stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("login API server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("WEB_LISTEN_FAILED").With("addr", s.addr).Wrap(err)
	}
	if s.tlsConfig != nil {
		listener = cryptotls.NewListener(listener, s.tlsConfig)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("login API server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	slog.Info("login API listening", "addr", listener.Addr().String(), "tls", s.tlsConfig != nil)
	return errCh, nil
}

// Stop gracefully drains in-flight requests.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown login API").Wrap(err)
		}
	}
	slog.Info("login API stopped")
	return nil
}

// Ready reports whether the API is accepting requests.
func (s *Server) Ready() bool {
	return s.running.Load()
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}
