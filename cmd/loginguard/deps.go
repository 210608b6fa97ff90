// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LoginGuard Contributors

package main

import (
	"context"
	cryptotls "crypto/tls"
	"net/http"
	"os"

	"github.com/loginguard/loginguard/internal/auth"
	"github.com/loginguard/loginguard/internal/captcha"
	"github.com/loginguard/loginguard/internal/control"
	"github.com/loginguard/loginguard/internal/observability"
	"github.com/loginguard/loginguard/internal/web"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// VerifierFactory creates the captcha verifier.
	// Default: captcha.NewClient
	VerifierFactory func(cfg captcha.Config) (captcha.Verifier, error)

	// Hasher hashes and verifies the configured password.
	// Default: auth.NewArgon2idHasher
	Hasher auth.PasswordHasher

	// APIServerFactory creates the login API server.
	// Default: web.NewServer
	APIServerFactory func(addr string, handler http.Handler, tlsConfig *cryptotls.Config) APIServer

	// ControlServerFactory creates the control socket server.
	// Default: control.NewServer
	ControlServerFactory func(socketPath string, service control.AttemptService, shutdownFunc control.ShutdownFunc) ControlServer

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker, registrars ...observability.Registrar) ObservabilityServer

	// CertsDirGetter returns the directory for generated certificates.
	// Default: certsDir
	CertsDirGetter func() (string, error)

	// Signals delivers shutdown signals.
	// Default: SIGINT and SIGTERM via signal.Notify
	Signals func() (<-chan os.Signal, func())
}

// APIServer wraps the methods used from web.Server.
type APIServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Ready() bool
	Addr() string
}

// ControlServer wraps the methods used from control.Server.
type ControlServer interface {
	Start() error
	Stop(ctx context.Context) error
	Path() string
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

var (
	_ APIServer           = (*web.Server)(nil)
	_ ControlServer       = (*control.Server)(nil)
	_ ObservabilityServer = (*observability.Server)(nil)
)
