// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LoginGuard Contributors

package main

import (
	"context"
	cryptotls "crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/loginguard/loginguard/internal/attempt"
	"github.com/loginguard/loginguard/internal/auth"
	"github.com/loginguard/loginguard/internal/captcha"
	"github.com/loginguard/loginguard/internal/config"
	"github.com/loginguard/loginguard/internal/control"
	"github.com/loginguard/loginguard/internal/logging"
	"github.com/loginguard/loginguard/internal/observability"
	"github.com/loginguard/loginguard/internal/tls"
	"github.com/loginguard/loginguard/internal/web"
	"github.com/loginguard/loginguard/internal/xdg"
)

const serviceName = "loginguard"

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the login API",
		Long: `Run the login API together with the operator control socket
and the metrics/health server. Stops gracefully on SIGINT, SIGTERM,
or a shutdown request on the control socket.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), cmd, nil)
		},
	}

	config.RegisterFlags(cmd.Flags())

	return cmd
}

// runServeWithDeps starts the server with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cmd *cobra.Command, deps *ServeDeps) error {
	if ctx == nil {
		ctx = context.Background()
	}
	deps = withDefaults(deps)

	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger := logging.SetDefault(logging.Options{
		Service: serviceName,
		Version: version,
		Format:  cfg.LogFormat,
		Level:   level,
		Output:  cmd.ErrOrStderr(),
	})

	svc, err := buildLoginService(cfg, deps, logger)
	if err != nil {
		return err
	}

	tlsConfig, err := apiTLSConfig(cfg.Server.TLS, deps.CertsDirGetter)
	if err != nil {
		return fmt.Errorf("failed to set up TLS: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// apiServer is assigned before any server starts, so the readiness
	// probe never races with it.
	var apiServer APIServer
	ready := func() bool { return apiServer.Ready() }

	var obsServer ObservabilityServer
	var metrics *observability.Metrics
	if cfg.MetricsAddr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.MetricsAddr, ready, auth.RegisterMetrics, captcha.RegisterMetrics)
		metrics = obsServer.Metrics()
	}

	web.SetMode(level)
	router, err := web.NewRouter(web.Config{
		Service:        svc,
		AdminToken:     cfg.Server.AdminToken,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		TrustedProxies: cfg.Server.TrustedProxies,
		Metrics:        metrics,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("failed to build router: %w", err)
	}
	apiServer = deps.APIServerFactory(cfg.Server.Addr, router, tlsConfig)

	if obsServer != nil {
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return fmt.Errorf("failed to start observability server: %w", err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		slog.Info("observability server started", "addr", obsServer.Addr())
	}

	apiErrChan, err := apiServer.Start()
	if err != nil {
		stopAll(cfg, nil, nil, obsServer)
		return fmt.Errorf("failed to start login API: %w", err)
	}
	go monitorServerErrors(ctx, cancel, apiErrChan, "login-api")

	var controlServer ControlServer
	if cfg.ControlSocket {
		controlServer = deps.ControlServerFactory(cfg.ControlSocketPath, svc, func() { cancel() })
		if err := controlServer.Start(); err != nil {
			stopAll(cfg, apiServer, nil, obsServer)
			return fmt.Errorf("failed to start control socket: %w", err)
		}
		slog.Info("control socket started", "path", controlServer.Path())
	}

	sigChan, stopSignals := deps.Signals()
	defer stopSignals()

	cmd.Printf("LoginGuard listening on %s\n", apiServer.Addr())
	slog.Info("loginguard ready",
		"addr", apiServer.Addr(),
		"tls", tlsConfig != nil,
		"challenge_at", cfg.Thresholds.ChallengeAt,
		"lockout_at", cfg.Thresholds.LockoutAt,
		"challenge_mode", cfg.Thresholds.Mode,
	)

	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		slog.Info("context cancelled, shutting down")
	}

	slog.Info("shutting down...")
	stopAll(cfg, apiServer, controlServer, obsServer)
	slog.Info("shutdown complete")
	return nil
}

func withDefaults(deps *ServeDeps) *ServeDeps {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.VerifierFactory == nil {
		deps.VerifierFactory = func(cfg captcha.Config) (captcha.Verifier, error) {
			return captcha.NewClient(cfg)
		}
	}
	if deps.Hasher == nil {
		deps.Hasher = auth.NewArgon2idHasher()
	}
	if deps.APIServerFactory == nil {
		deps.APIServerFactory = func(addr string, handler http.Handler, tlsConfig *cryptotls.Config) APIServer {
			return web.NewServer(addr, handler, tlsConfig)
		}
	}
	if deps.ControlServerFactory == nil {
		deps.ControlServerFactory = func(socketPath string, service control.AttemptService, shutdownFunc control.ShutdownFunc) ControlServer {
			return control.NewServer(socketPath, service, shutdownFunc)
		}
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker, registrars ...observability.Registrar) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker, registrars...)
		}
	}
	if deps.CertsDirGetter == nil {
		deps.CertsDirGetter = certsDir
	}
	if deps.Signals == nil {
		deps.Signals = func() (<-chan os.Signal, func()) {
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			return sigChan, func() { signal.Stop(sigChan) }
		}
	}
	return deps
}

// buildLoginService wires tracker, verifier and credentials into the service.
func buildLoginService(cfg config.Config, deps *ServeDeps, logger *slog.Logger) (*auth.Service, error) {
	thresholds, err := cfg.AttemptThresholds()
	if err != nil {
		return nil, fmt.Errorf("invalid thresholds: %w", err)
	}
	tracker := attempt.NewTrackerWithObserver(thresholds, auth.ObserveFailedAttempts)

	verifier, err := deps.VerifierFactory(cfg.CaptchaClientConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create captcha verifier: %w", err)
	}

	var creds *auth.StaticCredentials
	if cfg.Credentials.PasswordHash != "" {
		creds, err = auth.NewStaticCredentials(cfg.Credentials.Email, cfg.Credentials.PasswordHash, deps.Hasher)
	} else {
		creds, err = auth.NewStaticCredentialsFromPassword(cfg.Credentials.Email, cfg.Credentials.Password, deps.Hasher)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid credentials configuration: %w", err)
	}

	svc, err := auth.NewService(auth.ServiceConfig{
		Tracker:                 tracker,
		Verifier:                verifier,
		Credentials:             creds,
		Logger:                  logger,
		CountRejectedChallenges: cfg.Thresholds.CountRejectedChallenges,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create login service: %w", err)
	}
	return svc, nil
}

// apiTLSConfig returns nil when TLS is off. A self-signed certificate is
// generated under certsDir on first use and reused afterwards.
func apiTLSConfig(cfg config.TLSConfig, certsDirGetter func() (string, error)) (*cryptotls.Config, error) {
	if !cfg.Enabled() {
		return nil, nil
	}

	certFile, keyFile := cfg.CertFile, cfg.KeyFile
	if cfg.SelfSigned {
		dir, err := certsDirGetter()
		if err != nil {
			return nil, fmt.Errorf("failed to get certs directory: %w", err)
		}
		if err := xdg.EnsureDir(dir); err != nil {
			return nil, fmt.Errorf("failed to create certs directory: %w", err)
		}
		certFile, keyFile, err = tls.EnsureSelfSigned(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to generate self-signed certificate: %w", err)
		}
		slog.Info("using self-signed certificate", "cert_file", certFile)
	}

	tlsConfig, err := tls.LoadServerConfig(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate: %w", err)
	}
	return tlsConfig, nil
}

// certsDir is where generated certificates live.
func certsDir() (string, error) {
	dir, err := xdg.ConfigDir()
	if err != nil {
		return "", err //nolint:wrapcheck // xdg errors carry codes
	}
	return filepath.Join(dir, "certs"), nil
}

// stopAll drains servers in reverse start order. Nil servers are skipped.
func stopAll(cfg config.Config, api APIServer, ctrl ControlServer, obs ObservabilityServer) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if ctrl != nil {
		if err := ctrl.Stop(shutdownCtx); err != nil {
			slog.Warn("error stopping control socket", "error", err)
		}
	}
	if api != nil {
		if err := api.Stop(shutdownCtx); err != nil {
			slog.Warn("error stopping login API", "error", err)
		}
	}
	if obs != nil {
		if err := obs.Stop(shutdownCtx); err != nil {
			slog.Warn("error stopping observability server", "error", err)
		}
	}
}

// monitorServerErrors monitors a server's error channel and cancels the context on error.
// It exits when either an error is received, the channel is closed, or the context is cancelled.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
