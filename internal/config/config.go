// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LoginGuard Contributors

// Package config defines loginguard's configuration, how it is loaded from
// defaults, files, the environment and flags, and how it is validated.
package config

import (
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/loginguard/loginguard/internal/attempt"
	"github.com/loginguard/loginguard/internal/captcha"
	"github.com/loginguard/loginguard/internal/logging"
)

// Error codes returned by Validate and Load.
const (
	CodeMissing = "CONFIG_MISSING"
	CodeInvalid = "CONFIG_INVALID"
)

const masked = "********"

// Config is the complete loginguard configuration.
type Config struct {
	Server            ServerConfig      `koanf:"server" json:"server" yaml:"server"`
	MetricsAddr       string            `koanf:"metrics_addr" json:"metrics_addr" yaml:"metrics_addr" jsonschema:"description=Metrics and probe listen address; empty disables"`
	ControlSocket     bool              `koanf:"control_socket" json:"control_socket" yaml:"control_socket" jsonschema:"description=Serve the operator control socket"`
	ControlSocketPath string            `koanf:"control_socket_path" json:"control_socket_path" yaml:"control_socket_path" jsonschema:"description=Control socket path; empty means the XDG runtime directory"`
	LogFormat         string            `koanf:"log_format" json:"log_format" yaml:"log_format" jsonschema:"enum=json,enum=text"`
	LogLevel          string            `koanf:"log_level" json:"log_level" yaml:"log_level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
	Captcha           CaptchaConfig     `koanf:"captcha" json:"captcha" yaml:"captcha"`
	Thresholds        ThresholdsConfig  `koanf:"thresholds" json:"thresholds" yaml:"thresholds"`
	Credentials       CredentialsConfig `koanf:"credentials" json:"credentials" yaml:"credentials"`
}

// ServerConfig configures the public login API.
type ServerConfig struct {
	Addr            string        `koanf:"addr" json:"addr" yaml:"addr" jsonschema:"description=Listen address of the login API"`
	AllowedOrigins  []string      `koanf:"allowed_origins" json:"allowed_origins" yaml:"allowed_origins" jsonschema:"description=CORS origins allowed to call the API"`
	TrustedProxies  []string      `koanf:"trusted_proxies" json:"trusted_proxies" yaml:"trusted_proxies" jsonschema:"description=Proxy IPs or CIDRs whose X-Forwarded-For is honoured; empty trusts none"`
	AdminToken      string        `koanf:"admin_token" json:"admin_token" yaml:"admin_token" jsonschema:"description=Bearer token guarding POST /reset; empty hides the route"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" json:"shutdown_timeout" yaml:"shutdown_timeout"`
	TLS             TLSConfig     `koanf:"tls" json:"tls" yaml:"tls"`
}

// TLSConfig enables HTTPS on the login API.
type TLSConfig struct {
	CertFile   string `koanf:"cert_file" json:"cert_file" yaml:"cert_file"`
	KeyFile    string `koanf:"key_file" json:"key_file" yaml:"key_file"`
	SelfSigned bool   `koanf:"self_signed" json:"self_signed" yaml:"self_signed" jsonschema:"description=Generate and reuse a self-signed certificate for development"`
}

// Enabled reports whether the API should serve TLS.
func (t TLSConfig) Enabled() bool {
	return t.SelfSigned || t.CertFile != ""
}

// CaptchaConfig configures the challenge provider.
type CaptchaConfig struct {
	Secret     string        `koanf:"secret" json:"secret" yaml:"secret" jsonschema:"description=Provider secret key"`
	VerifyURL  string        `koanf:"verify_url" json:"verify_url" yaml:"verify_url" jsonschema:"format=uri"`
	Timeout    time.Duration `koanf:"timeout" json:"timeout" yaml:"timeout"`
	MaxRetries uint64        `koanf:"max_retries" json:"max_retries" yaml:"max_retries"`
}

// ThresholdsConfig configures challenge and lockout thresholds.
type ThresholdsConfig struct {
	ChallengeAt             []int  `koanf:"challenge_at" json:"challenge_at" yaml:"challenge_at"`
	LockoutAt               int    `koanf:"lockout_at" json:"lockout_at" yaml:"lockout_at" jsonschema:"minimum=1"`
	Mode                    string `koanf:"mode" json:"mode" yaml:"mode" jsonschema:"enum=exact,enum=at-or-above"`
	CountRejectedChallenges bool   `koanf:"count_rejected_challenges" json:"count_rejected_challenges" yaml:"count_rejected_challenges"`
}

// CredentialsConfig holds the single accepted credential. Exactly one of
// Password and PasswordHash must be set.
type CredentialsConfig struct {
	Email        string `koanf:"email" json:"email" yaml:"email" jsonschema:"description=Accepted email; empty accepts any"`
	Password     string `koanf:"password" json:"password" yaml:"password"`
	PasswordHash string `koanf:"password_hash" json:"password_hash" yaml:"password_hash" jsonschema:"description=argon2id PHC string from loginguard hash-password"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":5000",
			AllowedOrigins:  []string{"http://localhost:3000"},
			ShutdownTimeout: 5 * time.Second,
		},
		MetricsAddr:   "127.0.0.1:9100",
		ControlSocket: true,
		LogFormat:     "json",
		LogLevel:      "info",
		Captcha: CaptchaConfig{
			VerifyURL:  captcha.DefaultVerifyURL,
			Timeout:    captcha.DefaultTimeout,
			MaxRetries: captcha.DefaultMaxRetries,
		},
		Thresholds: ThresholdsConfig{
			ChallengeAt: attempt.DefaultChallengeAt(),
			LockoutAt:   attempt.DefaultLockoutAt,
			Mode:        string(attempt.ModeExact),
		},
	}
}

// Validate checks the configuration is complete and coherent.
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return oops.Code(CodeMissing).With("key", "server.addr").Errorf("server address is required")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return oops.Code(CodeInvalid).With("key", "server.shutdown_timeout").Errorf("shutdown timeout must be positive")
	}
	for _, p := range c.Server.TrustedProxies {
		if !validProxy(p) {
			return oops.Code(CodeInvalid).With("key", "server.trusted_proxies").
				Errorf("trusted proxy must be an IP address or CIDR, got %q", p)
		}
	}
	if err := c.Server.TLS.validate(); err != nil {
		return err
	}

	if c.LogFormat != "json" && c.LogFormat != "text" {
		return oops.Code(CodeInvalid).With("key", "log_format").
			Errorf("log format must be 'json' or 'text', got %q", c.LogFormat)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return oops.Code(CodeInvalid).With("key", "log_level").Wrap(err)
	}

	if err := c.Captcha.validate(); err != nil {
		return err
	}
	if _, err := c.AttemptThresholds(); err != nil {
		return oops.With("key", "thresholds").Wrap(err)
	}
	return c.Credentials.validate()
}

func validProxy(p string) bool {
	if _, err := netip.ParsePrefix(p); err == nil {
		return true
	}
	_, err := netip.ParseAddr(p)
	return err == nil
}

func (t TLSConfig) validate() error {
	if (t.CertFile == "") != (t.KeyFile == "") {
		return oops.Code(CodeInvalid).With("key", "server.tls").
			Errorf("cert_file and key_file must be set together")
	}
	if t.SelfSigned && t.CertFile != "" {
		return oops.Code(CodeInvalid).With("key", "server.tls").
			Errorf("self_signed cannot be combined with cert_file")
	}
	return nil
}

func (c CaptchaConfig) validate() error {
	if strings.TrimSpace(c.Secret) == "" {
		return oops.Code(CodeMissing).With("key", "captcha.secret").
			Errorf("captcha secret is required")
	}
	u, err := url.Parse(c.VerifyURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return oops.Code(CodeInvalid).With("key", "captcha.verify_url").
			Errorf("captcha verify URL must be an absolute http(s) URL, got %q", c.VerifyURL)
	}
	if c.Timeout <= 0 {
		return oops.Code(CodeInvalid).With("key", "captcha.timeout").
			Errorf("captcha timeout must be positive")
	}
	return nil
}

func (c CredentialsConfig) validate() error {
	switch {
	case c.Password == "" && c.PasswordHash == "":
		return oops.Code(CodeMissing).With("key", "credentials").
			Errorf("credentials.password or credentials.password_hash is required")
	case c.Password != "" && c.PasswordHash != "":
		return oops.Code(CodeInvalid).With("key", "credentials").
			Errorf("set only one of credentials.password and credentials.password_hash")
	}
	return nil
}

// AttemptThresholds builds validated tracker thresholds.
func (c Config) AttemptThresholds() (attempt.Thresholds, error) {
	return attempt.NewThresholds(c.Thresholds.ChallengeAt, c.Thresholds.LockoutAt, attempt.Mode(c.Thresholds.Mode))
}

// CaptchaClientConfig maps the captcha section onto a client configuration.
func (c Config) CaptchaClientConfig() captcha.Config {
	return captcha.Config{
		Secret:     c.Captcha.Secret,
		VerifyURL:  c.Captcha.VerifyURL,
		Timeout:    c.Captcha.Timeout,
		MaxRetries: c.Captcha.MaxRetries,
	}
}

// Masked returns a copy with secrets replaced, for display.
func (c Config) Masked() Config {
	out := c
	out.Server.AllowedOrigins = append([]string(nil), c.Server.AllowedOrigins...)
	out.Server.TrustedProxies = append([]string(nil), c.Server.TrustedProxies...)
	out.Thresholds.ChallengeAt = append([]int(nil), c.Thresholds.ChallengeAt...)
	maskIfSet(&out.Server.AdminToken)
	maskIfSet(&out.Captcha.Secret)
	maskIfSet(&out.Credentials.Password)
	maskIfSet(&out.Credentials.PasswordHash)
	return out
}

func maskIfSet(s *string) {
	if *s != "" {
		*s = masked
	}
}
