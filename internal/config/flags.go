// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LoginGuard Contributors

package config

import (
	"github.com/knadh/koanf/providers/posflag"
	"github.com/spf13/pflag"
)

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"addr":                    "server.addr",
	"allowed-origins":         "server.allowed_origins",
	"trusted-proxies":         "server.trusted_proxies",
	"metrics-addr":            "metrics_addr",
	"control-socket":          "control_socket",
	"control-socket-path":     "control_socket_path",
	"log-format":              "log_format",
	"log-level":               "log_level",
	"captcha-verify-url":      "captcha.verify_url",
	"captcha-timeout":         "captcha.timeout",
	"challenge-at":            "thresholds.challenge_at",
	"lockout-at":              "thresholds.lockout_at",
	"threshold-mode":          "thresholds.mode",
	"count-rejected-captchas": "thresholds.count_rejected_challenges",
	"tls-cert":                "server.tls.cert_file",
	"tls-key":                 "server.tls.key_file",
	"tls-self-signed":         "server.tls.self_signed",
}

// RegisterFlags adds the overridable settings to fs. Secrets are deliberately
// absent; they come from files or the environment.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("addr", d.Server.Addr, "login API listen address")
	fs.StringSlice("allowed-origins", d.Server.AllowedOrigins, "CORS origins allowed to call the API")
	fs.StringSlice("trusted-proxies", d.Server.TrustedProxies, "proxy IPs or CIDRs whose X-Forwarded-For is honoured")
	fs.String("metrics-addr", d.MetricsAddr, "metrics/health HTTP address (empty = disabled)")
	fs.Bool("control-socket", d.ControlSocket, "serve the operator control socket")
	fs.String("control-socket-path", d.ControlSocketPath, "control socket path (default: XDG_RUNTIME_DIR/loginguard/loginguard.sock)")
	fs.String("log-format", d.LogFormat, "log format (json or text)")
	fs.String("log-level", d.LogLevel, "log level (debug, info, warn, error)")
	fs.String("captcha-verify-url", d.Captcha.VerifyURL, "captcha provider verification endpoint")
	fs.Duration("captcha-timeout", d.Captcha.Timeout, "captcha verification timeout, retries included")
	fs.IntSlice("challenge-at", d.Thresholds.ChallengeAt, "failure counts at which a captcha is required")
	fs.Int("lockout-at", d.Thresholds.LockoutAt, "failure count at which all logins are refused")
	fs.String("threshold-mode", d.Thresholds.Mode, "challenge matching: exact or at-or-above")
	fs.Bool("count-rejected-captchas", d.Thresholds.CountRejectedChallenges, "count a rejected captcha as a failed attempt")
	fs.String("tls-cert", "", "TLS certificate file for the login API")
	fs.String("tls-key", "", "TLS key file for the login API")
	fs.Bool("tls-self-signed", false, "serve the login API with a generated self-signed certificate")
}

// flagKey returns the posflag callback translating flag names. Flags not
// in flagKeys (such as --config) are skipped.
func flagKey(fs *pflag.FlagSet) func(f *pflag.Flag) (string, any) {
	return func(f *pflag.Flag) (string, any) {
		key, ok := flagKeys[f.Name]
		if !ok {
			return "", nil
		}
		return key, posflag.FlagVal(fs, f)
	}
}
