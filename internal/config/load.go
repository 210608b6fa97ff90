// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LoginGuard Contributors

package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/loginguard/loginguard/internal/xdg"
)

// EnvPrefix prefixes every configuration environment variable. A double
// underscore separates nesting levels: LOGINGUARD_CAPTCHA__SECRET.
const EnvPrefix = "LOGINGUARD_"

// DefaultEnvFile is the dotenv file read from the working directory.
const DefaultEnvFile = ".env"

// listKeys are split on commas when they come from the environment.
var listKeys = map[string]bool{
	"server.allowed_origins":  true,
	"server.trusted_proxies":  true,
	"thresholds.challenge_at": true,
}

// LoadOptions selects the sources Load reads.
type LoadOptions struct {
	// ConfigFile is an explicit YAML file. It must exist when set. When empty,
	// the XDG config file is used if present.
	ConfigFile string

	// EnvFile is a dotenv file loaded into the process environment. Existing
	// variables win. Empty means DefaultEnvFile; a missing file is ignored.
	EnvFile string

	// Flags are applied last. Only flags registered by RegisterFlags and
	// changed by the user take effect.
	Flags *pflag.FlagSet
}

// Load builds a Config from, in increasing precedence: defaults, the YAML
// file, the dotenv file and environment, and command-line flags. The result
// is not validated; call Validate.
func Load(opts LoadOptions) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaultMap(), "."), nil); err != nil {
		return Config{}, oops.Code(CodeInvalid).With("source", "defaults").Wrap(err)
	}

	if err := loadFile(k, opts.ConfigFile); err != nil {
		return Config{}, err
	}

	if err := loadEnvFile(opts.EnvFile); err != nil {
		return Config{}, err
	}

	// PORT is what the browser client's backend has always read.
	if port := os.Getenv("PORT"); port != "" {
		if err := k.Set("server.addr", ":"+port); err != nil {
			return Config{}, oops.Code(CodeInvalid).With("source", "PORT").Wrap(err)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, oops.Code(CodeInvalid).With("source", "environment").Wrap(err)
	}

	if opts.Flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(opts.Flags, ".", k, flagKey(opts.Flags)), nil); err != nil {
			return Config{}, oops.Code(CodeInvalid).With("source", "flags").Wrap(err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, oops.Code(CodeInvalid).Wrapf(err, "decode configuration")
	}
	return cfg, nil
}

func loadFile(k *koanf.Koanf, path string) error {
	explicit := path != ""
	if !explicit {
		p, err := xdg.ConfigFile()
		if err != nil {
			return nil //nolint:nilerr // no HOME means no default file to read
		}
		path = p
	}

	data, err := os.ReadFile(path) //nolint:gosec // path is operator supplied
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return oops.Code(CodeMissing).With("path", path).Wrapf(err, "read config file")
	}

	if err := ValidateYAML(data); err != nil {
		return oops.With("path", path).Wrap(err)
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return oops.Code(CodeInvalid).With("path", path).Wrapf(err, "parse config file")
	}
	return nil
}

func loadEnvFile(path string) error {
	explicit := path != ""
	if !explicit {
		path = DefaultEnvFile
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return oops.Code(CodeInvalid).With("path", path).Wrapf(err, "load env file")
	}
	return nil
}

// envKey maps LOGINGUARD_CAPTCHA__MAX_RETRIES to captcha.max_retries.
func envKey(name, value string) (string, any) {
	key := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	key = strings.ReplaceAll(key, "__", ".")
	if listKeys[key] {
		return key, splitList(value)
	}
	return key, value
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// defaultMap flattens Default() into koanf keys.
func defaultMap() map[string]any {
	d := Default()
	return map[string]any{
		"server.addr":                          d.Server.Addr,
		"server.allowed_origins":               d.Server.AllowedOrigins,
		"server.trusted_proxies":               d.Server.TrustedProxies,
		"server.admin_token":                   d.Server.AdminToken,
		"server.shutdown_timeout":              d.Server.ShutdownTimeout,
		"server.tls.cert_file":                 d.Server.TLS.CertFile,
		"server.tls.key_file":                  d.Server.TLS.KeyFile,
		"server.tls.self_signed":               d.Server.TLS.SelfSigned,
		"metrics_addr":                         d.MetricsAddr,
		"control_socket":                       d.ControlSocket,
		"control_socket_path":                  d.ControlSocketPath,
		"log_format":                           d.LogFormat,
		"log_level":                            d.LogLevel,
		"captcha.secret":                       d.Captcha.Secret,
		"captcha.verify_url":                   d.Captcha.VerifyURL,
		"captcha.timeout":                      d.Captcha.Timeout,
		"captcha.max_retries":                  d.Captcha.MaxRetries,
		"thresholds.challenge_at":              d.Thresholds.ChallengeAt,
		"thresholds.lockout_at":                d.Thresholds.LockoutAt,
		"thresholds.mode":                      d.Thresholds.Mode,
		"thresholds.count_rejected_challenges": d.Thresholds.CountRejectedChallenges,
		"credentials.email":                    d.Credentials.Email,
		"credentials.password":                 d.Credentials.Password,
		"credentials.password_hash":            d.Credentials.PasswordHash,
	}
}
