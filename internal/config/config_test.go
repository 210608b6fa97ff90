// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LoginGuard Contributors

package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loginguard/loginguard/internal/attempt"
	"github.com/loginguard/loginguard/internal/captcha"
	"github.com/loginguard/loginguard/pkg/errutil"
)

// isolate points every implicit source at an empty temp dir.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("PORT", "")
	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(name, EnvPrefix) {
			unsetenv(t, name)
		}
	}
	return dir
}

// unsetenv removes name for the rest of the test and restores it afterwards.
func unsetenv(t *testing.T, name string) {
	t.Helper()
	t.Setenv(name, "")
	require.NoError(t, os.Unsetenv(name))
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func validConfig() Config {
	cfg := Default()
	cfg.Captcha.Secret = "secret"
	cfg.Credentials.Password = "pw"
	return cfg
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, ":5000", cfg.Server.Addr)
	assert.Equal(t, "127.0.0.1:9100", cfg.MetricsAddr)
	assert.True(t, cfg.ControlSocket)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, captcha.DefaultVerifyURL, cfg.Captcha.VerifyURL)
	assert.Equal(t, 5*time.Second, cfg.Captcha.Timeout)
	assert.Equal(t, uint64(1), cfg.Captcha.MaxRetries)
	assert.Equal(t, []int{4, 7}, cfg.Thresholds.ChallengeAt)
	assert.Equal(t, 10, cfg.Thresholds.LockoutAt)
	assert.Equal(t, "exact", cfg.Thresholds.Mode)
	assert.False(t, cfg.Thresholds.CountRejectedChallenges)
	assert.Empty(t, cfg.Server.TrustedProxies)
}

func TestValidate_TrustedProxies(t *testing.T) {
	cfg := validConfig()
	cfg.Server.TrustedProxies = []string{"10.0.0.1", "192.168.0.0/16", "::1", "fd00::/8"}
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		code   string
	}{
		{"missing secret", func(c *Config) { c.Captcha.Secret = " " }, CodeMissing},
		{"missing credentials", func(c *Config) { c.Credentials.Password = "" }, CodeMissing},
		{"both password and hash", func(c *Config) { c.Credentials.PasswordHash = "$argon2id$x" }, CodeInvalid},
		{"missing addr", func(c *Config) { c.Server.Addr = "" }, CodeMissing},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, CodeInvalid},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, CodeInvalid},
		{"relative verify url", func(c *Config) { c.Captcha.VerifyURL = "/siteverify" }, CodeInvalid},
		{"zero timeout", func(c *Config) { c.Captcha.Timeout = 0 }, CodeInvalid},
		{"zero shutdown timeout", func(c *Config) { c.Server.ShutdownTimeout = 0 }, CodeInvalid},
		{"challenge at lockout", func(c *Config) { c.Thresholds.ChallengeAt = []int{10} }, CodeInvalid},
		{"unknown mode", func(c *Config) { c.Thresholds.Mode = "fuzzy" }, CodeInvalid},
		{"bad trusted proxy", func(c *Config) { c.Server.TrustedProxies = []string{"proxy.local"} }, CodeInvalid},
		{"cert without key", func(c *Config) { c.Server.TLS.CertFile = "cert.pem" }, CodeInvalid},
		{"self signed with cert", func(c *Config) {
			c.Server.TLS = TLSConfig{CertFile: "c", KeyFile: "k", SelfSigned: true}
		}, CodeInvalid},
	}

	require.NoError(t, validConfig().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			errutil.AssertErrorCode(t, cfg.Validate(), tt.code)
		})
	}
}

func TestConfig_AttemptThresholds(t *testing.T) {
	cfg := validConfig()
	cfg.Thresholds = ThresholdsConfig{ChallengeAt: []int{6, 3}, LockoutAt: 8, Mode: "at-or-above"}

	th, err := cfg.AttemptThresholds()
	require.NoError(t, err)
	assert.Equal(t, []int{3, 6}, th.ChallengeAt())
	assert.Equal(t, 8, th.LockoutAt())
	assert.Equal(t, attempt.ModeAtOrAbove, th.Mode())
}

func TestConfig_CaptchaClientConfig(t *testing.T) {
	cfg := validConfig()
	cc := cfg.CaptchaClientConfig()

	assert.Equal(t, "secret", cc.Secret)
	assert.Equal(t, captcha.DefaultVerifyURL, cc.VerifyURL)
	assert.Equal(t, captcha.DefaultTimeout, cc.Timeout)
	assert.Equal(t, uint64(1), cc.MaxRetries)
}

func TestConfig_Masked(t *testing.T) {
	cfg := validConfig()
	cfg.Server.AdminToken = "admin"
	cfg.Credentials.PasswordHash = ""

	out := cfg.Masked()

	assert.Equal(t, masked, out.Captcha.Secret)
	assert.Equal(t, masked, out.Server.AdminToken)
	assert.Equal(t, masked, out.Credentials.Password)
	assert.Empty(t, out.Credentials.PasswordHash)
	assert.Equal(t, "secret", cfg.Captcha.Secret, "original untouched")

	out.Thresholds.ChallengeAt[0] = 99
	assert.Equal(t, 4, cfg.Thresholds.ChallengeAt[0], "slices copied")
}

func TestLoad_DefaultsOnly(t *testing.T) {
	isolate(t)
	t.Chdir(t.TempDir())

	cfg, err := Load(LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_Precedence(t *testing.T) {
	dir := isolate(t)
	t.Chdir(dir)

	cfgFile := writeFile(t, dir, "loginguard.yaml", `
server:
  addr: ":6000"
  allowed_origins: ["https://app.example.com"]
captcha:
  secret: from-file
  timeout: 2s
thresholds:
  challenge_at: [3]
  lockout_at: 6
  mode: at-or-above
log_format: text
metrics_addr: ""
`)
	writeFile(t, dir, ".env", "LOGINGUARD_CREDENTIALS__PASSWORD=from-dotenv\nLOGINGUARD_CAPTCHA__SECRET=from-dotenv\n")
	unsetenv(t, "LOGINGUARD_CREDENTIALS__PASSWORD")
	t.Setenv("LOGINGUARD_CAPTCHA__SECRET", "from-env")
	t.Setenv("LOGINGUARD_THRESHOLDS__CHALLENGE_AT", "2, 4")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	fs.String("config", "", "")
	require.NoError(t, fs.Parse([]string{"--lockout-at=9", "--config=" + cfgFile}))

	cfg, err := Load(LoadOptions{ConfigFile: cfgFile, Flags: fs})
	require.NoError(t, err)

	assert.Equal(t, ":6000", cfg.Server.Addr, "file over default")
	assert.Equal(t, []string{"https://app.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Empty(t, cfg.MetricsAddr, "empty string in file disables metrics")
	assert.Equal(t, 2*time.Second, cfg.Captcha.Timeout)
	assert.Equal(t, "from-env", cfg.Captcha.Secret, "process env over dotenv and file")
	assert.Equal(t, "from-dotenv", cfg.Credentials.Password, "dotenv fills unset variables")
	assert.Equal(t, []int{2, 4}, cfg.Thresholds.ChallengeAt, "env list replaces file list")
	assert.Equal(t, 9, cfg.Thresholds.LockoutAt, "flag over file")
	assert.Equal(t, "at-or-above", cfg.Thresholds.Mode, "unchanged flag keeps file value")
	assert.Equal(t, captcha.DefaultVerifyURL, cfg.Captcha.VerifyURL)
	require.NoError(t, cfg.Validate())
}

func TestLoad_TrustedProxiesFromEnv(t *testing.T) {
	isolate(t)
	t.Chdir(t.TempDir())
	t.Setenv("LOGINGUARD_SERVER__TRUSTED_PROXIES", "10.0.0.1, 192.168.0.0/16")

	cfg, err := Load(LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1", "192.168.0.0/16"}, cfg.Server.TrustedProxies)
}

func TestLoad_PortFallback(t *testing.T) {
	isolate(t)
	t.Chdir(t.TempDir())
	t.Setenv("PORT", "5050")

	cfg, err := Load(LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, ":5050", cfg.Server.Addr)

	t.Setenv("LOGINGUARD_SERVER__ADDR", "127.0.0.1:7000")
	cfg, err = Load(LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7000", cfg.Server.Addr)
}

func TestLoad_XDGConfigFile(t *testing.T) {
	dir := isolate(t)
	t.Chdir(t.TempDir())
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "loginguard"), 0o700))
	writeFile(t, filepath.Join(dir, "loginguard"), "config.yaml", "log_level: debug\n")

	cfg, err := Load(LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_Errors(t *testing.T) {
	dir := isolate(t)
	t.Chdir(dir)

	t.Run("explicit file missing", func(t *testing.T) {
		_, err := Load(LoadOptions{ConfigFile: filepath.Join(dir, "nope.yaml")})
		errutil.AssertErrorCode(t, err, CodeMissing)
	})

	t.Run("unknown key rejected", func(t *testing.T) {
		path := writeFile(t, dir, "unknown.yaml", "captcha:\n  secrett: typo\n")
		_, err := Load(LoadOptions{ConfigFile: path})
		errutil.AssertErrorCode(t, err, CodeInvalid)
	})

	t.Run("explicit env file missing", func(t *testing.T) {
		_, err := Load(LoadOptions{EnvFile: filepath.Join(dir, "missing.env")})
		errutil.AssertErrorCode(t, err, CodeInvalid)
	})

	t.Run("undecodable env value", func(t *testing.T) {
		t.Setenv("LOGINGUARD_THRESHOLDS__LOCKOUT_AT", "ten")
		_, err := Load(LoadOptions{})
		errutil.AssertErrorCode(t, err, CodeInvalid)
	})
}

func TestGenerateSchema(t *testing.T) {
	data, err := GenerateSchema()
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(data, &schema))
	assert.Equal(t, SchemaID, schema["$id"])
	assert.Equal(t, false, schema["additionalProperties"])

	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	for _, key := range []string{"server", "captcha", "thresholds", "credentials", "log_format", "metrics_addr"} {
		assert.Contains(t, props, key)
	}

	captchaProps := props["captcha"].(map[string]any)["properties"].(map[string]any)
	timeout := captchaProps["timeout"].(map[string]any)
	assert.Equal(t, "string", timeout["type"])
}

func TestValidateYAML(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
	}{
		{"empty", "", false},
		{"full", `
server:
  addr: ":5000"
  admin_token: t
  tls:
    self_signed: true
captcha:
  secret: s
  timeout: 1m30s
  max_retries: 2
thresholds:
  challenge_at: [4, 7]
  lockout_at: 10
  mode: exact
credentials:
  email: a@example.com
  password_hash: "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA"
`, false},
		{"unknown top-level key", "port: 5000\n", true},
		{"wrong type", "thresholds:\n  lockout_at: ten\n", true},
		{"bad enum", "log_format: xml\n", true},
		{"bad duration", "captcha:\n  timeout: soon\n", true},
		{"not yaml", "server: [\n", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateYAML([]byte(tt.yaml))
			if tt.wantErr {
				errutil.AssertErrorCode(t, err, CodeInvalid)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidateFile(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, ValidateFile(writeFile(t, dir, "ok.yaml", "log_level: warn\n")))

	errutil.AssertErrorCode(t, ValidateFile(filepath.Join(dir, "missing.yaml")), CodeMissing)
}
