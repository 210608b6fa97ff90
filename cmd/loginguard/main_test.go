// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LoginGuard Contributors

package main

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolateEnv points every implicit config source at an empty temp dir and
// clears LOGINGUARD_* variables for the duration of the test.
func isolateEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("XDG_RUNTIME_DIR", dir)
	t.Setenv("PORT", "")
	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(name, "LOGINGUARD_") {
			t.Setenv(name, "")
			require.NoError(t, os.Unsetenv(name))
		}
	}
	configFile = ""
	envFile = ""
	return dir
}

func TestRootCommand_HasExpectedSubcommands(t *testing.T) {
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})

	require.NoError(t, cmd.Execute())

	output := buf.String()
	for _, sub := range []string{"serve", "status", "reset", "stop", "config", "hash-password"} {
		assert.Contains(t, output, sub, "Help missing %q command", sub)
	}
}

func TestRootCommand_GlobalFlags(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		wantConfig string
		wantEnv    string
	}{
		{
			name:       "config flag",
			args:       []string{"--config", "/path/to/config.yaml", "--help"},
			wantConfig: "/path/to/config.yaml",
		},
		{
			name:       "flags with equals",
			args:       []string{"--config=/etc/loginguard.yaml", "--env-file=/etc/loginguard.env", "--help"},
			wantConfig: "/etc/loginguard.yaml",
			wantEnv:    "/etc/loginguard.env",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configFile = ""
			envFile = ""

			cmd := NewRootCmd()
			cmd.SetOut(new(bytes.Buffer))
			cmd.SetArgs(tt.args)

			require.NoError(t, cmd.Execute())
			assert.Equal(t, tt.wantConfig, configFile)
			assert.Equal(t, tt.wantEnv, envFile)
		})
	}
}

func TestRootCommand_VersionFlag(t *testing.T) {
	cmd := NewRootCmd()
	cmd.Version = "test-version"
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--version"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "test-version")
}

func TestServeCommand_Flags(t *testing.T) {
	cmd := NewServeCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})

	require.NoError(t, cmd.Execute())

	for _, flag := range []string{
		"--addr", "--allowed-origins", "--trusted-proxies", "--metrics-addr", "--control-socket",
		"--log-format", "--log-level", "--challenge-at", "--lockout-at",
		"--threshold-mode", "--count-rejected-captchas", "--tls-self-signed",
	} {
		assert.Contains(t, buf.String(), flag, "Help missing %q flag", flag)
	}
	assert.NotContains(t, buf.String(), "--captcha-secret", "secrets must not be flags")
}
