// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LoginGuard Contributors

package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/loginguard/loginguard/internal/auth"
	"github.com/loginguard/loginguard/internal/config"
	"github.com/loginguard/loginguard/pkg/errutil"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestConfigShow_MasksSecrets(t *testing.T) {
	dir := isolateEnv(t)
	path := writeConfig(t, dir, `
captcha:
  secret: provider-secret
credentials:
  password: hunter2
server:
  admin_token: admin-secret
`)

	out, err := runCLI(t, "--config", path, "config", "show", "--lockout-at", "12")
	require.NoError(t, err)

	assert.NotContains(t, out, "provider-secret")
	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, "admin-secret")

	var shown config.Config
	require.NoError(t, yaml.Unmarshal([]byte(out), &shown))
	assert.Equal(t, "********", shown.Captcha.Secret)
	assert.Equal(t, 12, shown.Thresholds.LockoutAt)
	assert.Equal(t, []int{4, 7}, shown.Thresholds.ChallengeAt)
}

func TestConfigShow_OutputValidatesAgainstSchema(t *testing.T) {
	isolateEnv(t)

	out, err := runCLI(t, "config", "show")
	require.NoError(t, err)

	require.NoError(t, config.ValidateYAML([]byte(out)))
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		args     []string
		wantCode string
	}{
		{
			name: "valid",
			body: "thresholds:\n  lockout_at: 5\n",
		},
		{
			name:     "unknown key",
			body:     "thresholds:\n  lockout_after: 5\n",
			wantCode: config.CodeInvalid,
		},
		{
			name:     "wrong type",
			body:     "thresholds:\n  lockout_at: lots\n",
			wantCode: config.CodeInvalid,
		},
		{
			name:     "strict reports missing secret",
			body:     "thresholds:\n  lockout_at: 5\n",
			args:     []string{"--strict"},
			wantCode: config.CodeMissing,
		},
		{
			name: "strict complete",
			body: "captcha:\n  secret: s\ncredentials:\n  password: p\n",
			args: []string{"--strict"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := isolateEnv(t)
			path := writeConfig(t, dir, tt.body)

			out, err := runCLI(t, append([]string{"config", "validate", path}, tt.args...)...)

			if tt.wantCode == "" {
				require.NoError(t, err)
				assert.Contains(t, out, path+": ok")
				return
			}
			errutil.AssertErrorCode(t, err, tt.wantCode)
			assert.Contains(t, out, path)
		})
	}
}

func TestConfigValidate_MissingFile(t *testing.T) {
	dir := isolateEnv(t)

	_, err := runCLI(t, "config", "validate", filepath.Join(dir, "nope.yaml"))

	require.Error(t, err)
}

func TestHashPassword(t *testing.T) {
	hasher := auth.NewArgon2idHasherWithParams(auth.Argon2Params{
		Time: 1, Memory: 1024, Threads: 1, SaltLen: 16, KeyLen: 32,
	})

	t.Run("hashes stdin", func(t *testing.T) {
		cmd := NewHashPasswordCmd()
		out := new(strings.Builder)
		cmd.SetOut(out)
		cmd.SetIn(strings.NewReader("hunter2\n"))

		require.NoError(t, runHashPassword(cmd, hasher))

		hash := strings.TrimSpace(out.String())
		assert.True(t, auth.IsArgon2idHash(hash))
		ok, err := hasher.Verify("hunter2", hash)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("no trailing newline", func(t *testing.T) {
		cmd := NewHashPasswordCmd()
		out := new(strings.Builder)
		cmd.SetOut(out)
		cmd.SetIn(strings.NewReader("hunter2"))

		require.NoError(t, runHashPassword(cmd, hasher))
		ok, err := hasher.Verify("hunter2", strings.TrimSpace(out.String()))
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("empty input", func(t *testing.T) {
		cmd := NewHashPasswordCmd()
		cmd.SetOut(new(strings.Builder))
		cmd.SetIn(strings.NewReader(""))

		require.Error(t, runHashPassword(cmd, hasher))
	})

	t.Run("empty line", func(t *testing.T) {
		cmd := NewHashPasswordCmd()
		cmd.SetOut(new(strings.Builder))
		cmd.SetIn(strings.NewReader("\n"))

		require.Error(t, runHashPassword(cmd, hasher))
	})
}
