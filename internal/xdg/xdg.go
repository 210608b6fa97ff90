// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LoginGuard Contributors

// Package xdg provides XDG Base Directory paths for loginguard.
package xdg

import (
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

const appName = "loginguard"

// ConfigFileName is the file looked up in ConfigDir when no --config is given.
const ConfigFileName = "config.yaml"

func home() (string, error) {
	h := os.Getenv("HOME")
	if h == "" {
		return "", oops.Code("XDG_NO_HOME").Errorf("HOME is not set")
	}
	return h, nil
}

func dir(envVar string, fallback ...string) (string, error) {
	if base := os.Getenv(envVar); base != "" {
		return filepath.Join(base, appName), nil
	}
	h, err := home()
	if err != nil {
		return "", oops.With("env", envVar).Wrap(err)
	}
	parts := append([]string{h}, fallback...)
	return filepath.Join(append(parts, appName)...), nil
}

// ConfigDir returns the XDG config directory for loginguard.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() (string, error) {
	return dir("XDG_CONFIG_HOME", ".config")
}

// ConfigFile returns the default config file path.
func ConfigFile() (string, error) {
	d, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, ConfigFileName), nil
}

// StateDir returns the XDG state directory for loginguard.
// Checks XDG_STATE_HOME first, falls back to ~/.local/state.
func StateDir() (string, error) {
	return dir("XDG_STATE_HOME", ".local", "state")
}

// RuntimeDir returns the XDG runtime directory for loginguard.
// Checks XDG_RUNTIME_DIR first, falls back to StateDir()/run.
func RuntimeDir() (string, error) {
	if base := os.Getenv("XDG_RUNTIME_DIR"); base != "" {
		return filepath.Join(base, appName), nil
	}
	state, err := StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(state, "run"), nil
}

// EnsureDir creates a directory and all parent directories if they don't exist.
// Directories are created with 0700 permissions.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return oops.Code("XDG_MKDIR_FAILED").With("path", path).Wrap(err)
	}
	return nil
}
