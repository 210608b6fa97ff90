// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LoginGuard Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/loginguard/loginguard/internal/config"
)

// Global flags available to all subcommands.
var (
	configFile string
	envFile    string
)

// NewRootCmd creates the root command for the LoginGuard CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "loginguard",
		Short: "LoginGuard - brute-force protection for a login endpoint",
		Long: `LoginGuard serves a login API that counts failed attempts,
demands a CAPTCHA challenge at configured thresholds, and locks
out further logins once the lockout threshold is reached.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/loginguard/config.yaml)")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file loaded into the environment (default: .env)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewStatusCmd())
	cmd.AddCommand(NewResetCmd())
	cmd.AddCommand(NewStopCmd())
	cmd.AddCommand(NewConfigCmd())
	cmd.AddCommand(NewHashPasswordCmd())

	return cmd
}

// loadConfig resolves configuration from every source, with cmd's flags on top.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	//nolint:wrapcheck // config errors already carry oops codes
	return config.Load(config.LoadOptions{
		ConfigFile: configFile,
		EnvFile:    envFile,
		Flags:      cmd.Flags(),
	})
}
