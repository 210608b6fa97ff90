// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LoginGuard Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/loginguard/loginguard/internal/config"
)

// NewConfigCmd creates the config subcommand group.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate configuration",
	}

	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigValidateCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		Long: `Print the configuration serve would use, after merging defaults,
the config file, the environment, and flags. Secrets are masked.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			out, err := yaml.Marshal(cfg.Masked())
			if err != nil {
				return fmt.Errorf("failed to encode configuration: %w", err)
			}
			cmd.Print(string(out))
			return nil
		},
	}

	config.RegisterFlags(cmd.Flags())
	return cmd
}

func newConfigValidateCmd() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a config file against the schema",
		Long: `Validate a YAML config file against the configuration schema.
With --strict, the file is also merged with the environment and checked
the way serve checks it, so missing secrets are reported.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if err := config.ValidateFile(path); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			if strict {
				cfg, err := config.Load(config.LoadOptions{ConfigFile: path, EnvFile: envFile})
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				if err := cfg.Validate(); err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
			}
			cmd.Printf("%s: ok\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "also check the merged configuration is complete")
	return cmd
}
