// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LoginGuard Contributors

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loginguard/loginguard/internal/control"
)

// NewResetCmd creates the reset subcommand.
func NewResetCmd() *cobra.Command {
	var socketPath string

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Reset the failed-attempt counter of the running server",
		Long: `Reset the failed-attempt counter through the control socket.
This lifts a lockout without restarting the server.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := resolveSocketPath(cmd, socketPath)
			if err != nil {
				return err
			}
			resp, err := control.NewClient(path).Reset(commandContext(cmd))
			if err != nil {
				return fmt.Errorf("failed to reset: %w", err)
			}
			cmd.Printf("%s (was %d failed attempts)\n", resp.Message, resp.PreviousFailedAttempts)
			return nil
		},
	}

	addSocketFlag(cmd, &socketPath)
	return cmd
}

// NewStopCmd creates the stop subcommand.
func NewStopCmd() *cobra.Command {
	var socketPath string

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Gracefully stop the running server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := resolveSocketPath(cmd, socketPath)
			if err != nil {
				return err
			}
			resp, err := control.NewClient(path).Shutdown(commandContext(cmd))
			if err != nil {
				return fmt.Errorf("failed to stop: %w", err)
			}
			cmd.Println(resp.Message)
			return nil
		},
	}

	addSocketFlag(cmd, &socketPath)
	return cmd
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
