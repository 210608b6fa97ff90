// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LoginGuard Contributors

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/loginguard/loginguard/internal/control"
)

// ProcessStatus holds the status information for the running server.
type ProcessStatus struct {
	Running        bool   `json:"running"`
	Health         string `json:"health,omitempty"`
	PID            int    `json:"pid,omitempty"`
	UptimeSeconds  int64  `json:"uptime_seconds,omitempty"`
	FailedAttempts int    `json:"failed_attempts"`
	ChallengeAt    []int  `json:"challenge_at,omitempty"`
	LockoutAt      int    `json:"lockout_at,omitempty"`
	ChallengeMode  string `json:"challenge_mode,omitempty"`
	Error          string `json:"error,omitempty"`
}

// statusConfig holds configuration for the status command.
type statusConfig struct {
	jsonOutput bool
	socketPath string
}

// NewStatusCmd creates the status subcommand.
func NewStatusCmd() *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show status of the running LoginGuard server",
		Long: `Show the health of the running server and its failed-attempt
counter, queried over the control socket.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, cfg)
		},
	}

	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")
	addSocketFlag(cmd, &cfg.socketPath)

	return cmd
}

// addSocketFlag registers --socket on an operator command.
func addSocketFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVar(target, "socket", "", "control socket path (default: from config, then XDG_RUNTIME_DIR/loginguard/loginguard.sock)")
}

// resolveSocketPath picks the flag, then the configured path, then the default.
func resolveSocketPath(cmd *cobra.Command, flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	cfg, err := loadConfig(cmd)
	if err == nil && cfg.ControlSocketPath != "" {
		return cfg.ControlSocketPath, nil
	}
	path, err := control.SocketPath()
	if err != nil {
		return "", fmt.Errorf("failed to get socket path: %w", err)
	}
	return path, nil
}

// runStatus executes the status command.
func runStatus(cmd *cobra.Command, cfg *statusConfig) error {
	socketPath, err := resolveSocketPath(cmd, cfg.socketPath)
	if err != nil {
		return err
	}

	status := queryProcessStatus(commandContext(cmd), socketPath)

	var output string
	if cfg.jsonOutput {
		output, err = formatStatusJSON(status)
		if err != nil {
			return fmt.Errorf("failed to format JSON: %w", err)
		}
	} else {
		output = formatStatusTable(status)
	}

	cmd.Println(output)
	return nil
}

// queryProcessStatus queries the control socket and returns the server status.
func queryProcessStatus(ctx context.Context, socketPath string) ProcessStatus {
	var status ProcessStatus

	if _, err := os.Stat(socketPath); os.IsNotExist(err) {
		status.Error = "socket not found"
		return status
	}

	client := control.NewClient(socketPath)

	health, err := client.Health(ctx)
	if err != nil {
		status.Error = fmt.Sprintf("failed to connect: %v", err)
		return status
	}

	controlStatus, err := client.Status(ctx)
	if err != nil {
		// Health succeeded but status failed - still consider running
		status.Running = true
		status.Health = health.Status
		return status
	}

	status.Running = controlStatus.Running
	status.Health = health.Status
	status.PID = controlStatus.PID
	status.UptimeSeconds = controlStatus.UptimeSeconds
	status.FailedAttempts = controlStatus.Attempts.FailedAttempts
	status.ChallengeAt = controlStatus.Attempts.ChallengeAt
	status.LockoutAt = controlStatus.Attempts.LockoutAt
	status.ChallengeMode = string(controlStatus.Attempts.ChallengeMode)

	return status
}

// formatStatusTable formats the status as a human-readable table.
func formatStatusTable(status ProcessStatus) string {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "STATUS\tHEALTH\tPID\tUPTIME\tFAILED\tCHALLENGE AT\tLOCKOUT AT\tMODE")
	_, _ = fmt.Fprintln(w, "------\t------\t---\t------\t------\t------------\t----------\t----")

	if status.Running {
		_, _ = fmt.Fprintf(w, "running\t%s\t%d\t%s\t%d\t%s\t%d\t%s\n",
			status.Health, status.PID, formatUptime(status.UptimeSeconds),
			status.FailedAttempts, formatInts(status.ChallengeAt), status.LockoutAt, status.ChallengeMode)
	} else {
		reason := "not running"
		if status.Error != "" {
			reason = status.Error
		}
		_, _ = fmt.Fprintf(w, "stopped\t-\t-\t%s\t-\t-\t-\t-\n", reason)
	}

	_ = w.Flush()
	return buf.String()
}

// formatStatusJSON formats the status as JSON.
func formatStatusJSON(status ProcessStatus) (string, error) {
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal status: %w", err)
	}
	return string(data), nil
}

// formatUptime formats seconds into a human-readable duration.
func formatUptime(seconds int64) string {
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	if seconds < 3600 {
		return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
	}
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	return fmt.Sprintf("%dh %dm", hours, minutes)
}

func formatInts(values []int) string {
	if len(values) == 0 {
		return "-"
	}
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ",")
}
