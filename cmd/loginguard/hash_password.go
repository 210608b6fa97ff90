// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LoginGuard Contributors

package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/loginguard/loginguard/internal/auth"
)

// NewHashPasswordCmd creates the hash-password subcommand.
func NewHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Hash a password read from stdin",
		Long: `Read one line from stdin and print its argon2id hash, for use as
credentials.password_hash. The password never appears in argv.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHashPassword(cmd, auth.NewArgon2idHasher())
		},
	}
}

func runHashPassword(cmd *cobra.Command, hasher auth.PasswordHasher) error {
	reader := bufio.NewReader(cmd.InOrStdin())
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("failed to read password from stdin: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")

	hash, err := hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	cmd.Println(hash)
	return nil
}
