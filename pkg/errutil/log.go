// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LoginGuard Contributors

// Package errutil bridges oops errors to structured logging and tests.
package errutil

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/oops"
)

// Code returns the oops code carried by err, or "" if there is none.
func Code(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	code := oopsErr.Code()
	if code == nil {
		return ""
	}
	return fmt.Sprint(code)
}

// LogError logs an error with structured context if it's an oops error.
// For oops errors, it extracts and logs the message, code and context.
// For standard errors, it logs the error string.
func LogError(logger *slog.Logger, msg string, err error, attrs ...any) {
	LogErrorContext(context.Background(), logger, msg, err, attrs...)
}

// LogErrorContext is LogError with a context, so trace IDs reach the log line.
func LogErrorContext(ctx context.Context, logger *slog.Logger, msg string, err error, attrs ...any) {
	all := append([]any{"error", err.Error()}, attrs...)
	if oopsErr, ok := oops.AsOops(err); ok {
		if code := Code(err); code != "" {
			all = append(all, "code", code)
		}
		if octx := oopsErr.Context(); len(octx) > 0 {
			all = append(all, "context", octx)
		}
	}
	logger.ErrorContext(ctx, msg, all...)
}
