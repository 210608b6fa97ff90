// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LoginGuard Contributors

// Package logging provides structured logging enriched with service identity,
// OpenTelemetry trace context, and per-request IDs.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel/trace"
)

type requestIDKey struct{}

// WithRequestID returns a context carrying the given request ID. Records
// logged with that context get a request_id attribute.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request ID stored in ctx, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// contextHandler wraps a slog.Handler to add service identity and
// request-scoped attributes.
type contextHandler struct {
	handler slog.Handler
	service string
	version string
}

// Handle adds service, trace, and request attributes to the record.
func (h *contextHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(
		slog.String("service", h.service),
		slog.String("version", h.version),
	)

	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.HasTraceID() {
		r.AddAttrs(slog.String("trace_id", spanCtx.TraceID().String()))
	}
	if spanCtx.HasSpanID() {
		r.AddAttrs(slog.String("span_id", spanCtx.SpanID().String()))
	}
	if id := RequestID(ctx); id != "" {
		r.AddAttrs(slog.String("request_id", id))
	}

	//nolint:wrapcheck // Handler interface requires unwrapped error passthrough
	return h.handler.Handle(ctx, r)
}

// Enabled returns true if the level is enabled.
func (h *contextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// WithAttrs returns a new handler with the given attributes.
func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{
		handler: h.handler.WithAttrs(attrs),
		service: h.service,
		version: h.version,
	}
}

// WithGroup returns a new handler with the given group.
func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{
		handler: h.handler.WithGroup(name),
		service: h.service,
		version: h.version,
	}
}

// Options configures Setup.
type Options struct {
	Service string
	Version string

	// Format is "json" or "text". Empty means json.
	Format string

	// Level is the minimum level logged. Zero value is Info.
	Level slog.Level

	// Output defaults to os.Stderr.
	Output io.Writer
}

// Setup creates a configured slog.Logger.
func Setup(opts Options) *slog.Logger {
	w := opts.Output
	if w == nil {
		w = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{Level: opts.Level}

	var base slog.Handler
	if opts.Format == "text" {
		base = slog.NewTextHandler(w, handlerOpts)
	} else {
		base = slog.NewJSONHandler(w, handlerOpts)
	}

	return slog.New(&contextHandler{
		handler: base,
		service: opts.Service,
		version: opts.Version,
	})
}

// SetDefault sets up the logger and installs it as slog's default.
func SetDefault(opts Options) *slog.Logger {
	logger := Setup(opts)
	slog.SetDefault(logger)
	return logger
}

// ParseLevel maps a level name (debug, info, warn, error) to a slog.Level.
// An empty name is Info.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, oops.Code("CONFIG_INVALID").
			With("log_level", name).
			Errorf("unknown log level %q", name)
	}
}
