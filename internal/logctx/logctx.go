// Package logctx carries a request-scoped slog.Logger through a
// context.Context and enriches records with OpenTelemetry trace
// identifiers.
package logctx

import (
	"context"
	"log/slog"
)

type contextKey struct{}

// WithLogger stores logger in ctx for retrieval further down the call
// chain.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// LoggerFromContext returns the logger stored by WithLogger, falling
// back to slog.Default when none is present.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(contextKey{}).(*slog.Logger); ok && l != nil {
		return l
	}

	return slog.Default()
}
