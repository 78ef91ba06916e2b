package log

import (
	"context"
	"log/slog"
)

type logCtxKey struct{}

// WithContext returns a copy of ctx carrying logger.
func WithContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, logCtxKey{}, logger)
}

// FromContext returns the logger stored in ctx, or a discarding logger if there is none.
func FromContext(ctx context.Context) *slog.Logger {
	logger, ok := ctx.Value(logCtxKey{}).(*slog.Logger)
	if ok && logger != nil {
		return logger
	}

	return New(WithWriter(nil))
}
