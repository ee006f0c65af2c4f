package slogx

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

func WithContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

func FromContext(ctx context.Context) *slog.Logger {
	l, ok := ctx.Value(ctxKey{}).(*slog.Logger)
	if !ok {
		return slog.Default()
	}
	return l
}

// WithFlightID tags the contextual logger with a refresh/profile flight
// identifier so interleaved single-flight waiters can be correlated.
func WithFlightID(ctx context.Context, flightID string) context.Context {
	l := FromContext(ctx)
	return WithContext(ctx, l.With("flight_id", flightID))
}
