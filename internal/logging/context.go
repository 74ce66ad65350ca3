package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const (
	correlationIDKey contextKey = "correlation_id"
	personIDKey      contextKey = "person_id"
)

// NewCorrelationID returns a short random id for tying log lines together.
func NewCorrelationID() string {
	return uuid.New().String()[:8]
}

// WithCorrelationID stores a correlation id in ctx.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationID returns the correlation id stored in ctx, or "".
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey).(string)
	return id
}

// WithPersonID stores the person being enriched in ctx.
func WithPersonID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, personIDKey, id)
}

// Ctx returns the global logger enriched with the ids carried by ctx.
func Ctx(ctx context.Context) *zerolog.Logger {
	c := Logger().With()
	if id := CorrelationID(ctx); id != "" {
		c = c.Str("correlation_id", id)
	}
	if id, _ := ctx.Value(personIDKey).(string); id != "" {
		c = c.Str("person_id", id)
	}
	l := c.Logger()
	return &l
}
