package observability

import (
	"context"
	"io"
	"log/slog"

	"github.com/polo52/polochat/internal/config"
)

type ctxKey string

const (
	traceIDKey ctxKey = "trace_id"
	turnIDKey  ctxKey = "turn_id"
)

func NewLogger(cfg config.Config, writer io.Writer) *slog.Logger {
	if writer == nil {
		writer = io.Discard
	}
	options := &slog.HandlerOptions{Level: cfg.Observability.LogLevel}
	var handler slog.Handler
	if cfg.Observability.LogJSON {
		handler = slog.NewJSONHandler(writer, options)
	} else {
		handler = slog.NewTextHandler(writer, options)
	}
	return slog.New(handler).With(
		slog.String("service", cfg.Service.Name),
		slog.String("profile", string(cfg.Profile)),
	)
}

func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

func TraceIDFromContext(ctx context.Context) string {
	value, ok := ctx.Value(traceIDKey).(string)
	if !ok {
		return ""
	}
	return value
}

func ContextWithTurnID(ctx context.Context, turnID string) context.Context {
	return context.WithValue(ctx, turnIDKey, turnID)
}

func TurnIDFromContext(ctx context.Context) string {
	value, ok := ctx.Value(turnIDKey).(string)
	if !ok {
		return ""
	}
	return value
}

// LoggerFromContext decorates logger with whatever correlation ids ctx carries.
func LoggerFromContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if traceID := TraceIDFromContext(ctx); traceID != "" {
		logger = logger.With(slog.String("trace_id", traceID))
	}
	if turnID := TurnIDFromContext(ctx); turnID != "" {
		logger = logger.With(slog.String("turn_id", turnID))
	}
	return logger
}
