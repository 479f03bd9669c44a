package log

import (
	"context"
	"log/slog"
	"os"

	"github.com/google/uuid"
)

var (
	defaultLogLevel slog.LevelVar
	defaultLogger   = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: true,
		Level:     &defaultLogLevel,
	}))
)

func init() {
	defaultLogLevel.Set(slog.LevelInfo)
}

type contextKey int

const (
	loggerKey contextKey = iota
	requestIDKey
)

// Ctx returns the logger from the context. If no logger is found, it returns the default logger.
func Ctx(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return l
	}
	return defaultLogger
}

// With returns a new context with the given logger.
func With(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// WithRequestID tags the context with a new request id and attaches a logger
// that includes it on every record.
func WithRequestID(ctx context.Context) context.Context {
	id := uuid.NewString()
	ctx = context.WithValue(ctx, requestIDKey, id)
	return With(ctx, Ctx(ctx).With(slog.String("requestID", id)))
}

// RequestID returns the request id stored by WithRequestID, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func SetDefaultLogLevel(level slog.Level) {
	defaultLogLevel.Set(level)
}

// SetDefaultLogger replaces the logger returned by Ctx for contexts without
// one. It must be called before any goroutine logs.
func SetDefaultLogger(l *slog.Logger) {
	defaultLogger = l
}
