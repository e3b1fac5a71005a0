// Package logging configures log/slog for the registry and carries request
// scoped fields (chi request id, acting principal) through context.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

// Setup installs the default logger writing to stdout.
//
// Level values: "debug", "info", "warn", "error" (default: "info")
// Format values: "text", "json" (default: "text")
func Setup(level, format string) {
	slog.SetDefault(New(os.Stdout, level, format))
}

// New builds a logger without installing it. Every record carries
// service=registry so mixed log streams can be filtered.
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler).With("service", "registry")
}

// ParseLevel maps a level name to slog.Level. Unknown names are info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type principalKey struct{}

// WithPrincipal stores the acting principal id for FromContext.
func WithPrincipal(ctx context.Context, principalID string) context.Context {
	if principalID == "" {
		return ctx
	}
	return context.WithValue(ctx, principalKey{}, principalID)
}

// FromContext returns the default logger with request_id and principal_id
// attached when ctx carries them.
//
//	logging.FromContext(r.Context()).Info("person edited", "person_id", id)
func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()

	if reqID := middleware.GetReqID(ctx); reqID != "" {
		logger = logger.With("request_id", reqID)
	}
	if id, ok := ctx.Value(principalKey{}).(string); ok {
		logger = logger.With("principal_id", id)
	}
	return logger
}

// WithFields is FromContext plus args, for loggers that follow one
// operation through several steps:
//
//	batchLogger := logging.WithFields(ctx, "change_source_id", sourceID)
//	batchLogger.Info("snapshot applied", "inserted", stats.Inserted)
func WithFields(ctx context.Context, args ...any) *slog.Logger {
	return FromContext(ctx).With(args...)
}
