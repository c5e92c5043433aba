package mediacache

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/hupe1980/mediacache/chunk"
)

// Logger wraps slog.Logger with mediacache-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithAsset adds an asset field to the logger.
func (l *Logger) WithAsset(asset string) *Logger {
	return &Logger{
		Logger: l.Logger.With("asset", asset),
	}
}

// WithRequestID adds a request_id field to the logger.
func (l *Logger) WithRequestID(id string) *Logger {
	return &Logger{
		Logger: l.Logger.With("request_id", id),
	}
}

// LogFetch logs the end of a remote fetch.
func (l *Logger) LogFetch(ctx context.Context, key chunk.Key, path string, bytes int64, d time.Duration, err error) {
	if err != nil {
		l.WarnContext(ctx, "fetch failed",
			"key", key.String(),
			"path", path,
			"bytes", bytes,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "fetch completed",
			"key", key.String(),
			"path", path,
			"bytes", bytes,
			"duration", d,
		)
	}
}

// LogEviction logs a cache eviction.
func (l *Logger) LogEviction(ctx context.Context, key chunk.Key, reason chunk.EvictReason) {
	l.DebugContext(ctx, "cache entry evicted",
		"key", key.String(),
		"reason", reason.String(),
	)
}

// LogRequest logs a served HTTP request.
func (l *Logger) LogRequest(ctx context.Context, method, path string, status int, bytes int64, d time.Duration) {
	switch {
	case status >= 500:
		l.ErrorContext(ctx, "request failed",
			"method", method,
			"path", path,
			"status", status,
			"duration", d,
		)
	default:
		l.InfoContext(ctx, "request served",
			"method", method,
			"path", path,
			"status", status,
			"bytes", bytes,
			"duration", d,
		)
	}
}
