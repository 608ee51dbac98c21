// Package logger provides structured logging setup for Atrium.
package logger

import (
	"log/slog"
	"os"
	"strings"

	"github.com/atriumlabs/atrium/internal/config"
)

// New creates a *slog.Logger from the given Logging config together with a
// Closer that flushes buffered records on shutdown. Output is JSON to stdout
// with a "service" attribute on every record; request and tenant ids are
// stamped from the context when present. With cfg.Async the JSON handler is
// wrapped in a buffered AsyncHandler so logging never blocks request paths.
func New(cfg config.Logging) (*slog.Logger, Closer) {
	level := parseLevel(cfg.Level)

	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})

	// Both modes stamp request and tenant ids from the context: the
	// AsyncHandler does it at enqueue time, since the context does not
	// survive the handoff to its workers.
	closer := Closer(nopCloser{})
	if cfg.Async {
		async := NewAsyncHandler(handler, cfg.AsyncBuffer, 1)
		handler = async
		closer = async
	} else {
		handler = NewContextHandler(handler)
	}

	return slog.New(handler).With("service", cfg.Service), closer
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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
