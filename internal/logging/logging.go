// Package logging builds the key/value structured loggers used across the
// module. Components depend on the Temporal SDK's log.Logger interface so the
// same code logs through activity.GetLogger inside a worker and through slog
// when run locally.
package logging

import (
	"io"
	"log/slog"
	"strings"

	"go.temporal.io/sdk/log"
)

// New returns a logger writing text records at the given level
// ("debug", "info", "warn", "error"; default "info").
func New(w io.Writer, level string) log.Logger {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})
	return log.NewStructuredLogger(slog.New(handler))
}

// Nop returns a logger that discards everything.
func Nop() log.Logger {
	return New(io.Discard, "error")
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l log.Logger) log.Logger {
	if l == nil {
		return Nop()
	}
	return l
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
