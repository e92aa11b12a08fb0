// Package obs provides the ambient logging and tracing bootstrap shared by
// both cmd/ binaries. Metrics are handled separately by internal/gwmetrics.
package obs

import (
	"log/slog"
	"os"
)

// LogLevel is a typed enum over slog's log levels.
type LogLevel string

// Supported log levels.
const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// LogFormat selects the slog handler implementation.
type LogFormat string

// Supported log formats.
const (
	FormatText LogFormat = "text"
	FormatJSON LogFormat = "json"
)

// NewLogger builds a slog.Logger writing to stderr at the given level and
// format.
func NewLogger(level LogLevel, format LogFormat) *slog.Logger {
	var lvl slog.Level
	switch level {
	case LogDebug:
		lvl = slog.LevelDebug
	case LogWarn:
		lvl = slog.LevelWarn
	case LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if format == FormatJSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
