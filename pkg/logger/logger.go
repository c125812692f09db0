// Package logger provides the structured logging conventions shared across
// the module: a scoped slog.Logger constructor and the Scope/Error
// attribute helpers used at every call site.
package logger

import (
	"log/slog"
	"os"
	"strings"

	"go.uber.org/fx"
)

// Module provides the process-wide *slog.Logger to the fx graph.
var Module = fx.Module("logger", fx.Provide(NewLogger))

// NewLogger builds the process-wide *slog.Logger. In "", "local" or
// "development" GO_ENV it uses a human-readable text handler; otherwise JSON. Level is controlled
// by LOG_LEVEL (debug|info|warn|error), defaulting to info.
func NewLogger() *slog.Logger {
	level := parseLevel(os.Getenv("LOG_LEVEL"))
	opts := &slog.HandlerOptions{Level: level}

	env := os.Getenv("GO_ENV")
	var handler slog.Handler
	if env == "" || env == "local" || env == "development" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// Scope tags a logger record with the component/subsystem it came from,
// e.g. logger.Scope("entitystore").
func Scope(scope string) slog.Attr {
	return slog.String("scope", scope)
}

// Error attaches an error to a log record under the conventional "error" key.
func Error(err error) slog.Attr {
	return slog.Any("error", err)
}
