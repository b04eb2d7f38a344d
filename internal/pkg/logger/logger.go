package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Initialize builds the process logger and installs it as the slog default.
// Production writes JSON at info level; anything else writes text with
// source locations at debug level. A non-empty level overrides either.
func Initialize(env string, level string) *slog.Logger {
	logger := New(os.Stdout, env, level)
	slog.SetDefault(logger)
	return logger
}

// New builds a logger writing to w
func New(w io.Writer, env string, level string) *slog.Logger {
	var handler slog.Handler

	if env == "production" {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: parseLevel(level, slog.LevelInfo),
		})
	} else {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{
			Level:     parseLevel(level, slog.LevelDebug),
			AddSource: true,
		})
	}

	return slog.New(handler)
}

// Err is the attribute used for errors across the module
func Err(err error) slog.Attr {
	return slog.Any("error", err)
}

func parseLevel(level string, fallback slog.Level) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return fallback
	}
}
