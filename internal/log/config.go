package log

import (
	"log/slog"
	"strings"
)

// Config represents logging configuration.
type Config struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// DefaultConfig returns default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "text",
	}
}

// ParseLevel parses a string log level to slog.Level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Configure builds a logger from config and installs it as the default.
func Configure(cfg Config) Logger {
	level := ParseLevel(cfg.Level)

	var l Logger
	switch strings.ToLower(cfg.Format) {
	case "json":
		l = NewJSONLogger(level)
	default:
		l = NewTextLogger(level)
	}

	SetDefault(l)
	return l
}
