package logging

import (
	"io"
	"log/slog"
	"os"
)

// Init installs the process-wide slog logger. LOG_LEVEL overrides the
// fallback level, which differs between the relay and the CLI.
func Init(fallback slog.Level) {
	slog.SetDefault(New(os.Stderr, fallback))
}

// New returns a text logger writing to w at the level selected by LOG_LEVEL.
func New(w io.Writer, fallback slog.Level) *slog.Logger {
	return slog.New(
		slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: LevelFromEnv(fallback),
		}),
	)
}

func LevelFromEnv(fallback slog.Level) slog.Level {
	l, ok := os.LookupEnv("LOG_LEVEL")
	if !ok {
		return fallback
	}
	return ParseLevel(l, fallback)
}

func ParseLevel(l string, fallback slog.Level) slog.Level {
	switch l {
	case "dev", "development", "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "production", "prod":
		return slog.LevelError
	}
	return fallback
}
