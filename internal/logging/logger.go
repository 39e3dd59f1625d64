package logging

import (
	"io"
	"log/slog"
	"os"
)

// New creates a JSON slog logger configured at the provided level and tagged
// with the application name. If the level string is invalid it defaults to info.
func New(app, level string) *slog.Logger {
	lvl := new(slog.LevelVar)
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl.Set(slog.LevelInfo)
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	logger := slog.New(handler)
	if app != "" {
		logger = logger.With(slog.String("app", app))
	}
	return logger
}

// Discard returns a logger that drops all output. Useful for tests.
func Discard() *slog.Logger {
	handler := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}
