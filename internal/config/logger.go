package config

import (
	"errors"
	"io"
	"log/slog"
	"os"
)

// ConfigureLogger points the default slog logger at stdout (text) or, when
// logFile is set, at that file (JSON).
//
// Valid log levels are "none", "error", "warn", "info", "debug". Any other
// value returns an error.
//
// Returns the os.File slog writes to, if any, so the caller may close it on
// shutdown.
func ConfigureLogger(logLevel string, logFile string) (*os.File, error) {
	var opts slog.HandlerOptions

	switch logLevel {
	case "none":
		slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
		return nil, nil
	case "error":
		opts.Level = slog.LevelError
	case "warn":
		opts.Level = slog.LevelWarn
	case "info":
		opts.Level = slog.LevelInfo
	case "debug":
		opts.Level = slog.LevelDebug
	default:
		return nil, errors.New("unexpected log level")
	}

	if logFile == "" {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &opts)))
		return nil, nil
	}

	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(f, &opts)))
	return f, nil
}
