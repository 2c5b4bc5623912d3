// Package logger builds the process-wide structured logger from the
// application configuration.
package logger

import (
	"log/slog"
	"os"
	"strings"

	"github.com/paynet-transfer-switch/internal/config"
)

// NewLogger returns a JSON slog.Logger at the configured level. Debug level
// additionally stamps every record with its source location.
func NewLogger(cfg *config.Config) *slog.Logger {
	level := parseLevel(cfg.Logging.Level)

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	})

	l := slog.New(handler)
	l.Info("logger initialized", "level", level)
	return l
}

// parseLevel is forgiving: anything unrecognized means info
func parseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
