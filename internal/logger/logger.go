// Package logger builds the zerolog logger shared by every component.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/design-desk/backend/internal/config"
)

// New creates the service logger. Pretty output targets a terminal; otherwise
// one JSON object is written per event.
func New(cfg config.LogConfig) zerolog.Logger {
	return newLogger(os.Stdout, cfg)
}

func newLogger(out io.Writer, cfg config.LogConfig) zerolog.Logger {
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).
		With().
		Timestamp().
		Str("service", "design-desk").
		Logger().
		Level(parseLevel(cfg.Level))
}

func parseLevel(raw string) zerolog.Level {
	if raw == "" {
		return zerolog.InfoLevel
	}
	level, err := zerolog.ParseLevel(strings.ToLower(raw))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}
