package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"

type Config struct {
	Level   string
	Console bool
}

// New builds the root logger. Components receive children via With().
// The effective level is the process-global one so it can be raised or
// lowered live on config reload (SetLevel).
func New(cfg Config) zerolog.Logger {
	var w io.Writer = os.Stdout
	if cfg.Console {
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: consoleTimeFormat}
	}
	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))
	return zerolog.New(w).With().Timestamp().Logger()
}

// SetLevel applies a new level process-wide.
func SetLevel(s string) {
	zerolog.SetGlobalLevel(ParseLevel(s))
}

// ParseLevel maps a config string to a zerolog level; unknown values fall back to info.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "", "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Nop returns a logger that never writes anything. Handy in tests.
func Nop() zerolog.Logger { return zerolog.Nop() }

func init() {
	zerolog.DurationFieldUnit = time.Millisecond
}
