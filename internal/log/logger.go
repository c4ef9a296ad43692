// Package log configures the process-wide zerolog logger and hands out
// component loggers.
package log

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config captures options for configuring the global logger.
type Config struct {
	Level   string    // "debug", "info", ...; falls back to LOG_LEVEL
	Output  io.Writer // defaults to os.Stderr
	Service string    // attached to every entry
	Pretty  bool      // human-readable console output
}

var (
	mu   sync.RWMutex
	base = zerolog.New(os.Stderr).With().Timestamp().Str("service", "iptvdeck").Logger()
)

// Configure replaces the global logger. Safe to call more than once.
func Configure(cfg Config) {
	level := zerolog.InfoLevel
	lvl := cfg.Level
	if lvl == "" {
		lvl = os.Getenv("LOG_LEVEL")
	}
	if lvl != "" {
		if parsed, err := zerolog.ParseLevel(lvl); err == nil {
			level = parsed
		}
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	writer := cfg.Output
	if writer == nil {
		writer = os.Stderr
	}
	if cfg.Pretty {
		writer = zerolog.ConsoleWriter{Out: writer, TimeFormat: time.Kitchen}
	}
	service := cfg.Service
	if service == "" {
		service = "iptvdeck"
	}

	mu.Lock()
	base = zerolog.New(writer).With().Timestamp().Str("service", service).Logger()
	mu.Unlock()
}

// Base returns the configured base logger.
func Base() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// WithComponent returns a child logger annotated with the given component name.
func WithComponent(component string) zerolog.Logger {
	return Base().With().Str("component", component).Logger()
}
