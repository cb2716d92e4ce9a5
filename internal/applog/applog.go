// Package applog provides a small, globally-accessible slog.Logger for the
// REPL and HTTP surfaces. The engine's core packages (storage, catalog,
// table, database, sql/*) stay silent and return errors instead of
// logging; only the edges log.
package applog

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	logger   *slog.Logger
	loggerMu sync.RWMutex
	initOnce sync.Once
)

// Format selects the slog.Handler used by Init.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Config configures the global logger.
type Config struct {
	Level  slog.Level
	Output io.Writer // defaults to os.Stderr if nil
	Format Format    // defaults to FormatText
}

// Init installs the global logger. Safe to call more than once; the most
// recent call wins.
func Init(cfg Config) {
	loggerMu.Lock()
	defer loggerMu.Unlock()

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: cfg.Level}
	var handler slog.Handler
	if cfg.Format == FormatJSON {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	logger = slog.New(handler)
}

// Logger returns the global logger, initializing it with defaults (text,
// info level, stderr) on first use if Init was never called.
func Logger() *slog.Logger {
	loggerMu.RLock()
	if logger != nil {
		l := logger
		loggerMu.RUnlock()
		return l
	}
	loggerMu.RUnlock()

	initOnce.Do(func() {
		Init(Config{Level: slog.LevelInfo})
	})

	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logger
}
