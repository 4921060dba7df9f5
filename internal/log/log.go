// Package log is the logging layer for lakitu: a thin alias over
// log/slog plus the factory functions the rest of the tree uses.
//
// Loggers are dependency-injected, never global. Each component takes
// a log.Logger in its constructor and narrows it with With:
//
//	logger := log.New(log.Config{Level: slog.LevelDebug})
//	registry := tools.NewRegistry(logger.With("component", "tools"))
//
// Tests use NewNop, or NewWithWriter over a bytes.Buffer when they
// need to assert on output.
package log

import (
	"io"
	"log/slog"
	"os"
)

// Logger aliases *slog.Logger so components stay compatible with the
// slog ecosystem without a wrapper interface.
type Logger = *slog.Logger

// Config defines logger configuration options.
type Config struct {
	// Level sets the minimum log level. Default: slog.LevelInfo
	Level slog.Level

	// JSON switches output from text to JSON format.
	JSON bool

	// AddSource includes the source file position in each entry.
	AddSource bool
}

// New creates a logger writing to os.Stderr.
func New(cfg Config) Logger {
	return NewWithWriter(os.Stderr, cfg)
}

// NewWithWriter creates a logger writing to w.
func NewWithWriter(w io.Writer, cfg Config) Logger {
	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// NewNop creates a logger that discards everything. Test-only:
// production code silently losing its logs is a debugging dead end.
func NewNop() Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
