// Package logging provides the structured logger shared by the sender
// and receiver processes.
package logging

import (
	"io"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/google/uuid"
)

var logger atomic.Pointer[slog.Logger]

// RunID is a per-process correlation id, attached to every log record so
// entries from a single sender/receiver run can be grepped out of a
// shared log stream.
var RunID = uuid.NewString()

func init() {
	l := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})).With("run_id", RunID)
	logger.Store(l)
}

// L returns the current global logger.
func L() *slog.Logger { return logger.Load() }

// Set replaces the global logger.
func Set(l *slog.Logger) {
	if l != nil {
		logger.Store(l)
	}
}

// New creates a logger with the given level and format ("text" or
// "json"), defaulting to stderr, tagged with the process run id.
func New(format string, level slog.Leveler, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	var h slog.Handler
	switch format {
	case "json":
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	default:
		h = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	}
	return slog.New(h).With("run_id", RunID)
}
