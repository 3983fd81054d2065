// Package logger holds the process-wide zerolog logger and hands out
// component-scoped children.
package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	mu   sync.RWMutex
	base = zerolog.New(os.Stderr).With().Timestamp().Logger()
)

// Init configures the global logger. Unknown levels fall back to info.
// Pretty switches to a human-readable console writer.
func Init(level string, pretty bool) {
	InitWithWriter(os.Stderr, level, pretty)
}

// InitWithWriter is Init with an explicit destination, used by tests.
func InitWithWriter(w io.Writer, level string, pretty bool) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	out := w
	if pretty {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}

	mu.Lock()
	base = zerolog.New(out).Level(lvl).With().Timestamp().Logger()
	mu.Unlock()
}

// Get returns the global logger.
func Get() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// WithComponent returns a child logger tagged with component.
func WithComponent(component string) zerolog.Logger {
	return Get().With().Str("component", component).Logger()
}
