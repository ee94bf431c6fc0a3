// Package log configures the process-wide slog logger for the photo
// analyzer. Logs go to stderr so the gallery prompt owns stdout.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// AppName tags every record emitted through this package.
const AppName = "photo-analyzer"

var (
	mu     sync.RWMutex
	logger *slog.Logger
)

// ParseLevel maps a level name to a slog.Level. Unknown names are info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Format picks the handler encoding: LOG_FORMAT wins, then GO_ENV=production
// selects json, otherwise text.
func Format() string {
	if f := strings.ToLower(os.Getenv("LOG_FORMAT")); f == "json" || f == "text" {
		return f
	}
	if os.Getenv("GO_ENV") == "production" {
		return "json"
	}
	return "text"
}

// New builds a logger writing to w. Debug level also records the call site.
func New(w io.Writer, level, format string) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{Level: lvl, AddSource: lvl <= slog.LevelDebug}

	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h).With("app", AppName)
}

// Init installs the process logger on stderr and makes it the slog default.
// Later calls replace it.
func Init(level string) {
	l := New(os.Stderr, level, Format())

	mu.Lock()
	logger = l
	mu.Unlock()
	slog.SetDefault(l)
}

// L returns the process logger, initializing it at info on first use.
func L() *slog.Logger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l == nil {
		Init("info")
		return L()
	}
	return l
}

// With returns the process logger with extra attributes.
func With(args ...any) *slog.Logger {
	return L().With(args...)
}
