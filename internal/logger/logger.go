// Package logger provides structured logging for the rrd4j library on top of
// log/slog. The zero value logs text at INFO to stderr; embedding applications
// reconfigure it once at startup via Init.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Config holds logger configuration.
type Config struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // text, json
	Output string // stdout, stderr, or a file path
}

var (
	mu      sync.RWMutex
	slogger = slog.New(slog.NewTextHandler(os.Stderr, nil))
)

// Init reconfigures the package logger. Output can be "stdout", "stderr",
// or a file path, which is opened in append mode.
func Init(cfg Config) error {
	var w io.Writer
	switch strings.ToLower(cfg.Output) {
	case "", "stderr":
		w = os.Stderr
	case "stdout":
		w = os.Stdout
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("open log output %q: %w", cfg.Output, err)
		}
		w = f
	}
	InitWithWriter(w, cfg.Level, cfg.Format)
	return nil
}

// InitWithWriter reconfigures the package logger with an explicit writer.
// Tests use this to capture output.
func InitWithWriter(w io.Writer, level, format string) {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}

	mu.Lock()
	slogger = slog.New(h)
	mu.Unlock()
}

func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func get() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return slogger
}

// Debug logs at DEBUG level with structured key-value pairs.
func Debug(msg string, args ...any) {
	get().Debug(msg, args...)
}

// Info logs at INFO level with structured key-value pairs.
func Info(msg string, args ...any) {
	get().Info(msg, args...)
}

// Warn logs at WARN level with structured key-value pairs.
func Warn(msg string, args ...any) {
	get().Warn(msg, args...)
}

// Error logs at ERROR level with structured key-value pairs.
func Error(msg string, args ...any) {
	get().Error(msg, args...)
}

// With returns a *slog.Logger carrying the given fields. Long-lived
// components hold one of these instead of repeating their identity on
// every call.
func With(args ...any) *slog.Logger {
	return get().With(args...)
}
