// ABOUTME: Debug logging wrapper around slog for agent-loop diagnostics
// ABOUTME: Global level via SetLevel; writes to stderr so it never mixes with event sink output

package log

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
)

// Level constants matching slog levels.
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

var level atomic.Int64

var handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: LevelDebug})
var logger = slog.New(handler)

func init() {
	level.Store(int64(LevelInfo))
}

// SetLevel sets the global log level.
func SetLevel(l slog.Level) {
	level.Store(int64(l))
}

// GetLevel returns the current log level.
func GetLevel() slog.Level {
	return slog.Level(level.Load())
}

// Debug logs a printf-style debug message if the level allows it.
func Debug(format string, args ...any) {
	emit(LevelDebug, format, args...)
}

// Info logs a printf-style info message if the level allows it.
func Info(format string, args ...any) {
	emit(LevelInfo, format, args...)
}

// Warn logs a printf-style warning message if the level allows it.
func Warn(format string, args ...any) {
	emit(LevelWarn, format, args...)
}

// Error logs a printf-style error message; always emitted.
func Error(format string, args ...any) {
	emit(LevelError, format, args...)
}

func emit(lvl slog.Level, format string, args ...any) {
	if lvl < GetLevel() {
		return
	}
	logger.Log(context.Background(), lvl, fmt.Sprintf(format, args...))
}
