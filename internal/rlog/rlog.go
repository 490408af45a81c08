// Package rlog is the coordination runtime's thin logging facade: a single
// package-level *slog.Logger, swappable via SetDefault, so call sites stay
// short (Debug/Info/Warn/Error) instead of threading a logger through
// every coordinator method.
package rlog

import (
	"context"
	"log/slog"
	"os"
)

var logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

// SetDefault replaces the package logger. ProtoAll construction wires a
// caller-supplied logger in via config.go's WithLogger option; when none is
// supplied, the default above (warnings and errors only) is used.
func SetDefault(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}

func Debug(msg string, args ...any) { logger.Debug(msg, args...) }
func Info(msg string, args ...any)  { logger.Info(msg, args...) }
func Warn(msg string, args ...any)  { logger.Warn(msg, args...) }
func Error(msg string, args ...any) { logger.Error(msg, args...) }

// DebugContext logs at Debug, attaching any values carried on ctx through
// the slog handler's attribute extraction (log/slog's documented pattern
// for request/firing-scoped logging).
func DebugContext(ctx context.Context, msg string, args ...any) {
	logger.DebugContext(ctx, msg, args...)
}
