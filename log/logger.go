// Package log provides the structured, key/value logging call convention
// used throughout this module. It is a thin wrapper over the standard
// library's log/slog: the logging facility itself (handlers, rotation,
// shipping to a sink) is an external collaborator out of this module's
// scope, but every package here logs through this same contract so an
// embedding application can redirect or silence it with one call.
package log

import (
	"context"
	"log/slog"
	"os"
)

var std = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

// SetDefault replaces the package-level logger. Embedding applications use
// this to route tiercache's logs into their own handler (JSON, a
// log-shipping sink, a test recorder, etc).
func SetDefault(l *slog.Logger) {
	if l == nil {
		return
	}
	std = l
}

// Default returns the current package-level logger.
func Default() *slog.Logger { return std }

// Trace logs at debug level (slog has no dedicated trace level).
func Trace(msg string, ctx ...any) { std.Debug(msg, ctx...) }

// Debug logs a debug-level message with alternating key/value pairs.
func Debug(msg string, ctx ...any) { std.Debug(msg, ctx...) }

// Info logs an info-level message with alternating key/value pairs.
func Info(msg string, ctx ...any) { std.Info(msg, ctx...) }

// Warn logs a warn-level message with alternating key/value pairs.
func Warn(msg string, ctx ...any) { std.Warn(msg, ctx...) }

// Error logs an error-level message with alternating key/value pairs.
func Error(msg string, ctx ...any) { std.Error(msg, ctx...) }

// DebugContext, InfoContext, WarnContext and ErrorContext thread a context
// through to the handler (e.g. for trace/span correlation by an embedder's
// handler), matching log/slog's own context-aware API.
func DebugContext(ctx context.Context, msg string, args ...any) { std.DebugContext(ctx, msg, args...) }
func InfoContext(ctx context.Context, msg string, args ...any)  { std.InfoContext(ctx, msg, args...) }
func WarnContext(ctx context.Context, msg string, args ...any)  { std.WarnContext(ctx, msg, args...) }
func ErrorContext(ctx context.Context, msg string, args ...any) { std.ErrorContext(ctx, msg, args...) }
