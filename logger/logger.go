package logger

import (
	"context"
	"log/slog"
)

// Logger is the global logger instance
var Logger *slog.Logger

// ContextKey is used for context values
type ContextKey string

const (
	// RequestIDKey is the context key for the request ID
	RequestIDKey ContextKey = "request_id"
	// EntityKey is the context key for the entity a query targets
	EntityKey ContextKey = "entity"
)

func init() {
	config := LoadConfig()
	Logger = NewLogger(config)
}

// Debug logs a debug message
func Debug(msg string, args ...any) {
	Logger.Debug(msg, args...)
}

// Info logs an info message
func Info(msg string, args ...any) {
	Logger.Info(msg, args...)
}

// Warn logs a warning message
func Warn(msg string, args ...any) {
	Logger.Warn(msg, args...)
}

// Error logs an error message
func Error(msg string, args ...any) {
	Logger.Error(msg, args...)
}

// DebugContext logs a debug message with context values appended
func DebugContext(ctx context.Context, msg string, args ...any) {
	Logger.Debug(msg, appendContextArgs(ctx, args...)...)
}

// InfoContext logs an info message with context values appended
func InfoContext(ctx context.Context, msg string, args ...any) {
	Logger.Info(msg, appendContextArgs(ctx, args...)...)
}

// WarnContext logs a warning message with context values appended
func WarnContext(ctx context.Context, msg string, args ...any) {
	Logger.Warn(msg, appendContextArgs(ctx, args...)...)
}

// ErrorContext logs an error message with context values appended
func ErrorContext(ctx context.Context, msg string, args ...any) {
	Logger.Error(msg, appendContextArgs(ctx, args...)...)
}

func appendContextArgs(ctx context.Context, args ...any) []any {
	if ctx == nil {
		return args
	}
	for _, key := range []ContextKey{RequestIDKey, EntityKey} {
		if v := ctx.Value(key); v != nil {
			args = append(args, string(key), v)
		}
	}
	return args
}
