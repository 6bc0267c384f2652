package log

import (
	"context"

	"github.com/google/uuid"
)

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.New().String()
}

// NewRequestContext creates a new context carrying a module logger with a fresh trace ID
func NewRequestContext(parentCtx context.Context, moduleName string) (context.Context, *Logger) {
	logger := New(moduleName).WithTraceID(NewTraceID())
	return logger.WithContext(parentCtx), logger
}

// WithFields adds fields to the logger stored in ctx and returns the updated context
func WithFields(ctx context.Context, fields KV) context.Context {
	logger := FromContext(ctx)
	for k, v := range fields {
		logger = logger.WithField(k, v)
	}
	return logger.WithContext(ctx)
}

// Info logs with the logger from the context
func Info(ctx context.Context, msg string, fields ...KV) {
	FromContext(ctx).Info(msg, fields...)
}

// Warn logs with the logger from the context
func Warn(ctx context.Context, msg string, fields ...KV) {
	FromContext(ctx).Warn(msg, fields...)
}

// Error logs with the logger from the context
func Error(ctx context.Context, err error, msg string, fields ...KV) {
	FromContext(ctx).Error(err, msg, fields...)
}
