package service

import (
	"context"

	"redditscheduler/internal/tracing"

	"github.com/sirupsen/logrus"
)

// ContextKey is a package-local type to prevent context key collisions
// See staticcheck SA1029 guidance
type ContextKey string

// VerboseContextKey is the strongly-typed context key for verbose logging flag
const VerboseContextKey ContextKey = "verbose"

const contentPreviewLength = 80

// WithVerbose marks ctx for verbose logging
func WithVerbose(ctx context.Context, verbose bool) context.Context {
	return context.WithValue(ctx, VerboseContextKey, verbose)
}

// IsVerboseLogging checks if verbose logging is enabled from context
func IsVerboseLogging(ctx context.Context) bool {
	if verbose, ok := ctx.Value(VerboseContextKey).(bool); ok {
		return verbose
	}
	return false
}

// SanitizeContent hides post bodies unless verbose logging is on, in which
// case a short preview is returned.
func SanitizeContent(ctx context.Context, content string) string {
	if content == "" {
		return ""
	}
	if !IsVerboseLogging(ctx) {
		return "[hidden]"
	}
	runes := []rune(content)
	if len(runes) > contentPreviewLength {
		return string(runes[:contentPreviewLength]) + "..."
	}
	return content
}

// LogWithContext returns an entry carrying the request and trace ids found in ctx
func LogWithContext(ctx context.Context, logger *logrus.Logger) *logrus.Entry {
	fields := logrus.Fields{}
	if id := tracing.GetRequestID(ctx); id != "" {
		fields[LogFieldRequestID] = id
	}
	if id := tracing.GetOtelTraceID(ctx); id != "" {
		fields[LogFieldTraceID] = id
	}
	return logger.WithFields(fields)
}
