package tracing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RequestInfo contains tracing information for a request
type RequestInfo struct {
	RequestID string    `json:"request_id"`
	TraceID   string    `json:"trace_id"`
	SpanID    string    `json:"span_id"`
	StartTime time.Time `json:"start_time"`
}

type requestInfoKey struct{}

// GenerateRequestID returns a new random request ID
func GenerateRequestID() string {
	return "req_" + uuid.NewString()
}

func infoFrom(ctx context.Context) RequestInfo {
	if info, ok := ctx.Value(requestInfoKey{}).(RequestInfo); ok {
		return info
	}
	return RequestInfo{}
}

// update stores a modified copy so parent contexts keep their values
func update(ctx context.Context, set func(*RequestInfo)) context.Context {
	info := infoFrom(ctx)
	set(&info)
	return context.WithValue(ctx, requestInfoKey{}, info)
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return update(ctx, func(i *RequestInfo) { i.RequestID = requestID })
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return update(ctx, func(i *RequestInfo) { i.TraceID = traceID })
}

// WithSpanID adds a span ID to the context
func WithSpanID(ctx context.Context, spanID string) context.Context {
	return update(ctx, func(i *RequestInfo) { i.SpanID = spanID })
}

// WithStartTime records when handling started
func WithStartTime(ctx context.Context, startTime time.Time) context.Context {
	return update(ctx, func(i *RequestInfo) { i.StartTime = startTime })
}

func GetRequestID(ctx context.Context) string { return infoFrom(ctx).RequestID }

func GetTraceID(ctx context.Context) string { return infoFrom(ctx).TraceID }

func GetSpanID(ctx context.Context) string { return infoFrom(ctx).SpanID }

func GetStartTime(ctx context.Context) time.Time { return infoFrom(ctx).StartTime }

// GetRequestInfo returns a copy of the tracing values carried by ctx
func GetRequestInfo(ctx context.Context) *RequestInfo {
	info := infoFrom(ctx)
	return &info
}

// Duration is the time elapsed since the recorded start, 0 when unset
func Duration(ctx context.Context) time.Duration {
	start := GetStartTime(ctx)
	if start.IsZero() {
		return 0
	}
	return time.Since(start)
}
