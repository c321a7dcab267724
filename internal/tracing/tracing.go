// Package tracing provides trace identifiers and OpenTelemetry spans for reconciliation runs.
// A run always carries a trace ID, either from the active span or generated locally when
// tracing is disabled, so that log lines and audit entries of one run can be correlated.
package tracing

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	"go.opentelemetry.io/otel/trace"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	// TraceIDKey is the context key for trace ID
	TraceIDKey contextKey = "trace_id"
	// SpanIDKey is the context key for span ID
	SpanIDKey contextKey = "span_id"
)

// TraceInfo contains all trace-related identifiers
type TraceInfo struct {
	TraceID string `json:"trace_id"`
	SpanID  string `json:"span_id"`
}

// GenerateID generates a random 32-character hex ID (128 bits)
func GenerateID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "00000000000000000000000000000000"
	}
	return hex.EncodeToString(b)
}

// GenerateShortID generates a random 16-character hex ID (64 bits) for span IDs
func GenerateShortID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "0000000000000000"
	}
	return hex.EncodeToString(b)
}

// NewTraceInfo creates a new trace with generated IDs
func NewTraceInfo() *TraceInfo {
	return &TraceInfo{
		TraceID: GenerateID(),
		SpanID:  GenerateShortID(),
	}
}

// WithTraceInfo adds trace information to a context
func WithTraceInfo(ctx context.Context, info *TraceInfo) context.Context {
	ctx = context.WithValue(ctx, TraceIDKey, info.TraceID)
	return context.WithValue(ctx, SpanIDKey, info.SpanID)
}

// FromContext extracts trace information from a context. A valid OpenTelemetry span wins
// over identifiers stored with WithTraceInfo.
func FromContext(ctx context.Context) *TraceInfo {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		return &TraceInfo{
			TraceID: sc.TraceID().String(),
			SpanID:  sc.SpanID().String(),
		}
	}

	info := &TraceInfo{}
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		info.TraceID = traceID
	}
	if spanID, ok := ctx.Value(SpanIDKey).(string); ok {
		info.SpanID = spanID
	}
	return info
}

// EnsureTraceContext ensures the context has trace information, adding it if missing
func EnsureTraceContext(ctx context.Context) context.Context {
	if FromContext(ctx).TraceID == "" {
		return WithTraceInfo(ctx, NewTraceInfo())
	}
	return ctx
}
