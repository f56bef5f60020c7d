package shared

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
)

// ContextKey is the key type for request context values.
type ContextKey string

const (
	// OwnerIDContextKey carries the authenticated owner ID, set by the
	// identity middleware.
	OwnerIDContextKey ContextKey = "ownerID"

	// TraceIDKey carries the per-request trace ID.
	TraceIDKey ContextKey = "traceID"

	// TraceIDLength is the number of random bytes in a trace ID.
	TraceIDLength = 16
)

// SetTraceID attaches a freshly generated trace ID to the context.
func SetTraceID(ctx context.Context) context.Context {
	return context.WithValue(ctx, TraceIDKey, generateTraceID())
}

// GetTraceID returns the context's trace ID, or "" when absent.
func GetTraceID(ctx context.Context) string {
	traceID, ok := ctx.Value(TraceIDKey).(string)
	if !ok {
		return ""
	}
	return traceID
}

// SetOwnerID attaches the authenticated owner ID to the context.
func SetOwnerID(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, OwnerIDContextKey, ownerID)
}

// GetOwnerID returns the context's owner ID, or "" when absent.
func GetOwnerID(ctx context.Context) string {
	ownerID, ok := ctx.Value(OwnerIDContextKey).(string)
	if !ok {
		return ""
	}
	return ownerID
}

func generateTraceID() string {
	b := make([]byte, TraceIDLength)
	if _, err := rand.Read(b); err != nil {
		// rand.Read failing means the process is in serious trouble, but a
		// missing trace ID should not take a request down with it.
		slog.Error("failed to generate trace ID", "error", err)
		return ""
	}
	return hex.EncodeToString(b)
}
