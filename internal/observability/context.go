package observability

import (
	"context"
)

type contextKey string

const (
	requestIDKey     contextKey = "request_id"
	correlationIDKey contextKey = "correlation_id"
	clientIPKey      contextKey = "client_ip"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext retrieves the request ID from context.
// Returns empty string if not present.
func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

// WithCorrelationID adds a correlation ID to the context. The correlation ID
// follows a request into outbox event metadata.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey, correlationID)
}

// CorrelationIDFromContext retrieves the correlation ID from context.
func CorrelationIDFromContext(ctx context.Context) string {
	return stringValue(ctx, correlationIDKey)
}

// WithClientIP adds the caller's address to the context.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

// ClientIPFromContext retrieves the caller's address from context.
func ClientIPFromContext(ctx context.Context) string {
	return stringValue(ctx, clientIPKey)
}

// RequestContext groups the per-request identifiers carried in a context.
type RequestContext struct {
	RequestID     string
	CorrelationID string
	ClientIP      string
}

// RequestContextFromContext extracts all request identifiers from ctx.
func RequestContextFromContext(ctx context.Context) RequestContext {
	return RequestContext{
		RequestID:     RequestIDFromContext(ctx),
		CorrelationID: CorrelationIDFromContext(ctx),
		ClientIP:      ClientIPFromContext(ctx),
	}
}

func stringValue(ctx context.Context, key contextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
