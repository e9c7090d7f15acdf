package core

import (
	"context"

	"github.com/google/uuid"
)

// RequestIDHeader carries the request id on requests and responses
const RequestIDHeader = "X-Request-ID"

// maxRequestIDLength bounds client-supplied ids echoed back in headers and logs
const maxRequestIDLength = 128

// RequestIDKey is the context key for request ID
type requestIDKey struct{}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// GenerateRequestID generates a new request ID
func GenerateRequestID() string {
	return uuid.New().String()
}

// ResolveRequestID returns incoming when it is safe to echo, otherwise a new id
func ResolveRequestID(incoming string) string {
	if incoming == "" || len(incoming) > maxRequestIDLength {
		return GenerateRequestID()
	}
	for i := 0; i < len(incoming); i++ {
		c := incoming[i]
		if c < 0x21 || c > 0x7e {
			return GenerateRequestID()
		}
	}
	return incoming
}
