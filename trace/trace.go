// Package trace carries the per-call request ID through contexts and HTTP headers.
package trace

import (
	"context"
	nethttp "net/http"

	"github.com/google/uuid"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// HeaderXRequestID is the header carrying the request ID to the API.
const HeaderXRequestID = "X-Request-ID"

// WithRequestID returns a context carrying requestID.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request ID stored in ctx. An empty ID counts as absent.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if id, ok := ctx.Value(requestIDKey).(string); ok && id != "" {
		return id, true
	}
	return "", false
}

// EnsureRequestID returns ctx unchanged when it already carries a request ID,
// otherwise a child context with a freshly generated one. The ID is returned too.
func EnsureRequestID(ctx context.Context) (context.Context, string) {
	if id, ok := RequestIDFromContext(ctx); ok {
		return ctx, id
	}
	id := NewRequestID()
	return WithRequestID(ctx, id), id
}

// NewRequestID generates a random request ID.
func NewRequestID() string {
	return uuid.NewString()
}

// SetHeader copies the request ID from ctx onto h unless h already has one.
func SetHeader(ctx context.Context, h nethttp.Header) {
	if h.Get(HeaderXRequestID) != "" {
		return
	}
	if id, ok := RequestIDFromContext(ctx); ok {
		h.Set(HeaderXRequestID, id)
	}
}
