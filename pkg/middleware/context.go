// Package middleware provides the HTTP middleware chain for the platform:
// request identification, panic recovery, access logging, metrics and the
// authorization guards that front protected API routes.
package middleware

import (
	"context"
	"time"
)

// contextKey is a private type for context keys.
type contextKey int

const (
	requestContextKey contextKey = iota
)

// RequestContext holds per-request bookkeeping shared across middleware.
type RequestContext struct {
	RequestID string
	StartTime time.Time
}

// WithRequestContext adds request context to the context.
func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey, rc)
}

// GetRequestContext retrieves request context from the context.
func GetRequestContext(ctx context.Context) *RequestContext {
	if rc, ok := ctx.Value(requestContextKey).(*RequestContext); ok {
		return rc
	}
	return nil
}

// RequestIDFromContext returns the request ID, or empty if none was assigned.
func RequestIDFromContext(ctx context.Context) string {
	if rc := GetRequestContext(ctx); rc != nil {
		return rc.RequestID
	}
	return ""
}
