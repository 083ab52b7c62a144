package logging

import (
	"context"
	"time"
)

type contextKey struct {
	name string
}

var (
	requestIDCtxKey    = &contextKey{"request_id"}
	requestStartCtxKey = &contextKey{"request_start"}
)

// WithRequestID stores the correlation id used to tag records.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDCtxKey, id)
}

// RequestIDFromContext returns the correlation id or an empty string.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDCtxKey).(string)
	return id
}

// WithRequestStart stores the time the request was received.
func WithRequestStart(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestStartCtxKey, t)
}

// RequestStartFromContext returns the time the request was received.
func RequestStartFromContext(ctx context.Context) (time.Time, bool) {
	if ctx == nil {
		return time.Time{}, false
	}
	t, ok := ctx.Value(requestStartCtxKey).(time.Time)
	return t, ok
}
