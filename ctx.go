package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-auth-service/logging"
)

var userCtxKey = &contextKey{"user"}
var callerCtxKey = &contextKey{"caller"}

type contextKey struct {
	name string
}

// RequestContext is the per request state threaded through every call.
type RequestContext struct {
	RequestID string
	Caller    *ServiceCaller
	StartedAt time.Time
}

// NewRequestContext stores the correlation id and start time in ctx.
func NewRequestContext(ctx context.Context, requestID string, startedAt time.Time) context.Context {
	ctx = logging.WithRequestID(ctx, requestID)
	return logging.WithRequestStart(ctx, startedAt)
}

// RequestContextFrom assembles the request state stored in ctx.
func RequestContextFrom(ctx context.Context) RequestContext {
	started, _ := logging.RequestStartFromContext(ctx)
	caller, _ := CallerFromContext(ctx)
	return RequestContext{
		RequestID: logging.RequestIDFromContext(ctx),
		Caller:    caller,
		StartedAt: started,
	}
}

// WithCaller sets the calling service resolved by the gate.
func WithCaller(ctx context.Context, caller *ServiceCaller) context.Context {
	return context.WithValue(ctx, callerCtxKey, caller)
}

// CallerFromContext returns the calling service, if the gate admitted one.
func CallerFromContext(ctx context.Context) (*ServiceCaller, bool) {
	if ctx == nil {
		return nil, false
	}
	caller, ok := ctx.Value(callerCtxKey).(*ServiceCaller)
	return caller, ok && caller != nil
}

// WithContext sets the User in the given context
func WithContext(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userCtxKey, user)
}

// FromContext finds the user from the context.
func FromContext(ctx context.Context) (*User, bool) {
	if ctx == nil {
		return nil, false
	}
	user, ok := ctx.Value(userCtxKey).(*User)
	return user, ok && user != nil
}
