package auth

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventLoginSuccess          ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure          ActivityEventType = "auth.login.failure"
	ActivityEventRegisterSuccess       ActivityEventType = "auth.register.success"
	ActivityEventRegisterFailure       ActivityEventType = "auth.register.failure"
	ActivityEventAPIKeyRejected        ActivityEventType = "gate.apikey.rejected"
	ActivityEventAdminLoginSuccess     ActivityEventType = "admin.login.success"
	ActivityEventAdminLoginFailure     ActivityEventType = "admin.login.failure"
	ActivityEventAPIKeyCreated         ActivityEventType = "admin.apikey.created"
	ActivityEventAPIKeyDeleted         ActivityEventType = "admin.apikey.deleted"
	ActivityEventUserCreated           ActivityEventType = "admin.user.created"
	ActivityEventUserDeleted           ActivityEventType = "admin.user.deleted"
	ActivityEventUserAdminToggled      ActivityEventType = "admin.user.admin_toggled"
	ActivityEventPasswordResetIssued   ActivityEventType = "auth.password.reset.issued"
	ActivityEventPasswordResetSuccess  ActivityEventType = "auth.password.reset"
	ActivityEventPasswordResetRejected ActivityEventType = "auth.password.reset.rejected"
)

// Failure reasons recorded on rejected decisions.
const (
	ReasonUserNotFound     = "user_not_found"
	ReasonBadPassword      = "bad_password"
	ReasonMissingFields    = "missing_fields"
	ReasonAlreadyExists    = "already_exists"
	ReasonMissingAPIKey    = "missing_api_key"
	ReasonInvalidAPIKey    = "invalid_api_key"
	ReasonNotAdmin         = "not_admin"
	ReasonInvalidToken     = "invalid_token"
	ReasonPasswordMismatch = "password_mismatch"
	ReasonPasswordTooLong  = "password_too_long"
)

// Actor types.
const (
	ActorTypeUser      = "user"
	ActorTypeAdmin     = "admin"
	ActorTypeService   = "service"
	ActorTypeAnonymous = "anonymous"
)

// ActorRef identifies who triggered an event.
type ActorRef struct {
	ID   string
	Type string
}

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	Actor      ActorRef
	UserID     string
	Reason     string
	Metadata   map[string]any
	OccurredAt time.Time
}

// IsFailure reports whether the event records a rejected decision.
func (e ActivityEvent) IsFailure() bool {
	t := string(e.EventType)
	return strings.HasSuffix(t, ".failure") || strings.HasSuffix(t, ".rejected")
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

// MultiActivitySink fans an event out to every sink, even when one fails.
type MultiActivitySink []ActivitySink

// Record implements ActivitySink.
func (m MultiActivitySink) Record(ctx context.Context, event ActivityEvent) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Record(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

// recordActivity is best effort: sink errors and panics are logged and never
// reach the caller.
func recordActivity(ctx context.Context, sink ActivitySink, logger Logger, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	defer func() {
		if r := recover(); r != nil && logger != nil {
			logger.WithContext(ctx).Warn("activity sink panicked", "event", string(event.EventType), "panic", r)
		}
	}()

	if err := normalizeActivitySink(sink).Record(ctx, event); err != nil && logger != nil {
		logger.WithContext(ctx).Warn("activity sink error", "event", string(event.EventType), "error", err)
	}
}

func callerActor(ctx context.Context) ActorRef {
	if caller, ok := CallerFromContext(ctx); ok {
		return ActorRef{ID: caller.KeyID, Type: ActorTypeService}
	}
	return ActorRef{Type: ActorTypeAnonymous}
}
