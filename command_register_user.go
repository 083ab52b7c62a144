package auth

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type RegisterUserMessage struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	IsAdmin  bool   `json:"is_admin"`
	// Actor is who triggered the registration. Defaults to the calling service.
	Actor     *ActorRef `json:"-"`
	OnCreated func(user *User)
}

func (e RegisterUserMessage) Type() string { return "user.register" }

// Validate will run validation rules
func (e RegisterUserMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Username, validation.Required),
		validation.Field(&e.Password, validation.Required, validation.By(passwordFitsBcrypt)),
	)
}

func (e RegisterUserMessage) normalized() RegisterUserMessage {
	e.Username = strings.TrimSpace(e.Username)
	e.Email = strings.TrimSpace(e.Email)
	return e
}

type RegisterUserHandler struct {
	repo     RepositoryManager
	hasher   PasswordAuthenticator
	activity ActivitySink
	logger   Logger
}

// NewRegisterUserHandler creates a handler with sane defaults.
func NewRegisterUserHandler(repo RepositoryManager) *RegisterUserHandler {
	return &RegisterUserHandler{
		repo:     repo,
		hasher:   BcryptHasher{},
		activity: noopActivitySink{},
		logger:   defaultLoggerProvider().GetLogger("auth.register"),
	}
}

// WithActivitySink sets the sink used to emit registration events.
func (h *RegisterUserHandler) WithActivitySink(sink ActivitySink) *RegisterUserHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *RegisterUserHandler) WithLogger(logger Logger) *RegisterUserHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

// WithPasswordHasher overrides the password hasher.
func (h *RegisterUserHandler) WithPasswordHasher(hasher PasswordAuthenticator) *RegisterUserHandler {
	if hasher != nil {
		h.hasher = hasher
	}
	return h
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, event.normalized())
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) error {
	if err := event.Validate(); err != nil {
		failure := validationFailure(err)
		reason := ReasonMissingFields
		if failure == ErrPasswordTooLong {
			reason = ReasonPasswordTooLong
		}
		h.recordFailure(ctx, event, reason)
		return failure
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	hash, err := h.hasher.HashPassword(event.Password)
	if err != nil {
		return hashFailure(err)
	}

	user := &User{
		Username:     event.Username,
		Email:        event.Email,
		PasswordHash: hash,
		IsAdmin:      event.IsAdmin,
	}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		exists, err := h.repo.Users().ExistsByUsernameOrEmail(ctx, tx, event.Username, event.Email)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check existing users")
		}
		if exists {
			return ErrAlreadyExists
		}

		if user, err = h.repo.Users().RegisterTx(ctx, tx, user); err != nil {
			if IsUniqueViolation(err) {
				return ErrAlreadyExists
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not create user")
		}
		return nil
	})

	if err != nil {
		if goerrors.Is(err, ErrAlreadyExists) || IsUniqueViolation(err) {
			h.recordFailure(ctx, event, ReasonAlreadyExists)
			return ErrAlreadyExists
		}

		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "user registration transaction failed")
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: h.successEvent(event),
		Actor:     h.actor(ctx, event),
		UserID:    user.ID.String(),
		Metadata: map[string]any{
			"username":  user.Username,
			"has_email": user.Email != "",
			"is_admin":  user.IsAdmin,
		},
	})

	if event.OnCreated != nil {
		event.OnCreated(user)
	}

	return nil
}

func (h *RegisterUserHandler) recordFailure(ctx context.Context, event RegisterUserMessage, reason string) {
	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventRegisterFailure,
		Actor:     h.actor(ctx, event),
		Reason:    reason,
		Metadata: map[string]any{
			"username": event.Username,
		},
	})
}

func (h *RegisterUserHandler) successEvent(event RegisterUserMessage) ActivityEventType {
	if event.Actor != nil && event.Actor.Type == ActorTypeAdmin {
		return ActivityEventUserCreated
	}
	return ActivityEventRegisterSuccess
}

func (h *RegisterUserHandler) actor(ctx context.Context, event RegisterUserMessage) ActorRef {
	if event.Actor != nil {
		return *event.Actor
	}
	return callerActor(ctx)
}
