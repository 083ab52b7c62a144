package auth

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type FinalizePasswordResetMessage struct {
	Token           string `json:"token"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

func (m FinalizePasswordResetMessage) Type() string { return "user.password_reset.finalize" }

// Validate will run validation rules
func (m FinalizePasswordResetMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Password, validation.Required, validation.By(passwordFitsBcrypt)),
		validation.Field(&m.ConfirmPassword, validation.Required),
	)
}

// FinalizePasswordResetHandler sets a new password for the user a reset
// token was issued for. The token is refused when that user no longer has
// the username it was issued under.
type FinalizePasswordResetHandler struct {
	repo     RepositoryManager
	resets   ResetTokenService
	hasher   PasswordAuthenticator
	activity ActivitySink
	logger   Logger
}

// NewFinalizePasswordResetHandler creates a handler with sane defaults.
func NewFinalizePasswordResetHandler(repo RepositoryManager, resets ResetTokenService) *FinalizePasswordResetHandler {
	return &FinalizePasswordResetHandler{
		repo:     repo,
		resets:   resets,
		hasher:   BcryptHasher{},
		activity: noopActivitySink{},
		logger:   defaultLoggerProvider().GetLogger("auth.password_reset"),
	}
}

// WithActivitySink sets the sink used to emit password reset events.
func (h *FinalizePasswordResetHandler) WithActivitySink(sink ActivitySink) *FinalizePasswordResetHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *FinalizePasswordResetHandler) WithLogger(logger Logger) *FinalizePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

// WithPasswordHasher overrides the password hasher.
func (h *FinalizePasswordResetHandler) WithPasswordHasher(hasher PasswordAuthenticator) *FinalizePasswordResetHandler {
	if hasher != nil {
		h.hasher = hasher
	}
	return h
}

func (h *FinalizePasswordResetHandler) Execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset finalization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *FinalizePasswordResetHandler) execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	claims, err := h.resets.Verify(event.Token)
	if err != nil {
		h.recordRejected(ctx, "", ReasonInvalidToken)
		return ErrInvalidOrExpired
	}
	subject := claims.Subject

	userID, err := uuid.Parse(claims.UserID())
	if err != nil {
		h.recordRejected(ctx, subject, ReasonInvalidToken)
		return ErrInvalidOrExpired
	}

	if err := event.Validate(); err != nil {
		return validationFailure(err)
	}

	if event.Password != event.ConfirmPassword {
		h.recordRejected(ctx, subject, ReasonPasswordMismatch)
		return ErrPasswordMismatch
	}

	passwordHash, err := h.hasher.HashPassword(event.Password)
	if err != nil {
		return hashFailure(err)
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user := &User{}
	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err = h.repo.Users().GetByIDTx(ctx, tx, userID.String())
		if err != nil {
			if isRecordNotFound(err) {
				return ErrUserNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve password reset subject")
		}

		if user.Username != subject {
			return ErrInvalidOrExpired
		}

		if err := h.repo.Users().ResetPasswordTx(ctx, tx, user.ID, passwordHash); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update user password in database")
		}
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to finalize password reset")
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventPasswordResetSuccess,
		Actor: ActorRef{
			ID:   user.ID.String(),
			Type: ActorTypeUser,
		},
		UserID: user.ID.String(),
		Metadata: map[string]any{
			"username": user.Username,
		},
	})

	return nil
}

func (h *FinalizePasswordResetHandler) recordRejected(ctx context.Context, subject, reason string) {
	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventPasswordResetRejected,
		Actor:     ActorRef{Type: ActorTypeAnonymous},
		Reason:    reason,
		Metadata: map[string]any{
			"subject": subject,
		},
	})
}
