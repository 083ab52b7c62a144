package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

type InitializePasswordResetMessage struct {
	UserID     string `json:"user_id"`
	Actor      ActorRef
	OnResponse func(resp *InitializePasswordResetResponse)
}

func (p InitializePasswordResetMessage) Type() string { return "user.password_reset.initialize" }

type InitializePasswordResetResponse struct {
	User      *User
	Token     string
	ExpiresIn time.Duration
}

// InitializePasswordResetHandler issues a reset token for a user. Delivery of
// the link is left to the caller.
type InitializePasswordResetHandler struct {
	repo     RepositoryManager
	resets   ResetTokenService
	maxAge   time.Duration
	activity ActivitySink
	logger   Logger
}

func NewInitializePasswordResetHandler(repo RepositoryManager, resets ResetTokenService) *InitializePasswordResetHandler {
	h := &InitializePasswordResetHandler{
		repo:     repo,
		resets:   resets,
		maxAge:   DefaultResetTokenMaxAge,
		activity: noopActivitySink{},
		logger:   defaultLoggerProvider().GetLogger("auth.password_reset"),
	}
	if codec, ok := resets.(*ResetTokenCodec); ok {
		h.maxAge = codec.MaxAge()
	}
	return h
}

// WithActivitySink sets the sink used to emit password reset events.
func (h *InitializePasswordResetHandler) WithActivitySink(sink ActivitySink) *InitializePasswordResetHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *InitializePasswordResetHandler) WithLogger(logger Logger) *InitializePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *InitializePasswordResetHandler) Execute(ctx context.Context, event InitializePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordResetHandler) execute(ctx context.Context, event InitializePasswordResetMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if _, err := uuid.Parse(event.UserID); err != nil {
		return ErrUserNotFound
	}

	user, err := h.repo.Users().GetByID(ctx, event.UserID)
	if err != nil {
		if isRecordNotFound(err) {
			return ErrUserNotFound
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for password reset")
	}

	token, err := h.resets.Issue(user.ID.String(), user.Username)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to issue password reset token")
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventPasswordResetIssued,
		Actor:     event.Actor,
		UserID:    user.ID.String(),
		Metadata: map[string]any{
			"username": user.Username,
		},
	})

	if event.OnResponse != nil {
		event.OnResponse(&InitializePasswordResetResponse{
			User:      user,
			Token:     token,
			ExpiresIn: h.maxAge,
		})
	}

	return nil
}
