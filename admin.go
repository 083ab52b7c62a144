package auth

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// AddUserMessage is the admin form for creating a user.
type AddUserMessage struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	IsAdmin         bool   `json:"is_admin"`
}

// Validate will run validation rules
func (m AddUserMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Username, validation.Required),
		validation.Field(&m.Password, validation.Required, validation.By(passwordFitsBcrypt)),
		validation.Field(&m.ConfirmPassword, validation.Required),
	)
}

// CreatedServiceKey carries a freshly generated key. The raw key is only
// available here.
type CreatedServiceKey struct {
	ID          string `json:"id"`
	Key         string `json:"key"`
	Description string `json:"description"`
}

// ServiceKeyView is the listing form of a key.
type ServiceKeyView struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	KeySuffix   string    `json:"key_suffix"`
	CreatedAt   time.Time `json:"created_at"`
}

// ResetURLBuilder turns a reset token into the link handed to the user.
type ResetURLBuilder func(token string) string

// AdminService backs the admin console. Callers authenticate with an admin
// session token; the API key gate is never involved.
type AdminService struct {
	repo         RepositoryManager
	service      *Service
	sessions     TokenService
	resets       ResetTokenService
	resetURL     ResetURLBuilder
	hasher       PasswordAuthenticator
	logger       Logger
	activitySink ActivitySink
}

// NewAdminService wires the admin operations. sessions must be a codec for
// the admin audience so that API tokens are never accepted as sessions.
func NewAdminService(repo RepositoryManager, service *Service, sessions TokenService, resets ResetTokenService) *AdminService {
	return &AdminService{
		repo:         repo,
		service:      service,
		sessions:     sessions,
		resets:       resets,
		resetURL:     func(token string) string { return "/reset/" + token },
		hasher:       BcryptHasher{},
		logger:       defaultLoggerProvider().GetLogger("auth.admin"),
		activitySink: noopActivitySink{},
	}
}

func (a *AdminService) WithLogger(logger Logger) *AdminService {
	if logger != nil {
		a.logger = logger
	}
	return a
}

func (a *AdminService) WithActivitySink(sink ActivitySink) *AdminService {
	a.activitySink = normalizeActivitySink(sink)
	return a
}

func (a *AdminService) WithPasswordHasher(hasher PasswordAuthenticator) *AdminService {
	if hasher != nil {
		a.hasher = hasher
	}
	return a
}

// WithResetURLBuilder sets how reset links are rendered.
func (a *AdminService) WithResetURLBuilder(fn ResetURLBuilder) *AdminService {
	if fn != nil {
		a.resetURL = fn
	}
	return a
}

// Login authenticates an administrator and returns an admin session token.
func (a *AdminService) Login(ctx context.Context, username, password string) (*User, string, error) {
	user, err := a.service.Authenticate(ctx, LoginMessage{Username: username, Password: password}, ActivityEventAdminLoginFailure)
	if err != nil {
		return nil, "", err
	}

	if !user.IsAdmin {
		recordActivity(ctx, a.activitySink, a.logger, ActivityEvent{
			EventType: ActivityEventAdminLoginFailure,
			Actor:     ActorRef{ID: user.ID.String(), Type: ActorTypeUser},
			UserID:    user.ID.String(),
			Reason:    ReasonNotAdmin,
			Metadata: map[string]any{
				"username": user.Username,
			},
		})
		return nil, "", ErrForbidden
	}

	token, err := a.sessions.Issue(user.ID.String())
	if err != nil {
		return nil, "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to issue admin session")
	}

	recordActivity(ctx, a.activitySink, a.logger, ActivityEvent{
		EventType: ActivityEventAdminLoginSuccess,
		Actor:     adminActor(user),
		UserID:    user.ID.String(),
		Metadata: map[string]any{
			"username": user.Username,
		},
	})

	return user, token, nil
}

// ResolveSession returns the administrator owning token. Users who lost the
// admin flag after login are rejected with ErrForbidden.
func (a *AdminService) ResolveSession(ctx context.Context, token string) (*User, error) {
	userID, err := a.sessions.Verify(strings.TrimSpace(token))
	if err != nil {
		return nil, ErrInvalidToken
	}
	return a.ResolveSubject(ctx, userID)
}

// ResolveSubject loads the administrator behind a verified session subject.
func (a *AdminService) ResolveSubject(ctx context.Context, userID string) (*User, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return nil, ErrInvalidToken
	}

	user, err := a.repo.Users().GetByID(ctx, userID)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, ErrInvalidToken
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve admin session")
	}

	if !user.IsAdmin {
		return nil, ErrForbidden
	}
	return user, nil
}

// Sessions returns the codec used for admin session tokens.
func (a *AdminService) Sessions() TokenService {
	return a.sessions
}

func (a *AdminService) ListServiceKeys(ctx context.Context) ([]ServiceKeyView, error) {
	keys, err := a.repo.ServiceKeys().ListAll(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list service keys")
	}

	out := make([]ServiceKeyView, 0, len(keys))
	for _, k := range keys {
		out = append(out, ServiceKeyView{
			ID:          k.ID.String(),
			Description: k.Description,
			KeySuffix:   k.Suffix(),
			CreatedAt:   k.CreatedAt.UTC(),
		})
	}
	return out, nil
}

func (a *AdminService) CreateServiceKey(ctx context.Context, admin *User, description string) (*CreatedServiceKey, error) {
	key, err := a.repo.ServiceKeys().Generate(ctx, strings.TrimSpace(description))
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate service key")
	}

	recordActivity(ctx, a.activitySink, a.logger, ActivityEvent{
		EventType: ActivityEventAPIKeyCreated,
		Actor:     adminActor(admin),
		Metadata: map[string]any{
			"key_id":      key.ID.String(),
			"key_suffix":  key.Suffix(),
			"description": key.Description,
		},
	})

	return &CreatedServiceKey{
		ID:          key.ID.String(),
		Key:         key.Key,
		Description: key.Description,
	}, nil
}

func (a *AdminService) DeleteServiceKey(ctx context.Context, admin *User, id string) error {
	keyID, err := uuid.Parse(id)
	if err != nil {
		return ErrServiceKeyNotFound
	}

	if err := a.repo.ServiceKeys().DeleteByID(ctx, keyID); err != nil {
		if isRecordNotFound(err) {
			return ErrServiceKeyNotFound
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete service key")
	}

	recordActivity(ctx, a.activitySink, a.logger, ActivityEvent{
		EventType: ActivityEventAPIKeyDeleted,
		Actor:     adminActor(admin),
		Metadata: map[string]any{
			"key_id": keyID.String(),
		},
	})
	return nil
}

func (a *AdminService) ListUsers(ctx context.Context) ([]*User, error) {
	users, err := a.repo.Users().ListAll(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list users")
	}
	return users, nil
}

// CreateUser registers a user on behalf of admin.
func (a *AdminService) CreateUser(ctx context.Context, admin *User, msg AddUserMessage) (*User, error) {
	if err := msg.Validate(); err != nil {
		return nil, validationFailure(err)
	}

	if msg.Password != msg.ConfirmPassword {
		return nil, ErrPasswordMismatch
	}

	actor := adminActor(admin)
	var created *User
	handler := NewRegisterUserHandler(a.repo).
		WithActivitySink(a.activitySink).
		WithLogger(a.logger).
		WithPasswordHasher(a.hasher)

	err := handler.Execute(ctx, RegisterUserMessage{
		Username:  msg.Username,
		Email:     msg.Email,
		Password:  msg.Password,
		IsAdmin:   msg.IsAdmin,
		Actor:     &actor,
		OnCreated: func(u *User) { created = u },
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// ToggleAdmin flips the admin flag of the user identified by id.
func (a *AdminService) ToggleAdmin(ctx context.Context, admin *User, id string) (*User, error) {
	user, err := a.findUser(ctx, id)
	if err != nil {
		return nil, err
	}

	updated, err := a.repo.Users().SetAdmin(ctx, user.ID, !user.IsAdmin)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to toggle admin flag")
	}

	recordActivity(ctx, a.activitySink, a.logger, ActivityEvent{
		EventType: ActivityEventUserAdminToggled,
		Actor:     adminActor(admin),
		UserID:    updated.ID.String(),
		Metadata: map[string]any{
			"username": updated.Username,
			"is_admin": updated.IsAdmin,
		},
	})
	return updated, nil
}

// DeleteUser removes the user identified by id. Admins cannot delete
// themselves.
func (a *AdminService) DeleteUser(ctx context.Context, admin *User, id string) error {
	user, err := a.findUser(ctx, id)
	if err != nil {
		return err
	}

	if admin != nil && admin.ID == user.ID {
		return ErrForbiddenSelfDelete
	}

	if err := a.repo.Users().DeleteByID(ctx, user.ID); err != nil {
		if isRecordNotFound(err) {
			return ErrUserNotFound
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete user")
	}

	recordActivity(ctx, a.activitySink, a.logger, ActivityEvent{
		EventType: ActivityEventUserDeleted,
		Actor:     adminActor(admin),
		UserID:    user.ID.String(),
		Metadata: map[string]any{
			"username": user.Username,
		},
	})
	return nil
}

// IssueReset creates a reset link for the user identified by id.
func (a *AdminService) IssueReset(ctx context.Context, admin *User, id string) (string, error) {
	var resetURL string
	handler := NewInitializePasswordResetHandler(a.repo, a.resets).
		WithActivitySink(a.activitySink).
		WithLogger(a.logger)

	err := handler.Execute(ctx, InitializePasswordResetMessage{
		UserID: id,
		Actor:  adminActor(admin),
		OnResponse: func(resp *InitializePasswordResetResponse) {
			resetURL = a.resetURL(resp.Token)
		},
	})
	if err != nil {
		return "", err
	}
	return resetURL, nil
}

// ResetPassword consumes a reset token. The token is the only credential.
func (a *AdminService) ResetPassword(ctx context.Context, msg FinalizePasswordResetMessage) error {
	return NewFinalizePasswordResetHandler(a.repo, a.resets).
		WithActivitySink(a.activitySink).
		WithLogger(a.logger).
		WithPasswordHasher(a.hasher).
		Execute(ctx, msg)
}

func (a *AdminService) findUser(ctx context.Context, id string) (*User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrUserNotFound
	}

	user, err := a.repo.Users().GetByID(ctx, id)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user")
	}
	return user, nil
}

func adminActor(admin *User) ActorRef {
	if admin == nil {
		return ActorRef{Type: ActorTypeAdmin}
	}
	return ActorRef{ID: admin.ID.String(), Type: ActorTypeAdmin}
}
