package auth

import (
	"context"
	"strings"
	"sync"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
)

// LoginMessage carries user supplied credentials.
type LoginMessage struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Validate will run validation rules
func (m LoginMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Username, validation.Required),
		validation.Field(&m.Password, validation.Required),
	)
}

// HealthStatus is returned by the liveness probe.
type HealthStatus struct {
	Status string `json:"status"`
}

// Service implements register, login, verify and userinfo on top of the
// credential store and the session token codec.
type Service struct {
	repo         RepositoryManager
	tokens       TokenService
	hasher       PasswordAuthenticator
	logger       Logger
	activitySink ActivitySink

	placeholderOnce sync.Once
	placeholderHash string
}

// placeholderPassword is hashed once per Service; logins naming an unknown
// user are compared against it so they cost the same bcrypt work.
const placeholderPassword = "placeholder-password-for-unknown-users"

// NewService returns a Service issuing tokens with tokens.
func NewService(repo RepositoryManager, tokens TokenService) *Service {
	return &Service{
		repo:         repo,
		tokens:       tokens,
		hasher:       BcryptHasher{},
		logger:       defaultLoggerProvider().GetLogger("auth.service"),
		activitySink: noopActivitySink{},
	}
}

func (s *Service) WithLogger(logger Logger) *Service {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Service) WithActivitySink(sink ActivitySink) *Service {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

// WithPasswordHasher overrides the bcrypt hasher, e.g. with a cheaper cost.
func (s *Service) WithPasswordHasher(hasher PasswordAuthenticator) *Service {
	if hasher != nil {
		s.hasher = hasher
	}
	return s
}

// TokenService returns the codec used for bearer tokens.
func (s *Service) TokenService() TokenService {
	return s.tokens
}

// Register creates a user. Both a taken username and a taken email fail with
// ErrAlreadyExists.
func (s *Service) Register(ctx context.Context, msg RegisterUserMessage) (*User, error) {
	var created *User
	onCreated := msg.OnCreated
	msg.OnCreated = func(u *User) {
		created = u
		if onCreated != nil {
			onCreated(u)
		}
	}

	handler := NewRegisterUserHandler(s.repo).
		WithActivitySink(s.activitySink).
		WithLogger(s.logger).
		WithPasswordHasher(s.hasher)

	if err := handler.Execute(ctx, msg); err != nil {
		return nil, err
	}
	return created, nil
}

// Login checks credentials and issues a session token. An unknown username
// and a wrong password produce the same error; only the audit record tells
// them apart.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.Authenticate(ctx, LoginMessage{Username: username, Password: password}, ActivityEventLoginFailure)
	if err != nil {
		return "", err
	}

	token, err := s.tokens.Issue(user.ID.String())
	if err != nil {
		s.logger.WithContext(ctx).Error("failed to issue session token", "user_id", user.ID.String(), "error", err)
		return "", err
	}

	recordActivity(ctx, s.activitySink, s.logger, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		Actor:     ActorRef{ID: user.ID.String(), Type: ActorTypeUser},
		UserID:    user.ID.String(),
		Metadata: map[string]any{
			"username": user.Username,
			"caller":   callerActor(ctx).ID,
		},
	})

	return token, nil
}

// Authenticate resolves the user owning the credentials in msg. Failures are
// recorded under failureEvent.
func (s *Service) Authenticate(ctx context.Context, msg LoginMessage, failureEvent ActivityEventType) (*User, error) {
	msg.Username = strings.TrimSpace(msg.Username)

	if err := msg.Validate(); err != nil {
		s.recordLoginFailure(ctx, failureEvent, msg.Username, "", ReasonMissingFields)
		return nil, ErrMissingFields
	}

	user, err := s.repo.Users().GetByUsername(ctx, msg.Username)
	if err != nil {
		if isRecordNotFound(err) {
			s.compareWithPlaceholder(ctx, msg.Password)
			s.recordLoginFailure(ctx, failureEvent, msg.Username, "", ReasonUserNotFound)
			return nil, ErrInvalidCredentials
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up user")
	}

	if err := s.hasher.ComparePasswordAndHash(msg.Password, user.PasswordHash); err != nil {
		if !goerrors.Is(err, ErrMismatchedHashAndPassword) {
			s.logger.WithContext(ctx).Error("password hash comparison failed", "user_id", user.ID.String(), "error", err)
		}
		s.recordLoginFailure(ctx, failureEvent, msg.Username, user.ID.String(), ReasonBadPassword)
		return nil, ErrInvalidCredentials
	}

	return user, nil
}

func (s *Service) compareWithPlaceholder(ctx context.Context, password string) {
	s.placeholderOnce.Do(func() {
		hash, err := s.hasher.HashPassword(placeholderPassword)
		if err != nil {
			s.logger.WithContext(ctx).Error("failed to hash placeholder password", "error", err)
			return
		}
		s.placeholderHash = hash
	})

	if s.placeholderHash == "" {
		return
	}
	_ = s.hasher.ComparePasswordAndHash(password, s.placeholderHash)
}

// Verify resolves the user behind token. A token for a user that no longer
// exists fails with ErrUserNotFound.
func (s *Service) Verify(ctx context.Context, token string) (*UserInfo, error) {
	user, err := s.resolveToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return userInfoFrom(user), nil
}

// UserInfo resolves the user behind token, like Verify.
func (s *Service) UserInfo(ctx context.Context, token string) (*UserInfo, error) {
	return s.Verify(ctx, token)
}

// Health always reports ok.
func (s *Service) Health() HealthStatus {
	return HealthStatus{Status: "ok"}
}

func (s *Service) resolveToken(ctx context.Context, token string) (*User, error) {
	userID, err := s.tokens.Verify(strings.TrimSpace(token))
	if err != nil {
		return nil, ErrInvalidToken
	}

	user, err := s.repo.Users().GetByID(ctx, userID)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve token user")
	}
	return user, nil
}

func (s *Service) recordLoginFailure(ctx context.Context, eventType ActivityEventType, username, userID, reason string) {
	recordActivity(ctx, s.activitySink, s.logger, ActivityEvent{
		EventType: eventType,
		Actor:     callerActor(ctx),
		UserID:    userID,
		Reason:    reason,
		Metadata: map[string]any{
			"username": username,
		},
	})
}
