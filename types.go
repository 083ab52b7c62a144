package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-auth-service/logging"
)

type Logger = logging.Logger

type LoggerProvider = logging.LoggerProvider

// TokenService issues and verifies session tokens for one audience.
type TokenService interface {
	Issue(userID string) (string, error)
	Verify(token string) (string, error)
}

// ResetTokenService issues and verifies password reset tokens. Tokens name
// the user by id and carry the username it had when the reset was issued.
type ResetTokenService interface {
	Issue(userID, username string) (string, error)
	Verify(token string) (*ResetClaims, error)
}

// PasswordAuthenticator hashes and compares passwords
type PasswordAuthenticator interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

// APIKeyValidator admits or rejects a raw service API key.
type APIKeyValidator interface {
	Admit(ctx context.Context, rawKey string) (*ServiceCaller, error)
}

// Clock returns the current time. Tests swap it to move time forward.
type Clock func() time.Time

func defaultLoggerProvider() LoggerProvider {
	return logging.Default()
}
