package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// AudienceAPI is the audience of bearer tokens returned by the API login.
	AudienceAPI = "api"
	// AudienceAdmin is the audience of admin session tokens.
	AudienceAdmin = "admin"
	// AudiencePasswordReset is the audience of reset tokens.
	AudiencePasswordReset = "password-reset"
)

// SessionClaims are the claims carried by a session token
type SessionClaims struct {
	jwt.RegisteredClaims
	UID string `json:"uid,omitempty"`
}

// UserID returns the user ID
func (c *SessionClaims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.Subject
}

// Expires returns the expiration time
func (c *SessionClaims) Expires() time.Time {
	if c.ExpiresAt != nil {
		return c.ExpiresAt.Time.UTC()
	}
	return time.Time{}
}

// ResetClaims are the claims carried by a password reset token. Subject is
// the username the reset was issued for, UID the user it belongs to.
type ResetClaims struct {
	jwt.RegisteredClaims
	UID string `json:"uid"`
}

// UserID returns the id of the user the reset was issued for.
func (c *ResetClaims) UserID() string {
	return c.UID
}

func ensureTokenID(claims *jwt.RegisteredClaims) {
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}
}
