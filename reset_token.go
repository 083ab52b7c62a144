package auth

import (
	"crypto/sha256"
	"io"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/crypto/hkdf"
)

const (
	// DefaultResetTokenMaxAge bounds how long a reset link stays usable.
	DefaultResetTokenMaxAge = time.Hour

	resetTokenSalt = "password-reset"
	resetTokenInfo = "go-auth-service reset token v1"

	csrfKeySalt = "csrf"
	csrfKeyInfo = "go-auth-service csrf v1"
)

// ResetTokenCodec signs reset tokens with a key derived from the service
// secret, so they never verify as session tokens and the other way around.
type ResetTokenCodec struct {
	tokenConfig
	signingKey []byte
	maxAge     time.Duration
}

var _ ResetTokenService = (*ResetTokenCodec)(nil)

// NewResetTokenService derives the reset signing key from secret.
func NewResetTokenService(secret []byte, maxAge time.Duration, opts ...TokenOption) (*ResetTokenCodec, error) {
	if len(secret) == 0 {
		return nil, goerrors.New("reset token secret must not be empty", goerrors.CategoryBadInput)
	}
	if maxAge <= 0 {
		maxAge = DefaultResetTokenMaxAge
	}

	key, err := deriveKey(secret, resetTokenSalt, resetTokenInfo)
	if err != nil {
		return nil, err
	}

	return &ResetTokenCodec{
		tokenConfig: newTokenConfig(opts),
		signingKey:  key,
		maxAge:      maxAge,
	}, nil
}

// MaxAge returns how long issued tokens remain valid.
func (rc *ResetTokenCodec) MaxAge() time.Duration {
	return rc.maxAge
}

// Issue signs a reset token for the user identified by userID.
func (rc *ResetTokenCodec) Issue(userID, username string) (string, error) {
	userID = strings.TrimSpace(userID)
	username = strings.TrimSpace(username)
	if userID == "" || username == "" {
		return "", goerrors.New("reset subject must not be empty", goerrors.CategoryInternal)
	}

	now := rc.now()
	claims := &ResetClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    rc.issuer,
			Subject:   username,
			Audience:  jwt.ClaimStrings{AudiencePasswordReset},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(rc.maxAge)),
		},
		UID: userID,
	}
	ensureTokenID(&claims.RegisteredClaims)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(rc.signingKey)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign reset token")
	}
	return signed, nil
}

// Verify returns the claims of token or ErrInvalidOrExpired. The max age is
// enforced against iat as well, so shortening it applies to tokens already
// issued.
func (rc *ResetTokenCodec) Verify(token string) (claims *ResetClaims, err error) {
	defer func() {
		if r := recover(); r != nil {
			claims, err = nil, ErrInvalidOrExpired
		}
	}()

	if strings.TrimSpace(token) == "" {
		return nil, ErrInvalidOrExpired
	}

	parsed, err := jwt.ParseWithClaims(token, &ResetClaims{}, func(t *jwt.Token) (any, error) {
		return rc.signingKey, nil
	}, rc.parserOptions(AudiencePasswordReset)...)
	if err != nil {
		rc.logger.Debug("reset token rejected", "reason", tokenRejectReason(err))
		return nil, ErrInvalidOrExpired
	}

	claims, ok := parsed.Claims.(*ResetClaims)
	if !ok || !parsed.Valid || claims.Subject == "" || claims.UID == "" || claims.IssuedAt == nil {
		return nil, ErrInvalidOrExpired
	}

	if rc.now().Sub(claims.IssuedAt.Time) > rc.maxAge {
		rc.logger.Debug("reset token rejected", "reason", "max_age")
		return nil, ErrInvalidOrExpired
	}

	return claims, nil
}

// DeriveCSRFKey derives the key signing admin console CSRF tokens.
func DeriveCSRFKey(secret []byte) ([]byte, error) {
	if len(secret) == 0 {
		return nil, goerrors.New("csrf secret must not be empty", goerrors.CategoryBadInput)
	}
	return deriveKey(secret, csrfKeySalt, csrfKeyInfo)
}

func deriveKey(secret []byte, salt, info string) ([]byte, error) {
	key := make([]byte, sha256.Size)
	r := hkdf.New(sha256.New, secret, []byte(salt), []byte(info))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to derive signing key")
	}
	return key, nil
}
