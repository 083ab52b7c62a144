package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

// DefaultTokenTTL is the validity window of a session token.
const DefaultTokenTTL = 2 * time.Hour

type tokenConfig struct {
	issuer string
	now    Clock
	logger Logger
}

// TokenOption configures token codecs.
type TokenOption func(*tokenConfig)

// WithClock replaces time.Now, both when issuing and verifying.
func WithClock(clock Clock) TokenOption {
	return func(c *tokenConfig) {
		if clock != nil {
			c.now = clock
		}
	}
}

// WithTokenIssuer sets the iss claim and requires it on verification.
func WithTokenIssuer(issuer string) TokenOption {
	return func(c *tokenConfig) {
		c.issuer = strings.TrimSpace(issuer)
	}
}

// WithTokenLogger sets the logger used to report rejected tokens.
func WithTokenLogger(logger Logger) TokenOption {
	return func(c *tokenConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func newTokenConfig(opts []TokenOption) tokenConfig {
	cfg := tokenConfig{
		now:    time.Now,
		logger: defaultLoggerProvider().GetLogger("auth.token"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

func (c tokenConfig) parserOptions(audience string) []jwt.ParserOption {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}
	return opts
}

// JWTTokenService signs HS256 session tokens for a single audience.
type JWTTokenService struct {
	tokenConfig
	signingKey []byte
	ttl        time.Duration
	audience   string
}

var _ TokenService = (*JWTTokenService)(nil)

// NewTokenService creates a session token codec. A zero ttl uses
// DefaultTokenTTL.
func NewTokenService(signingKey []byte, ttl time.Duration, audience string, opts ...TokenOption) *JWTTokenService {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	if audience == "" {
		audience = AudienceAPI
	}
	return &JWTTokenService{
		tokenConfig: newTokenConfig(opts),
		signingKey:  signingKey,
		ttl:         ttl,
		audience:    audience,
	}
}

// Audience returns the audience tokens are issued for.
func (ts *JWTTokenService) Audience() string {
	return ts.audience
}

// TTL returns the validity window.
func (ts *JWTTokenService) TTL() time.Duration {
	return ts.ttl
}

// Issue signs a token for userID expiring after the configured window.
func (ts *JWTTokenService) Issue(userID string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", goerrors.New("user id must not be empty", goerrors.CategoryInternal)
	}

	now := ts.now()
	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   userID,
			Audience:  jwt.ClaimStrings{ts.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.ttl)),
		},
		UID: userID,
	}

	ensureTokenID(&claims.RegisteredClaims)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ts.signingKey)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign JWT")
	}
	return signed, nil
}

// Verify returns the user id embedded in token. Every failure, whatever the
// cause, is reported as ErrInvalidToken.
func (ts *JWTTokenService) Verify(token string) (string, error) {
	claims, err := ts.Claims(token)
	if err != nil {
		return "", err
	}
	return claims.UserID(), nil
}

// Claims parses and validates token.
func (ts *JWTTokenService) Claims(token string) (claims *SessionClaims, err error) {
	defer func() {
		if r := recover(); r != nil {
			ts.logger.Error("token verification panicked", "panic", fmt.Sprint(r))
			claims, err = nil, ErrInvalidToken
		}
	}()

	if strings.TrimSpace(token) == "" {
		return nil, ErrInvalidToken
	}

	parsed, err := jwt.ParseWithClaims(token, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		return ts.signingKey, nil
	}, ts.parserOptions(ts.audience)...)
	if err != nil {
		ts.logger.Debug("session token rejected", "audience", ts.audience, "reason", tokenRejectReason(err))
		return nil, ErrInvalidToken
	}

	out, ok := parsed.Claims.(*SessionClaims)
	if !ok || !parsed.Valid || out.UserID() == "" {
		ts.logger.Debug("session token rejected", "audience", ts.audience, "reason", "invalid_claims")
		return nil, ErrInvalidToken
	}

	return out, nil
}

func tokenRejectReason(err error) string {
	switch {
	case goerrors.Is(err, jwt.ErrTokenExpired):
		return "expired"
	case goerrors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "bad_signature"
	case goerrors.Is(err, jwt.ErrTokenInvalidAudience):
		return "wrong_audience"
	case goerrors.Is(err, jwt.ErrTokenMalformed):
		return "malformed"
	case goerrors.Is(err, jwt.ErrTokenUnverifiable):
		return "unverifiable"
	default:
		return "invalid"
	}
}
