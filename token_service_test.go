package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-auth-service"
)

func TestTokenService_IssueAndVerify(t *testing.T) {
	clock := newFakeClock()
	ts := auth.NewTokenService(testSecret, 0, auth.AudienceAPI, auth.WithClock(clock.Now))

	token, err := ts.Issue("user-123")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	userID, err := ts.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-123", userID)

	claims, err := ts.Claims(token)
	require.NoError(t, err)
	assert.Equal(t, "user-123", claims.Subject)
	assert.NotEmpty(t, claims.ID)
	assert.Equal(t, jwt.ClaimStrings{auth.AudienceAPI}, claims.Audience)
	assert.WithinDuration(t, clock.Now().Add(auth.DefaultTokenTTL), claims.Expires(), 0)
	assert.Equal(t, time.UTC, claims.Expires().Location())
}

func TestTokenService_ExpiresAfterWindow(t *testing.T) {
	clock := newFakeClock()
	ts := auth.NewTokenService(testSecret, time.Hour, auth.AudienceAPI, auth.WithClock(clock.Now))

	token, err := ts.Issue("user-123")
	require.NoError(t, err)

	clock.Advance(59 * time.Minute)
	_, err = ts.Verify(token)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	_, err = ts.Verify(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestTokenService_RejectsForeignSecret(t *testing.T) {
	issuer := auth.NewTokenService([]byte("other-secret"), 0, auth.AudienceAPI)
	verifier := auth.NewTokenService(testSecret, 0, auth.AudienceAPI)

	token, err := issuer.Issue("user-123")
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestTokenService_RejectsMalformedInput(t *testing.T) {
	ts := auth.NewTokenService(testSecret, 0, auth.AudienceAPI)

	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "user-123",
		"aud": auth.AudienceAPI,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	hs512Token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{
		"sub": "user-123",
		"aud": auth.AudienceAPI,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(testSecret)
	require.NoError(t, err)

	noExpToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-123",
		"aud": auth.AudienceAPI,
	}).SignedString(testSecret)
	require.NoError(t, err)

	noSubjectToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"aud": auth.AudienceAPI,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(testSecret)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "blank", token: "   "},
		{name: "garbage", token: "not-a-token"},
		{name: "dots only", token: "..."},
		{name: "bad base64", token: "a.b.c"},
		{name: "binary", token: "\x00\xff\xfe.\x01.\x02"},
		{name: "alg none", token: noneToken},
		{name: "wrong algorithm", token: hs512Token},
		{name: "no expiry", token: noExpToken},
		{name: "no subject", token: noSubjectToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				_, err := ts.Verify(tt.token)
				assert.ErrorIs(t, err, auth.ErrInvalidToken)
			})
		})
	}
}

func TestTokenService_AudienceSeparation(t *testing.T) {
	api := auth.NewTokenService(testSecret, 0, auth.AudienceAPI)
	admin := auth.NewTokenService(testSecret, 0, auth.AudienceAdmin)

	apiToken, err := api.Issue("user-123")
	require.NoError(t, err)
	adminToken, err := admin.Issue("user-123")
	require.NoError(t, err)

	_, err = admin.Verify(apiToken)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	_, err = api.Verify(adminToken)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestTokenService_Issuer(t *testing.T) {
	withIssuer := auth.NewTokenService(testSecret, 0, auth.AudienceAPI, auth.WithTokenIssuer("authd"))
	withoutIssuer := auth.NewTokenService(testSecret, 0, auth.AudienceAPI)

	token, err := withoutIssuer.Issue("user-123")
	require.NoError(t, err)

	_, err = withIssuer.Verify(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	token, err = withIssuer.Issue("user-123")
	require.NoError(t, err)

	claims, err := withIssuer.Claims(token)
	require.NoError(t, err)
	assert.Equal(t, "authd", claims.Issuer)
}

func TestTokenService_IssueRequiresUserID(t *testing.T) {
	ts := auth.NewTokenService(testSecret, 0, "")
	assert.Equal(t, auth.AudienceAPI, ts.Audience())
	assert.Equal(t, auth.DefaultTokenTTL, ts.TTL())

	_, err := ts.Issue("  ")
	require.Error(t, err)
}
