package jwtware_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-auth-service/middleware/jwtware"
)

type subjectKey struct{}

type hmacValidator struct {
	key []byte
}

func (v hmacValidator) Verify(raw string) (string, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		return v.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	return token.Claims.GetSubject()
}

// By default we set an expiration time 1 hour from now
func generateToken(t *testing.T, key []byte, claims jwt.MapClaims) string {
	t.Helper()

	if claims["exp"] == nil {
		claims["exp"] = time.Now().Add(time.Hour).Unix()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func newApp(cfg jwtware.Config) *fiber.App {
	app := fiber.New()
	app.Get("/protected", jwtware.New(cfg), func(c *fiber.Ctx) error {
		subject, _ := c.Locals("user").(string)
		if v, ok := c.UserContext().Value(subjectKey{}).(string); ok {
			subject += "|" + v
		}
		return c.SendString(subject)
	})
	return app
}

func body(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestJWTWare_BasicHeaderExtraction(t *testing.T) {
	key := []byte("test-secret")
	app := newApp(jwtware.Config{TokenValidator: hmacValidator{key: key}})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+generateToken(t, key, jwt.MapClaims{"sub": "12345"}))

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "12345", body(t, resp))
}

func TestJWTWare_MissingToken(t *testing.T) {
	app := newApp(jwtware.Config{TokenValidator: hmacValidator{key: []byte("k")}})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/protected", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, jwtware.ErrJWTMissingOrMalformed.Error(), body(t, resp))
}

func TestJWTWare_ExpiredToken(t *testing.T) {
	key := []byte("test-secret")
	app := newApp(jwtware.Config{TokenValidator: hmacValidator{key: key}})

	expired := generateToken(t, key, jwt.MapClaims{
		"sub": "12345",
		"exp": time.Now().Add(-time.Minute).Unix(),
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+expired)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestJWTWare_WrongScheme(t *testing.T) {
	key := []byte("test-secret")
	app := newApp(jwtware.Config{TokenValidator: hmacValidator{key: key}})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Basic "+generateToken(t, key, jwt.MapClaims{"sub": "1"}))

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestJWTWare_CustomTokenLookup(t *testing.T) {
	key := []byte("test-secret")
	token := generateToken(t, key, jwt.MapClaims{"sub": "cookie-user"})

	app := newApp(jwtware.Config{
		TokenValidator: hmacValidator{key: key},
		TokenLookup:    "header:Authorization,cookie:auth_session",
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.AddCookie(&http.Cookie{Name: "auth_session", Value: token})

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "cookie-user", body(t, resp))
}

func TestJWTWare_FilterFunction(t *testing.T) {
	app := newApp(jwtware.Config{
		TokenValidator: hmacValidator{key: []byte("k")},
		Filter: func(c *fiber.Ctx) bool {
			return c.Query("skip") == "1"
		},
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/protected?skip=1", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestJWTWare_ValidationListenerRejects(t *testing.T) {
	key := []byte("test-secret")
	listenerErr := errors.New("not allowed")

	var seen string
	app := newApp(jwtware.Config{
		TokenValidator: hmacValidator{key: key},
		ValidationListeners: []jwtware.ValidationListener{
			nil,
			func(c *fiber.Ctx, subject string) error {
				seen = subject
				return listenerErr
			},
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if errors.Is(err, listenerErr) {
				return c.Status(fiber.StatusForbidden).SendString(err.Error())
			}
			return c.SendStatus(fiber.StatusUnauthorized)
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+generateToken(t, key, jwt.MapClaims{"sub": "blocked"}))

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "blocked", seen)
}

func TestJWTWare_ContextEnricher(t *testing.T) {
	key := []byte("test-secret")
	app := newApp(jwtware.Config{
		TokenValidator: hmacValidator{key: key},
		ContextEnricher: func(ctx context.Context, subject string) context.Context {
			return context.WithValue(ctx, subjectKey{}, "ctx-"+subject)
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+generateToken(t, key, jwt.MapClaims{"sub": "42"}))

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "42|ctx-42", body(t, resp))
}

func TestJWTWare_MissingValidatorPanics(t *testing.T) {
	assert.Panics(t, func() {
		jwtware.New(jwtware.Config{})
	})
}

func TestJWTWare_Extractors(t *testing.T) {
	extractors := jwtware.GetExtractors("header:Authorization, query:token, param:id, cookie:jwt, bogus")
	assert.Len(t, extractors, 4)
}
