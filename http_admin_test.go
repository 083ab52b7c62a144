package auth_test

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-auth-service"
)

func newAdminApp(t *testing.T) (*testEnv, *fiber.App) {
	t.Helper()
	env := newTestEnv(t)
	env.registerAdmin(t, "root", "rootpw")
	return env, auth.NewHTTPApp(auth.HTTPConfig{}, env.service, env.gate, env.admin)
}

func adminLogin(t *testing.T, app *fiber.App, username, password string) (string, *http.Cookie) {
	t.Helper()
	resp := doRequest(t, app, http.MethodPost, "/admin/login", map[string]string{
		"username": username,
		"password": password,
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(resp.Raw))

	token, _ := resp.Body["token"].(string)
	require.NotEmpty(t, token)

	for _, c := range resp.Cookies() {
		if c.Name == auth.DefaultSessionCookie {
			return token, c
		}
	}
	t.Fatalf("session cookie %q not set", auth.DefaultSessionCookie)
	return "", nil
}

func bearer(token string) map[string]string {
	return map[string]string{fiber.HeaderAuthorization: "Bearer " + token}
}

func TestHTTPAdmin_LoginAndSession(t *testing.T) {
	_, app := newAdminApp(t)

	token, cookie := adminLogin(t, app, "root", "rootpw")
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, token, cookie.Value)

	resp := doRequest(t, app, http.MethodGet, "/admin/users", nil, bearer(token))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	users, _ := resp.Body["users"].([]any)
	assert.Len(t, users, 1)

	resp = doRequest(t, app, http.MethodGet, "/admin/users", nil, map[string]string{
		fiber.HeaderCookie: auth.DefaultSessionCookie + "=" + cookie.Value,
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	for _, u := range users {
		assert.NotContains(t, u, "password_hash")
	}
}

func TestHTTPAdmin_RejectsMissingOrForeignSessions(t *testing.T) {
	env, app := newAdminApp(t)

	resp := doRequest(t, app, http.MethodGet, "/admin/users", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, auth.TextCodeInvalidToken, resp.Body["code"])

	resp = doRequest(t, app, http.MethodGet, "/admin/apikeys", nil, withKey(env.apiKey))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "service keys never open the console")

	root, err := env.repo.Users().GetByUsername(context.Background(), "root")
	require.NoError(t, err)
	apiToken, err := env.tokens.Issue(root.ID.String())
	require.NoError(t, err)

	resp = doRequest(t, app, http.MethodGet, "/admin/users", nil, bearer(apiToken))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHTTPAdmin_NonAdminLogin(t *testing.T) {
	env, app := newAdminApp(t)
	env.register(t, "alice", "", "pw1")

	resp := doRequest(t, app, http.MethodPost, "/admin/login", map[string]string{"username": "alice", "password": "pw1"}, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, auth.TextCodeForbidden, resp.Body["code"])

	resp = doRequest(t, app, http.MethodPost, "/admin/login", map[string]string{"username": "root", "password": "bad"}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, auth.TextCodeInvalidCredentials, resp.Body["code"])
}

func TestHTTPAdmin_DemotedAdminIsForbidden(t *testing.T) {
	env, app := newAdminApp(t)
	second := env.registerAdmin(t, "second", "secondpw")

	rootToken, _ := adminLogin(t, app, "root", "rootpw")
	secondToken, _ := adminLogin(t, app, "second", "secondpw")

	resp := doRequest(t, app, http.MethodPost, "/admin/users/"+second.ID.String()+"/toggle-admin", nil, bearer(rootToken))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, resp.Body["is_admin"])
	assert.Equal(t, "second", resp.Body["username"])

	resp = doRequest(t, app, http.MethodGet, "/admin/users", nil, bearer(secondToken))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHTTPAdmin_ServiceKeys(t *testing.T) {
	_, app := newAdminApp(t)
	token, _ := adminLogin(t, app, "root", "rootpw")

	resp := doRequest(t, app, http.MethodPost, "/admin/apikeys", map[string]string{"description": "billing"}, bearer(token))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	key, _ := resp.Body["key"].(string)
	id, _ := resp.Body["id"].(string)
	require.NotEmpty(t, key)
	assert.Equal(t, "billing", resp.Body["description"])

	resp = doRequest(t, app, http.MethodPost, "/api/register", map[string]string{"username": "alice", "password": "pw1"}, withKey(key))
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = doRequest(t, app, http.MethodGet, "/admin/apikeys", nil, bearer(token))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotContains(t, string(resp.Raw), key)
	assert.Contains(t, string(resp.Raw), key[len(key)-4:])

	resp = doRequest(t, app, http.MethodDelete, "/admin/apikeys/"+id, nil, bearer(token))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, id, resp.Body["id"])

	resp = doRequest(t, app, http.MethodDelete, "/admin/apikeys/"+id, nil, bearer(token))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, auth.TextCodeServiceKeyNotFound, resp.Body["code"])

	resp = doRequest(t, app, http.MethodPost, "/api/register", map[string]string{"username": "bob", "password": "pw1"}, withKey(key))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHTTPAdmin_Users(t *testing.T) {
	env, app := newAdminApp(t)
	token, _ := adminLogin(t, app, "root", "rootpw")

	resp := doRequest(t, app, http.MethodPost, "/admin/users", map[string]any{
		"username":         "alice",
		"email":            "alice@example.com",
		"password":         "pw1",
		"confirm_password": "pw2",
	}, bearer(token))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, auth.TextCodePasswordMismatch, resp.Body["code"])

	resp = doRequest(t, app, http.MethodPost, "/admin/users", map[string]any{
		"username":         "alice",
		"email":            "alice@example.com",
		"password":         "pw1",
		"confirm_password": "pw1",
	}, bearer(token))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created, _ := resp.Body["user"].(map[string]any)
	aliceID, _ := created["id"].(string)
	require.NotEmpty(t, aliceID)

	resp = doRequest(t, app, http.MethodPost, "/admin/users", map[string]any{
		"username":         "alice",
		"password":         "pw1",
		"confirm_password": "pw1",
	}, bearer(token))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, auth.TextCodeAlreadyExists, resp.Body["code"])

	root, err := env.repo.Users().GetByUsername(context.Background(), "root")
	require.NoError(t, err)

	resp = doRequest(t, app, http.MethodDelete, "/admin/users/"+root.ID.String(), nil, bearer(token))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, auth.TextCodeForbiddenSelfDelete, resp.Body["code"])
	assert.Equal(t, "You cannot delete yourself", resp.Body["error"])

	resp = doRequest(t, app, http.MethodDelete, "/admin/users/"+aliceID, nil, bearer(token))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, resp.Body["success"])

	resp = doRequest(t, app, http.MethodDelete, "/admin/users/"+aliceID, nil, bearer(token))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, auth.TextCodeUserNotFound, resp.Body["code"])
}

func TestHTTPAdmin_PasswordReset(t *testing.T) {
	env, app := newAdminApp(t)
	token, _ := adminLogin(t, app, "root", "rootpw")
	alice := env.register(t, "alice", "alice@example.com", "pw1")

	resp := doRequest(t, app, http.MethodPost, "/admin/users/"+alice.ID.String()+"/reset", nil, bearer(token))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resetURL, _ := resp.Body["reset_url"].(string)
	require.Contains(t, resetURL, "/admin/reset/")
	resetToken := resetURL[strings.LastIndex(resetURL, "/")+1:]

	resp = doRequest(t, app, http.MethodPost, "/admin/reset/garbage", map[string]string{
		"password":         "new-pw",
		"confirm_password": "new-pw",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, auth.TextCodeInvalidOrExpired, resp.Body["code"])

	resp = doRequest(t, app, http.MethodPost, "/admin/reset/"+resetToken, map[string]string{
		"password":         "new-pw",
		"confirm_password": "new-pw",
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	key := withKey(env.apiKey)
	resp = doRequest(t, app, http.MethodPost, "/api/login", map[string]string{"username": "alice", "password": "new-pw"}, key)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHTTPAdmin_Logout(t *testing.T) {
	_, app := newAdminApp(t)

	resp := doRequest(t, app, http.MethodPost, "/admin/logout", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var cleared bool
	for _, c := range resp.Cookies() {
		if c.Name == auth.DefaultSessionCookie {
			cleared = c.Value == ""
		}
	}
	assert.True(t, cleared)
}

func TestHTTPAdmin_CookieSessionsRequireCSRFToken(t *testing.T) {
	_, app := newAdminApp(t)
	_, cookie := adminLogin(t, app, "root", "rootpw")
	session := map[string]string{
		fiber.HeaderCookie: auth.DefaultSessionCookie + "=" + cookie.Value,
	}

	resp := doRequest(t, app, http.MethodPost, "/admin/apikeys", map[string]string{"description": "x"}, session)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, auth.TextCodeCSRFTokenMissing, resp.Body["code"])

	resp = doRequest(t, app, http.MethodGet, "/admin/csrf", nil, session)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	csrfToken, _ := resp.Body["token"].(string)
	require.NotEmpty(t, csrfToken)
	assert.Equal(t, "X-CSRF-Token", resp.Body["header_name"])

	forged := map[string]string{
		fiber.HeaderCookie: session[fiber.HeaderCookie],
		"X-CSRF-Token":     "forged",
	}
	resp = doRequest(t, app, http.MethodPost, "/admin/apikeys", map[string]string{"description": "x"}, forged)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, auth.TextCodeCSRFTokenInvalid, resp.Body["code"])

	valid := map[string]string{
		fiber.HeaderCookie: session[fiber.HeaderCookie],
		"X-CSRF-Token":     csrfToken,
	}
	resp = doRequest(t, app, http.MethodPost, "/admin/apikeys", map[string]string{"description": "x"}, valid)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestHTTPAdmin_CSRFTokenBoundToAdmin(t *testing.T) {
	env, app := newAdminApp(t)
	env.registerAdmin(t, "second", "secondpw")
	_, rootCookie := adminLogin(t, app, "root", "rootpw")
	_, secondCookie := adminLogin(t, app, "second", "secondpw")

	resp := doRequest(t, app, http.MethodGet, "/admin/csrf", nil, map[string]string{
		fiber.HeaderCookie: auth.DefaultSessionCookie + "=" + rootCookie.Value,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	csrfToken, _ := resp.Body["token"].(string)

	resp = doRequest(t, app, http.MethodPost, "/admin/apikeys", map[string]string{"description": "x"}, map[string]string{
		fiber.HeaderCookie: auth.DefaultSessionCookie + "=" + secondCookie.Value,
		"X-CSRF-Token":     csrfToken,
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, auth.TextCodeCSRFTokenInvalid, resp.Body["code"])
}
