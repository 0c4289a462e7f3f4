package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mukkaai/authd/auth"
	"github.com/mukkaai/authd/store"
	"github.com/mukkaai/authd/store/memory"
)

type testEnv struct {
	server *httptest.Server
	client *http.Client
	svc    *auth.Service
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()

	mem := memory.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	issuer := auth.NewTokenIssuer("test-jwt-secret", "test-refresh-secret", time.Hour, 7*24*time.Hour)
	svc := auth.NewService(mem.Users(), mem.RefreshTokens(), mem.ResetTokens(), issuer, logger)

	_, err := svc.CreateUser(t.Context(), "admin", "admin123", store.RoleAdmin, "admin@example.com", "")
	require.NoError(t, err)

	a := New(svc, issuer, append([]Option{WithLogger(logger)}, opts...)...)
	server := httptest.NewServer(a.Router())
	t.Cleanup(server.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &testEnv{
		server: server,
		client: &http.Client{Jar: jar},
		svc:    svc,
	}
}

func (e *testEnv) post(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	resp, err := e.client.Post(e.server.URL+path, "application/json", &buf)
	require.NoError(t, err)
	return resp
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := e.client.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func (e *testEnv) login(t *testing.T, username, password string) map[string]any {
	t.Helper()
	resp := e.post(t, "/login", map[string]string{"username": username, "password": password})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return decodeBody(t, resp)
}

func (e *testEnv) cookies(t *testing.T) []*http.Cookie {
	t.Helper()
	u, err := url.Parse(e.server.URL)
	require.NoError(t, err)
	return e.client.Jar.Cookies(u)
}

func TestLoginSeededAdmin(t *testing.T) {
	env := newTestEnv(t)

	resp := env.post(t, "/login", map[string]string{"username": "admin", "password": "admin123"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var names []string
	for _, c := range resp.Cookies() {
		names = append(names, c.Name)
		switch c.Name {
		case "token":
			assert.True(t, c.HttpOnly)
			assert.Equal(t, "/", c.Path)
		case "refreshToken":
			assert.True(t, c.HttpOnly)
			assert.Equal(t, "/refresh-token", c.Path)
		}
	}
	assert.Contains(t, names, "token")
	assert.Contains(t, names, "refreshToken")

	body := decodeBody(t, resp)
	user := body["user"].(map[string]any)
	assert.Equal(t, "admin", user["username"])
	assert.Equal(t, "admin", user["role"])
	assert.NotEmpty(t, body["token"])
	assert.EqualValues(t, 3600, body["expiresIn"])
}

func TestLoginValidation(t *testing.T) {
	env := newTestEnv(t)

	resp := env.post(t, "/login", map[string]string{"username": "admin"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = env.post(t, "/login", map[string]string{"username": "admin", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "Invalid credentials", body["error"])
	assert.EqualValues(t, 401, body["status"])
	assert.Equal(t, "/login", body["path"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestLoginUnknownUserSameError(t *testing.T) {
	env := newTestEnv(t)

	respUnknown := env.post(t, "/login", map[string]string{"username": "ghost", "password": "x"})
	respWrongPw := env.post(t, "/login", map[string]string{"username": "admin", "password": "x"})

	assert.Equal(t, http.StatusUnauthorized, respUnknown.StatusCode)
	assert.Equal(t, http.StatusUnauthorized, respWrongPw.StatusCode)
	assert.Equal(t, decodeBody(t, respUnknown)["error"], decodeBody(t, respWrongPw)["error"])
}

func TestLoginRateLimiting(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 5; i++ {
		resp := env.post(t, "/login", map[string]string{"username": "admin", "password": "wrong"})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		resp.Body.Close()
	}

	// 6th attempt is rejected even with correct credentials.
	resp := env.post(t, "/login", map[string]string{"username": "admin", "password": "admin123"})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
	resp.Body.Close()
}

func TestLoginRateLimitingDisabled(t *testing.T) {
	env := newTestEnv(t, WithAccountLockout(false))

	for i := 0; i < 7; i++ {
		resp := env.post(t, "/login", map[string]string{"username": "admin", "password": "wrong"})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		resp.Body.Close()
	}
	resp := env.post(t, "/login", map[string]string{"username": "admin", "password": "admin123"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestRefreshToken(t *testing.T) {
	env := newTestEnv(t)
	env.login(t, "admin", "admin123")

	resp := env.post(t, "/refresh-token", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.NotEmpty(t, body["token"])
	assert.Equal(t, "admin", body["user"].(map[string]any)["username"])
}

func TestRefreshTokenRequiresCookie(t *testing.T) {
	env := newTestEnv(t)

	resp := env.post(t, "/refresh-token", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "Refresh token required", body["error"])
	assert.EqualValues(t, 401, body["status"])
}

func TestLogoutIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.login(t, "admin", "admin123")

	resp := env.post(t, "/logout", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = env.post(t, "/logout", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Cookies were cleared.
	for _, c := range env.cookies(t) {
		assert.Empty(t, c.Value, "cookie %s not cleared", c.Name)
	}
}

func TestRefreshAfterLogoutFails(t *testing.T) {
	env := newTestEnv(t)
	env.login(t, "admin", "admin123")

	// Grab the refresh cookie before logout clears the jar.
	u, _ := url.Parse(env.server.URL + "/refresh-token")
	var refreshCookie *http.Cookie
	for _, c := range env.client.Jar.Cookies(u) {
		if c.Name == "refreshToken" {
			refreshCookie = c
		}
	}
	require.NotNil(t, refreshCookie)

	// The refresh cookie never travels to /logout (path scoping), so the
	// client hands the token over in the body.
	resp := env.post(t, "/logout", map[string]string{"refreshToken": refreshCookie.Value})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	req, err := http.NewRequest(http.MethodPost, env.server.URL+"/refresh-token", nil)
	require.NoError(t, err)
	req.AddCookie(refreshCookie)
	resp, err = env.client.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestLogoutAll(t *testing.T) {
	env := newTestEnv(t)
	env.login(t, "admin", "admin123")

	resp := env.post(t, "/logout-all", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = env.post(t, "/refresh-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestLogoutAllRequiresAuth(t *testing.T) {
	env := newTestEnv(t)
	resp := env.post(t, "/logout-all", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	env.login(t, "admin", "admin123")

	resp := env.do(t, http.MethodPut, "/password", map[string]string{
		"currentPassword": "wrong", "newPassword": "changed-pw",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodPut, "/password", map[string]string{
		"currentPassword": "admin123", "newPassword": "changed-pw",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Refresh tokens from before the change are revoked.
	resp = env.post(t, "/refresh-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	env.login(t, "admin", "changed-pw")
}

func TestPasswordResetFlow(t *testing.T) {
	env := newTestEnv(t)

	resp := env.post(t, "/forgot-password", map[string]string{"username": "admin"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	token, _ := body["resetToken"].(string)
	require.NotEmpty(t, token, "reset token is echoed outside production")

	resp = env.post(t, "/reset-password", map[string]string{
		"token": token, "newPassword": "reset-pw",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// The token cannot be consumed twice.
	resp = env.post(t, "/reset-password", map[string]string{
		"token": token, "newPassword": "other-pw",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	env.login(t, "admin", "reset-pw")
}

func TestSecondResetTokenInvalidatesFirst(t *testing.T) {
	env := newTestEnv(t)

	resp := env.post(t, "/forgot-password", map[string]string{"username": "admin"})
	first := decodeBody(t, resp)["resetToken"].(string)
	resp = env.post(t, "/forgot-password", map[string]string{"username": "admin"})
	second := decodeBody(t, resp)["resetToken"].(string)

	resp = env.post(t, "/reset-password", map[string]string{"token": first, "newPassword": "pw-one"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = env.post(t, "/reset-password", map[string]string{"token": second, "newPassword": "pw-two"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestForgotPasswordNoEnumeration(t *testing.T) {
	env := newTestEnv(t)

	respKnown := env.post(t, "/forgot-password", map[string]string{"username": "admin"})
	respUnknown := env.post(t, "/forgot-password", map[string]string{"username": "ghost"})

	assert.Equal(t, http.StatusOK, respKnown.StatusCode)
	assert.Equal(t, http.StatusOK, respUnknown.StatusCode)

	known := decodeBody(t, respKnown)
	unknown := decodeBody(t, respUnknown)
	assert.Equal(t, known["message"], unknown["message"])
	assert.Nil(t, unknown["resetToken"])
}

func TestForgotPasswordProductionHidesToken(t *testing.T) {
	env := newTestEnv(t, WithProduction(true))

	resp := env.post(t, "/forgot-password", map[string]string{"username": "admin"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Nil(t, body["resetToken"])
}

func TestProfileEndpoints(t *testing.T) {
	env := newTestEnv(t)
	env.login(t, "admin", "admin123")

	resp := env.do(t, http.MethodGet, "/users/me", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	me := decodeBody(t, resp)
	assert.Equal(t, "admin", me["username"])
	assert.Nil(t, me["passwordHash"])

	resp = env.do(t, http.MethodPut, "/users/me", map[string]any{
		"displayName": "Administrator",
		"preferences": map[string]any{"theme": "dark"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decodeBody(t, resp)
	assert.Equal(t, "Administrator", updated["displayName"])
	assert.Equal(t, "dark", updated["preferences"].(map[string]any)["theme"])
}

func TestAdminUserManagement(t *testing.T) {
	env := newTestEnv(t)
	env.login(t, "admin", "admin123")

	resp := env.post(t, "/users/", map[string]string{
		"username": "Bob", "password": "bob-pass", "role": "user",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody(t, resp)
	assert.Equal(t, "bob", created["username"])

	resp = env.post(t, "/users/", map[string]string{
		"username": "bob", "password": "again",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodGet, "/users/", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	listed := decodeBody(t, resp)
	assert.EqualValues(t, 2, listed["count"])

	resp = env.do(t, http.MethodDelete, "/users/admin", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodDelete, "/users/bob", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodDelete, "/users/bob", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestAdminEndpointsForbiddenForUsers(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.CreateUser(t.Context(), "carol", "carol-pw", store.RoleUser, "", "")
	require.NoError(t, err)
	env.login(t, "carol", "carol-pw")

	resp := env.do(t, http.MethodGet, "/users/", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodGet, "/admin/audit", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
}

func TestBearerHeaderAuth(t *testing.T) {
	env := newTestEnv(t)
	body := env.login(t, "admin", "admin123")
	token := body["token"].(string)

	// A client without cookies can authenticate with the bearer header.
	req, err := http.NewRequest(http.MethodGet, env.server.URL+"/users/me", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestAuditTrailRecordsEvents(t *testing.T) {
	trail, err := OpenAuditTrail(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { trail.Close() })

	env := newTestEnv(t, WithAuditTrail(trail))
	env.login(t, "admin", "admin123")

	resp := env.post(t, "/login", map[string]string{"username": "admin", "password": "wrong"})
	resp.Body.Close()

	resp = env.do(t, http.MethodGet, "/admin/audit", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	entries := body["entries"].([]any)
	require.NotEmpty(t, entries)

	events := make(map[string]bool)
	for _, e := range entries {
		events[e.(map[string]any)["event"].(string)] = true
	}
	assert.True(t, events["login_success"])
	assert.True(t, events["login_failure"])
}

func TestAuditKeyOrderIsChronological(t *testing.T) {
	whole := time.Date(2026, 8, 28, 15, 4, 3, 0, time.UTC)
	sub := whole.Add(500 * time.Millisecond)
	next := whole.Add(time.Second)

	// A whole-second entry must sort before a later sub-second one.
	assert.Negative(t, bytes.Compare(auditKey(whole, "a"), auditKey(sub, "b")))
	assert.Negative(t, bytes.Compare(auditKey(sub, "b"), auditKey(next, "c")))
}

func TestAuditTrailListNewestFirst(t *testing.T) {
	trail, err := OpenAuditTrail(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { trail.Close() })

	require.NoError(t, trail.Append(AuditLoginFailure, "alice", "127.0.0.1:1", ""))
	require.NoError(t, trail.Append(AuditLoginSuccess, "alice", "127.0.0.1:1", ""))

	records, err := trail.List(10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, string(AuditLoginSuccess), records[0].Event)
	assert.Equal(t, string(AuditLoginFailure), records[1].Event)
}

func TestSecurityHeaders(t *testing.T) {
	env := newTestEnv(t)
	resp := env.post(t, "/logout", nil)
	defer resp.Body.Close()
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
}

func TestOpenAPIServed(t *testing.T) {
	env := newTestEnv(t)
	resp, err := env.client.Get(env.server.URL + "/openapi.yaml")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), "openapi:")
}

func TestErrorBodyShape(t *testing.T) {
	env := newTestEnv(t)
	resp := env.post(t, "/reset-password", map[string]string{
		"token": "bogus", "newPassword": "pw",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decodeBody(t, resp)
	for _, field := range []string{"error", "status", "path", "timestamp"} {
		assert.Contains(t, body, field, fmt.Sprintf("error body missing %s", field))
	}
}
