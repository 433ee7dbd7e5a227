package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

type loginResult struct {
	AccessToken        string `json:"access_token"`
	Role               string `json:"role"`
	MustChangePassword bool   `json:"must_change_password"`
}

func refreshCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == refreshTokenCookieName && c.Value != "" {
			return c
		}
	}
	t.Fatalf("no refresh cookie in response")
	return nil
}

func (e *testEnv) postWithCookie(path string, cookie *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, nil)
	req.AddCookie(cookie)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) bootstrapAdmin(t *testing.T) (email, password string) {
	t.Helper()
	_, password, err := e.users.EnsureAdmin(context.Background(), "owner@example.com", "Owner")
	if err != nil {
		t.Fatalf("ensure admin: %v", err)
	}
	return "owner@example.com", password
}

func TestLoginRequiresPasswordChangeBeforeAdminAccess(t *testing.T) {
	env := newTestEnv(t)
	email, password := env.bootstrapAdmin(t)

	w := env.do(t, http.MethodPost, "/auth/login", map[string]any{"email": email, "password": "wrong-password"}, "")
	expectStatus(t, w, http.StatusUnauthorized)

	w = env.do(t, http.MethodPost, "/auth/login", map[string]any{"email": "OWNER@example.com", "password": password}, "")
	expectStatus(t, w, http.StatusOK)
	login := decode[loginResult](t, w)
	if !login.MustChangePassword || login.Role != "admin" {
		t.Fatalf("unexpected login %+v", login)
	}

	w = env.do(t, http.MethodGet, "/auth/me", nil, login.AccessToken)
	expectStatus(t, w, http.StatusOK)
	if me := decode[meResponse](t, w); me.Email != email {
		t.Fatalf("me = %+v", me)
	}

	skill := map[string]any{"name": "Go", "category": "Backend", "level": 90}
	w = env.do(t, http.MethodPost, "/skills", skill, login.AccessToken)
	expectStatus(t, w, http.StatusForbidden)

	w = env.do(t, http.MethodPost, "/auth/password", map[string]any{"currentPassword": password, "newPassword": "short"}, login.AccessToken)
	expectStatus(t, w, http.StatusBadRequest)

	w = env.do(t, http.MethodPost, "/auth/password", map[string]any{"currentPassword": password, "newPassword": "a-much-better-passphrase"}, login.AccessToken)
	expectStatus(t, w, http.StatusOK)
	changed := decode[loginResult](t, w)
	if changed.MustChangePassword {
		t.Fatalf("must_change_password still set")
	}

	w = env.do(t, http.MethodPost, "/skills", skill, changed.AccessToken)
	expectStatus(t, w, http.StatusCreated)
}

func TestRefreshRotatesAndLogoutRevokes(t *testing.T) {
	env := newTestEnv(t)
	email, password := env.bootstrapAdmin(t)

	w := env.do(t, http.MethodPost, "/auth/login", map[string]any{"email": email, "password": password}, "")
	expectStatus(t, w, http.StatusOK)
	first := refreshCookie(t, w)

	w = env.postWithCookie("/auth/refresh", first)
	expectStatus(t, w, http.StatusOK)
	second := refreshCookie(t, w)
	if decode[loginResult](t, w).AccessToken == "" {
		t.Fatalf("refresh returned no access token")
	}

	w = env.postWithCookie("/auth/refresh", first)
	expectStatus(t, w, http.StatusUnauthorized)

	w = env.postWithCookie("/auth/logout", second)
	expectStatus(t, w, http.StatusOK)

	w = env.postWithCookie("/auth/refresh", second)
	expectStatus(t, w, http.StatusUnauthorized)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/auth/refresh", map[string]any{"refresh_token": env.adminToken(t)}, "")
	expectStatus(t, w, http.StatusUnauthorized)
}

func TestOAuthRoutesNotFoundWhenUnconfigured(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/auth/oauth/github", nil, "")
	expectStatus(t, w, http.StatusNotFound)
	w = env.do(t, http.MethodGet, "/auth/oauth/github/callback?code=x&state=y", nil, "")
	expectStatus(t, w, http.StatusNotFound)
}

func TestMeRequiresToken(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/auth/me", nil, "")
	expectStatus(t, w, http.StatusUnauthorized)
}
