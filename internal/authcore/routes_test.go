package authcore

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lostenergydrink/glimmerglow/internal/rbac"
)

type routesFixture struct {
	*serviceFixture
	router *gin.Engine
}

func newRoutesFixture(t *testing.T) *routesFixture {
	t.Helper()
	fixture := newServiceFixture(t)
	gin.SetMode(gin.TestMode)
	router := gin.New()
	csrfTokens := NewMemoryCSRFStore(fixture.config.CSRFTokenTTL, fixture.clock)
	MountAuthRoutes(router, fixture.config, fixture.service, csrfTokens)
	router.GET("/guarded", RequireAuthenticated(fixture.service, fixture.config), func(contextGin *gin.Context) {
		principal, _ := PrincipalFrom(contextGin)
		contextGin.JSON(http.StatusOK, gin.H{"success": true, "subject": principal.Identity.ID})
	})
	return &routesFixture{serviceFixture: fixture, router: router}
}

func (fixture *routesFixture) postJSON(path string, body string, decorate func(*http.Request)) *httptest.ResponseRecorder {
	request := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	request.Header.Set("Content-Type", "application/json")
	if decorate != nil {
		decorate(request)
	}
	recorder := httptest.NewRecorder()
	fixture.router.ServeHTTP(recorder, request)
	return recorder
}

func TestAuthRoutesSignUpLoginLogout(t *testing.T) {
	t.Parallel()

	fixture := newRoutesFixture(t)

	recorder := fixture.postJSON("/auth/signup", `{"email":"ada@example.com","password":"correct-horse"}`, nil)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("signup: expected 201, got %d (%s)", recorder.Code, recorder.Body.String())
	}
	body := decodeBody(t, recorder)
	user, _ := body["user"].(map[string]interface{})
	if user["email"] != "ada@example.com" || user["role"] != "user" {
		t.Fatalf("signup payload mismatch: %v", body)
	}

	recorder = fixture.postJSON("/auth/signup", `{"email":"ada@example.com","password":"correct-horse"}`, nil)
	if recorder.Code != http.StatusConflict {
		t.Fatalf("duplicate signup: expected 409, got %d", recorder.Code)
	}
	if body = decodeBody(t, recorder); body["error"] != "duplicate_identity" {
		t.Fatalf("expected duplicate_identity, got %v", body["error"])
	}

	recorder = fixture.postJSON("/auth/signup", `{"email":"bea@example.com","password":"short"}`, nil)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("short password signup: expected 400, got %d", recorder.Code)
	}

	recorder = fixture.postJSON("/auth/login", `{"email":"ada@example.com","password":"wrong-horse"}`, nil)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("bad login: expected 401, got %d", recorder.Code)
	}
	if body = decodeBody(t, recorder); body["error"] != "invalid_credentials" {
		t.Fatalf("expected invalid_credentials, got %v", body["error"])
	}

	recorder = fixture.postJSON("/auth/login", `{"email":"ada@example.com","password":"correct-horse"}`, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d (%s)", recorder.Code, recorder.Body.String())
	}
	body = decodeBody(t, recorder)
	accessToken, _ := body["token"].(string)
	refreshToken, _ := body["refreshToken"].(string)
	if accessToken == "" || refreshToken == "" {
		t.Fatalf("login must return a token pair: %v", body)
	}
	var accessCookie *http.Cookie
	for _, cookie := range recorder.Result().Cookies() {
		if cookie.Name == fixture.config.AccessCookieName {
			accessCookie = cookie
		}
	}
	if accessCookie == nil || accessCookie.Value != accessToken || !accessCookie.HttpOnly {
		t.Fatalf("login must set the http-only access cookie: %+v", accessCookie)
	}

	recorder = performRequest(fixture.router, http.MethodGet, "/guarded", bearer(accessToken))
	if recorder.Code != http.StatusOK {
		t.Fatalf("guarded with token: expected 200, got %d", recorder.Code)
	}

	recorder = fixture.postJSON("/auth/logout", `{"refreshToken":"`+refreshToken+`"}`, bearer(accessToken))
	if recorder.Code != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d (%s)", recorder.Code, recorder.Body.String())
	}
	cleared := false
	for _, cookie := range recorder.Result().Cookies() {
		if cookie.Name == fixture.config.AccessCookieName && cookie.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Fatalf("logout must clear the access cookie")
	}

	recorder = performRequest(fixture.router, http.MethodGet, "/guarded", bearer(accessToken))
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("guarded after logout: expected 401, got %d", recorder.Code)
	}
	if body = decodeBody(t, recorder); body["error"] != "token_revoked" {
		t.Fatalf("expected token_revoked, got %v", body["error"])
	}
}

func TestAuthRoutesRefresh(t *testing.T) {
	t.Parallel()

	fixture := newRoutesFixture(t)
	first := fixture.signUpAndIn(t, "ada@example.com", rbac.RoleUser)
	fixture.clock.Advance(time.Minute)

	recorder := fixture.postJSON("/auth/refresh", `{"refreshToken":"`+first.RefreshToken+`"}`, bearer(first.AccessToken))
	if recorder.Code != http.StatusOK {
		t.Fatalf("refresh: expected 200, got %d (%s)", recorder.Code, recorder.Body.String())
	}
	body := decodeBody(t, recorder)
	rotatedAccess, _ := body["token"].(string)
	if rotatedAccess == "" || rotatedAccess == first.AccessToken {
		t.Fatalf("refresh must mint a fresh access token: %v", body)
	}

	// The prior access token is dead, the rotated one lives.
	recorder = performRequest(fixture.router, http.MethodGet, "/guarded", bearer(first.AccessToken))
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("prior access token after refresh: expected 401, got %d", recorder.Code)
	}
	recorder = performRequest(fixture.router, http.MethodGet, "/guarded", bearer(rotatedAccess))
	if recorder.Code != http.StatusOK {
		t.Fatalf("rotated access token: expected 200, got %d", recorder.Code)
	}

	recorder = fixture.postJSON("/auth/refresh", `{"refreshToken":"`+first.RefreshToken+`"}`, nil)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("replayed refresh: expected 401, got %d", recorder.Code)
	}
	if body = decodeBody(t, recorder); body["error"] != "refresh_invalidated" {
		t.Fatalf("expected refresh_invalidated, got %v", body["error"])
	}

	recorder = fixture.postJSON("/auth/refresh", `{"refreshToken":""}`, nil)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("empty refresh token: expected 400, got %d", recorder.Code)
	}
}

func TestAuthRoutesRefreshExpired(t *testing.T) {
	t.Parallel()

	fixture := newRoutesFixture(t)
	result := fixture.signUpAndIn(t, "ada@example.com", rbac.RoleUser)
	fixture.clock.Advance(fixture.config.RefreshTTL + time.Hour)

	recorder := fixture.postJSON("/auth/refresh", `{"refreshToken":"`+result.RefreshToken+`"}`, nil)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
	if body := decodeBody(t, recorder); body["error"] != "refresh_expired" {
		t.Fatalf("expected refresh_expired, got %v", body["error"])
	}
}

func TestAuthRoutesPasswordReset(t *testing.T) {
	t.Parallel()

	fixture := newRoutesFixture(t)
	fixture.signUpAndIn(t, "ada@example.com", rbac.RoleUser)

	recorder := fixture.postJSON("/auth/password/reset-request", `{"email":"nobody@example.com"}`, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("unknown email must still answer 200, got %d", recorder.Code)
	}

	recorder = fixture.postJSON("/auth/password/reset-request", `{"email":"ada@example.com"}`, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("reset-request: expected 200, got %d", recorder.Code)
	}
	resetToken := fixture.mailer.lastToken()
	if resetToken == "" {
		t.Fatalf("reset token must reach the mailer")
	}

	recorder = fixture.postJSON("/auth/password/reset", `{"token":"`+resetToken+`","password":"tiny"}`, nil)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("short password: expected 400, got %d", recorder.Code)
	}

	recorder = fixture.postJSON("/auth/password/reset", `{"token":"`+resetToken+`","password":"battery-staple"}`, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("reset: expected 200, got %d (%s)", recorder.Code, recorder.Body.String())
	}

	recorder = fixture.postJSON("/auth/password/reset", `{"token":"`+resetToken+`","password":"battery-staple"}`, nil)
	if recorder.Code != http.StatusConflict {
		t.Fatalf("reused token: expected 409, got %d", recorder.Code)
	}
	if body := decodeBody(t, recorder); body["error"] != "reset_token_used" {
		t.Fatalf("expected reset_token_used, got %v", body["error"])
	}

	recorder = fixture.postJSON("/auth/password/reset", `{"token":"bogus","password":"battery-staple"}`, nil)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("bogus token: expected 401, got %d", recorder.Code)
	}
	if body := decodeBody(t, recorder); body["error"] != "reset_token_rejected" {
		t.Fatalf("expected reset_token_rejected, got %v", body["error"])
	}

	recorder = fixture.postJSON("/auth/login", `{"email":"ada@example.com","password":"battery-staple"}`, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("login with new password: expected 200, got %d", recorder.Code)
	}
}

func TestAuthRoutesPasswordChange(t *testing.T) {
	t.Parallel()

	fixture := newRoutesFixture(t)
	result := fixture.signUpAndIn(t, "ada@example.com", rbac.RoleUser)

	recorder := fixture.postJSON("/auth/password/change", `{"currentPassword":"wrong","newPassword":"battery-staple"}`, bearer(result.AccessToken))
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("wrong current: expected 401, got %d", recorder.Code)
	}
	if body := decodeBody(t, recorder); body["error"] != "current_password_incorrect" {
		t.Fatalf("expected current_password_incorrect, got %v", body["error"])
	}

	recorder = fixture.postJSON("/auth/password/change", `{"currentPassword":"correct-horse","newPassword":"battery-staple"}`, bearer(result.AccessToken))
	if recorder.Code != http.StatusOK {
		t.Fatalf("change: expected 200, got %d (%s)", recorder.Code, recorder.Body.String())
	}

	// The acting session stays usable after the change.
	recorder = performRequest(fixture.router, http.MethodGet, "/guarded", bearer(result.AccessToken))
	if recorder.Code != http.StatusOK {
		t.Fatalf("acting token after change: expected 200, got %d", recorder.Code)
	}

	recorder = fixture.postJSON("/auth/password/change", `{}`, nil)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated change: expected 401, got %d", recorder.Code)
	}
}

func TestAuthRoutesCSRFIssue(t *testing.T) {
	t.Parallel()

	fixture := newRoutesFixture(t)
	recorder := performRequest(fixture.router, http.MethodGet, "/auth/csrf", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("csrf issue: expected 200, got %d", recorder.Code)
	}
	body := decodeBody(t, recorder)
	if token, _ := body["csrfToken"].(string); token == "" {
		t.Fatalf("csrf payload must carry a token: %v", body)
	}
}

func TestAuthRoutesMalformedJSON(t *testing.T) {
	t.Parallel()

	fixture := newRoutesFixture(t)
	for _, path := range []string{"/auth/signup", "/auth/login", "/auth/refresh", "/auth/password/reset-request", "/auth/password/reset"} {
		recorder := fixture.postJSON(path, `{"email": `, nil)
		if recorder.Code != http.StatusBadRequest {
			t.Fatalf("%s with malformed body: expected 400, got %d", path, recorder.Code)
		}
		if body := decodeBody(t, recorder); body["error"] != "invalid_json" {
			t.Fatalf("%s: expected invalid_json, got %v", path, body["error"])
		}
	}
}
