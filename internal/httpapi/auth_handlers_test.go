package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func postJSON(t *testing.T, handler http.Handler, path, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestLoginReturnsTokenPair(t *testing.T) {
	env := newTestEnv(t)

	rr := postJSON(t, env.handler, "/v1/auth/login",
		`{"email":"ada@example.com","password":"s3cret-pass"}`, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp tokenPairResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.TokenType != "bearer" {
		t.Fatalf("unexpected token_type: %s", resp.TokenType)
	}
	if resp.ExpiresIn != 900 {
		t.Fatalf("expires_in = %d, want 900", resp.ExpiresIn)
	}
	if resp.AccessToken == "" || resp.RefreshToken == "" {
		t.Fatal("both tokens must be present")
	}
	if _, err := env.tokens.ValidateAccessToken(resp.AccessToken); err != nil {
		t.Fatalf("issued access token invalid: %v", err)
	}
	if _, err := env.tokens.ValidateRefreshToken(resp.RefreshToken); err != nil {
		t.Fatalf("issued refresh token invalid: %v", err)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	env := newTestEnv(t)

	rr := postJSON(t, env.handler, "/v1/auth/login",
		`{"email":"ada@example.com","password":"wrong"}`, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if code := errorCode(t, rr.Body.Bytes()); code != CodeInvalidCredentials {
		t.Fatalf("expected %s, got %s", CodeInvalidCredentials, code)
	}
}

func TestRefreshFlow(t *testing.T) {
	env := newTestEnv(t)

	login := postJSON(t, env.handler, "/v1/auth/login",
		`{"email":"ada@example.com","password":"s3cret-pass"}`, nil)
	var pair tokenPairResponse
	if err := json.Unmarshal(login.Body.Bytes(), &pair); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rr := postJSON(t, env.handler, "/v1/auth/refresh",
		`{"refresh_token":"`+pair.RefreshToken+`"}`, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp accessTokenResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, err := env.tokens.ValidateAccessToken(resp.AccessToken); err != nil {
		t.Fatalf("refreshed token invalid: %v", err)
	}
}

func TestLogoutThenRefreshIsRevoked(t *testing.T) {
	env := newTestEnv(t)

	login := postJSON(t, env.handler, "/v1/auth/login",
		`{"email":"ada@example.com","password":"s3cret-pass"}`, nil)
	var pair tokenPairResponse
	if err := json.Unmarshal(login.Body.Bytes(), &pair); err != nil {
		t.Fatalf("decode: %v", err)
	}

	logout := postJSON(t, env.handler, "/v1/auth/logout",
		`{"refresh_token":"`+pair.RefreshToken+`"}`, nil)
	if logout.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", logout.Code)
	}

	rr := postJSON(t, env.handler, "/v1/auth/refresh",
		`{"refresh_token":"`+pair.RefreshToken+`"}`, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if code := errorCode(t, rr.Body.Bytes()); code != CodeTokenRevoked {
		t.Fatalf("expected %s, got %s", CodeTokenRevoked, code)
	}

	// Logout does not revoke the access token.
	me := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	me.Header.Set(authHeader, bearer+pair.AccessToken)
	rrMe := httptest.NewRecorder()
	env.handler.ServeHTTP(rrMe, me)
	if rrMe.Code != http.StatusOK {
		t.Fatalf("access token must survive logout, got %d", rrMe.Code)
	}
}

func TestRevokeRequiresPermission(t *testing.T) {
	env := newTestEnv(t)

	header := http.Header{}
	header.Set(authHeader, bearer+env.accessToken(t, "ada@example.com"))
	rr := postJSON(t, env.handler, "/v1/auth/revoke", `{"access_token":"x"}`, header)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Required string `json:"required_permission"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Required == "" {
		t.Fatal("403 must name the required permission")
	}
}

func TestAdminRevokesAccessToken(t *testing.T) {
	env := newTestEnv(t)

	victim := env.accessToken(t, "ada@example.com")
	header := http.Header{}
	header.Set(authHeader, bearer+env.accessToken(t, "root@example.com"))

	rr := postJSON(t, env.handler, "/v1/auth/revoke",
		`{"access_token":"`+victim+`"}`, header)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	req.Header.Set(authHeader, bearer+victim)
	rr2 := httptest.NewRecorder()
	env.handler.ServeHTTP(rr2, req)
	if code := errorCode(t, rr2.Body.Bytes()); code != CodeTokenRevoked {
		t.Fatalf("expected %s after revocation, got %s", CodeTokenRevoked, code)
	}
}

func TestContextEndpointReturnsResolvedScope(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/context", nil)
	req.Header.Set(authHeader, bearer+env.accessToken(t, "ada@example.com"))
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		RequestID string `json:"request_id"`
		Email     string `json:"email"`
		Degraded  bool   `json:"degraded"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Email != "ada@example.com" || resp.RequestID == "" {
		t.Fatalf("unexpected context: %+v", resp)
	}
	if resp.Degraded {
		t.Fatal("healthy stores must not yield a degraded context")
	}
}

func TestRBACMutationInvalidatesPermissions(t *testing.T) {
	env := newTestEnv(t)

	userHeader := http.Header{}
	userHeader.Set(authHeader, bearer+env.accessToken(t, "ada@example.com"))

	// Denied before the grant.
	rr := postJSON(t, env.handler, "/v1/auth/revoke", `{"access_token":"x"}`, userHeader)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 before grant, got %d", rr.Code)
	}

	// Admin assigns a role carrying the permission; the stub store reflects
	// the new grant and the resolver must drop its cached denial.
	env.roles.perms["u1"] = []string{"auth.tokens.revoke"}
	adminHeader := http.Header{}
	adminHeader.Set(authHeader, bearer+env.accessToken(t, "root@example.com"))
	assign := postJSON(t, env.handler, "/v1/roles/revoker/assign", `{"user_id":"u1"}`, adminHeader)
	if assign.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", assign.Code, assign.Body.String())
	}

	victim := env.accessToken(t, "root@example.com")
	rr2 := postJSON(t, env.handler, "/v1/auth/revoke", `{"access_token":"`+victim+`"}`, userHeader)
	if rr2.Code != http.StatusOK {
		t.Fatalf("grant must be visible immediately after assignment, got %d: %s", rr2.Code, rr2.Body.String())
	}
}
