package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	firebaseauth "firebase.google.com/go/v4/auth"
)

type stubTokenVerifier struct {
	token    *firebaseauth.Token
	err      error
	received string
}

func (s *stubTokenVerifier) VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error) {
	s.received = idToken
	if s.err != nil {
		return nil, s.err
	}
	return s.token, nil
}

func serve(t *testing.T, authn *Authenticator, header string, roles ...string) (*httptest.ResponseRecorder, *Identity) {
	t.Helper()
	var seen *Identity
	handler := authn.RequireFirebaseAuth(roles...)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Fatalf("expected identity in context")
		}
		seen = identity
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr, seen
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	code, _ := body["error"].(string)
	return code
}

func TestRequireFirebaseAuth_AllowsValidToken(t *testing.T) {
	verifier := &stubTokenVerifier{token: &firebaseauth.Token{
		UID: "uid-123",
		Claims: map[string]interface{}{
			"role":  []interface{}{"Staff", "admin", "staff"},
			"email": " ops@example.com ",
		},
	}}

	rr, identity := serve(t, NewAuthenticator(verifier), "Bearer token-value", RoleStaff)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if verifier.received != "token-value" {
		t.Fatalf("expected verifier to receive token-value, got %q", verifier.received)
	}
	if identity.UID != "uid-123" || identity.Email != "ops@example.com" {
		t.Fatalf("unexpected identity %+v", identity)
	}
	if len(identity.Roles) != 2 || !identity.HasRole(RoleAdmin) || !identity.HasAnyRole("none", RoleStaff) {
		t.Fatalf("unexpected roles %v", identity.Roles)
	}
}

func TestRequireFirebaseAuth_FallbackRole(t *testing.T) {
	verifier := &stubTokenVerifier{token: &firebaseauth.Token{UID: "uid-1", Claims: map[string]interface{}{}}}

	rr, identity := serve(t, NewAuthenticator(verifier), "bearer abc", RoleUser)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if !identity.HasRole(RoleUser) {
		t.Fatalf("expected fallback user role, got %v", identity.Roles)
	}
}

func TestRequireFirebaseAuth_RoleMapClaim(t *testing.T) {
	verifier := &stubTokenVerifier{token: &firebaseauth.Token{UID: "uid-2", Claims: map[string]interface{}{
		"roles": map[string]interface{}{"admin": true, "staff": false},
	}}}

	rr, identity := serve(t, NewAuthenticator(verifier, WithRoleClaim("roles")), "Bearer abc", RoleAdmin)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if identity.HasRole(RoleStaff) {
		t.Fatalf("disabled role flag must not be granted: %v", identity.Roles)
	}
}

func TestRequireFirebaseAuth_Rejections(t *testing.T) {
	cases := []struct {
		name     string
		verifier *stubTokenVerifier
		opts     []Option
		header   string
		roles    []string
		status   int
		code     string
	}{
		{
			name:     "missing header",
			verifier: &stubTokenVerifier{},
			status:   http.StatusUnauthorized,
			code:     "unauthenticated",
		},
		{
			name:     "wrong scheme",
			verifier: &stubTokenVerifier{},
			header:   "Basic abc",
			status:   http.StatusUnauthorized,
			code:     "unauthenticated",
		},
		{
			name:     "expired",
			verifier: &stubTokenVerifier{err: ErrTokenExpired},
			header:   "Bearer abc",
			status:   http.StatusUnauthorized,
			code:     "token_expired",
		},
		{
			name:     "invalid",
			verifier: &stubTokenVerifier{err: ErrTokenInvalid},
			header:   "Bearer abc",
			status:   http.StatusUnauthorized,
			code:     "invalid_token",
		},
		{
			name:     "insufficient role",
			verifier: &stubTokenVerifier{token: &firebaseauth.Token{UID: "u", Claims: map[string]interface{}{"role": "user"}}},
			header:   "Bearer abc",
			roles:    []string{RoleAdmin},
			status:   http.StatusForbidden,
			code:     "insufficient_role",
		},
		{
			name:     "no role without fallback",
			verifier: &stubTokenVerifier{token: &firebaseauth.Token{UID: "u", Claims: map[string]interface{}{}}},
			opts:     []Option{WithFallbackRole("")},
			header:   "Bearer abc",
			status:   http.StatusForbidden,
			code:     "missing_role",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := NewAuthenticator(tc.verifier, tc.opts...).RequireFirebaseAuth(tc.roles...)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatalf("handler must not run")
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, rr.Code)
			}
			if code := errorCode(t, rr); code != tc.code {
				t.Fatalf("expected error code %q, got %q", tc.code, code)
			}
		})
	}
}

func TestIdentityFromContext_Missing(t *testing.T) {
	if _, ok := IdentityFromContext(context.Background()); ok {
		t.Fatalf("expected no identity")
	}
	var nilIdentity *Identity
	if nilIdentity.HasRole(RoleUser) {
		t.Fatalf("nil identity must not have roles")
	}
}
