package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/edupoint/portal/internal/rbac"
)

func TestJWTRoundTrip(t *testing.T) {
	a := NewAuthService("test-secret")

	tok, err := a.IssueJWT("user-1", "teacher")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	c, err := a.Parse(tok)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Sub != "user-1" || c.Role != "teacher" {
		t.Fatalf("claims = %+v", c)
	}
}

func TestJWTWrongSecret(t *testing.T) {
	tok, err := NewAuthService("secret-a").IssueJWT("user-1", "student")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := NewAuthService("secret-b").Parse(tok); err == nil {
		t.Fatalf("token verified under the wrong secret")
	}
}

func TestJWTMiddleware(t *testing.T) {
	a := NewAuthService("test-secret")
	tok, err := a.IssueJWT("user-1", "student")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	var gotSub, gotRole string
	h := JWTMiddleware(a)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSub = rbac.SubjectFromContext(r.Context())
		gotRole = rbac.RoleFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/exams", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
	if gotSub != "user-1" || gotRole != "student" {
		t.Fatalf("context = %s/%s", gotSub, gotRole)
	}

	for _, header := range []string{"", "Bearer not-a-token", "Basic abc"} {
		req := httptest.NewRequest(http.MethodGet, "/exams", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("header %q: status = %d, want 401", header, rec.Code)
		}
	}
}
