package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func testClaims() Claims {
	return Claims{ID: "user-1", GitHubID: "42", Username: "octocat"}
}

func TestVerifyValidToken(t *testing.T) {
	v := NewVerifier("s3cret")
	tok, err := v.Sign(testClaims(), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	claims, err := v.Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.ID != "user-1" || claims.Username != "octocat" || claims.GitHubID != "42" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestVerifyRejects(t *testing.T) {
	v := NewVerifier("s3cret")
	expired, _ := v.Sign(testClaims(), -time.Minute)
	wrongKey, _ := NewVerifier("other").Sign(testClaims(), time.Hour)
	noID, _ := v.Sign(Claims{Username: "x"}, time.Hour)
	noExp, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, testClaims()).SignedString([]byte("s3cret"))
	hs512, _ := jwt.NewWithClaims(jwt.SigningMethodHS512, &Claims{
		ID:               "user-1",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString([]byte("s3cret"))

	tests := []struct {
		name  string
		token string
	}{
		{"expired", expired},
		{"wrong key", wrongKey},
		{"no caller id", noID},
		{"no expiry", noExp},
		{"other algorithm", hs512},
		{"garbage", "not.a.jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := v.Verify(tt.token); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestTokenFromRequest(t *testing.T) {
	tests := []struct {
		name   string
		header string
		query  string
		want   string
	}{
		{"bearer", "Bearer abc", "", "abc"},
		{"lowercase scheme", "bearer abc", "", "abc"},
		{"basic ignored", "Basic abc", "xyz", ""},
		{"query fallback", "", "xyz", "xyz"},
		{"nothing", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/ws"
			if tt.query != "" {
				target += "?token=" + tt.query
			}
			r := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			if got := TokenFromRequest(r); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMiddleware(t *testing.T) {
	v := NewVerifier("s3cret")
	var seen *Claims
	h := v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = CallerFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	good, _ := v.Sign(testClaims(), time.Hour)

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{"missing", "", http.StatusUnauthorized, "Access token required"},
		{"invalid", "Bearer nope", http.StatusForbidden, "Invalid or expired token"},
		{"valid", "Bearer " + good, http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			r := httptest.NewRequest(http.MethodPost, "/api/deploy", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, r)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body = %q", rec.Body.String())
			}
			if tt.wantStatus == http.StatusOK && (seen == nil || seen.ID != "user-1") {
				t.Errorf("caller not in context: %+v", seen)
			}
		})
	}
}
