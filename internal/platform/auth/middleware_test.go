package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

func signHS256(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestRequireAuthStoresIdentity(t *testing.T) {
	verifier := TokenVerifierFunc(func(_ context.Context, token string) (Claims, error) {
		if token != "good-token" {
			t.Fatalf("unexpected token %q", token)
		}
		return Claims{Subject: "user-1", Email: "a@example.com"}, nil
	})
	authn := NewAuthenticator(verifier)

	called := false
	handler := authn.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Fatalf("expected identity in context")
		}
		if identity.Subject != "user-1" || identity.Token != "good-token" || identity.Email != "a@example.com" {
			t.Fatalf("unexpected identity %+v", identity)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer good-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !called || rec.Code != http.StatusNoContent {
		t.Fatalf("expected handler to run, got status %d", rec.Code)
	}
}

func TestRequireAuthRejects(t *testing.T) {
	cases := []struct {
		name     string
		header   string
		err      error
		wantCode string
	}{
		{name: "missing header", header: "", wantCode: "unauthenticated"},
		{name: "wrong scheme", header: "Basic abc", wantCode: "unauthenticated"},
		{name: "expired", header: "Bearer t", err: ErrTokenExpired, wantCode: "token_expired"},
		{name: "invalid", header: "Bearer t", err: errors.New("bad signature"), wantCode: "invalid_token"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			authn := NewAuthenticator(TokenVerifierFunc(func(context.Context, string) (Claims, error) {
				return Claims{}, tc.err
			}))
			handler := authn.RequireAuth(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				t.Fatalf("handler must not run")
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rec.Code)
			}
			var body map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body["error"] != tc.wantCode {
				t.Fatalf("expected error %q, got %v", tc.wantCode, body["error"])
			}
		})
	}
}

func TestJWTVerifier(t *testing.T) {
	verifier, err := NewJWTVerifier("s3cret", "shop")
	if err != nil {
		t.Fatalf("NewJWTVerifier: %v", err)
	}

	valid := signHS256(t, "s3cret", jwt.MapClaims{"sub": "user-9", "email": "u@example.com", "iss": "shop", "exp": time.Now().Add(time.Hour).Unix()})
	claims, err := verifier.Verify(context.Background(), valid)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Subject != "user-9" || claims.Email != "u@example.com" {
		t.Fatalf("unexpected claims %+v", claims)
	}

	expired := signHS256(t, "s3cret", jwt.MapClaims{"sub": "user-9", "iss": "shop", "exp": time.Now().Add(-time.Hour).Unix()})
	if _, err := verifier.Verify(context.Background(), expired); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}

	forged := signHS256(t, "other", jwt.MapClaims{"sub": "user-9", "iss": "shop"})
	if _, err := verifier.Verify(context.Background(), forged); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for wrong key, got %v", err)
	}

	wrongIssuer := signHS256(t, "s3cret", jwt.MapClaims{"sub": "user-9", "iss": "elsewhere"})
	if _, err := verifier.Verify(context.Background(), wrongIssuer); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for wrong issuer, got %v", err)
	}
}

func TestPassthroughVerifier(t *testing.T) {
	verifier := NewPassthroughVerifier()

	token := signHS256(t, "unknown-to-us", jwt.MapClaims{"sub": "backend-user"})
	claims, err := verifier.Verify(context.Background(), token)
	if err != nil || claims.Subject != "backend-user" {
		t.Fatalf("expected subject from unverified jwt, got %+v (%v)", claims, err)
	}

	first, _ := verifier.Verify(context.Background(), "opaque-session-token")
	second, _ := verifier.Verify(context.Background(), "opaque-session-token")
	if first.Subject == "" || first.Subject != second.Subject || !strings.HasPrefix(first.Subject, "tok_") {
		t.Fatalf("expected stable pseudonymous subject, got %q and %q", first.Subject, second.Subject)
	}
	other, _ := verifier.Verify(context.Background(), "another-token")
	if other.Subject == first.Subject {
		t.Fatalf("distinct tokens must map to distinct subjects")
	}
}
