package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/fashionfield/checkout/internal/platform/httpx"
	"github.com/fashionfield/checkout/internal/platform/requestctx"
)

const defaultVerifyTimeout = 5 * time.Second

// Authenticator wires token verification into HTTP middleware.
type Authenticator struct {
	verifier TokenVerifier
	timeout  time.Duration
}

// Option customises Authenticator behaviour.
type Option func(*Authenticator)

// WithVerificationTimeout sets the timeout used when verifying tokens.
func WithVerificationTimeout(d time.Duration) Option {
	return func(a *Authenticator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// NewAuthenticator constructs an Authenticator for middleware composition.
func NewAuthenticator(verifier TokenVerifier, opts ...Option) *Authenticator {
	a := &Authenticator{verifier: verifier, timeout: defaultVerifyTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// RequireAuth rejects requests without a valid bearer token and stores the identity on the context.
func (a *Authenticator) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := extractBearerToken(r.Header.Get("Authorization"))
		if !ok {
			respondAuthError(r.Context(), w, "unauthenticated", "authorization header missing or invalid")
			return
		}
		if a == nil || a.verifier == nil {
			respondAuthError(r.Context(), w, "unauthenticated", "authorization service unavailable")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), a.timeout)
		claims, err := a.verifier.Verify(ctx, token)
		cancel()
		switch {
		case errors.Is(err, ErrTokenExpired):
			respondAuthError(r.Context(), w, "token_expired", "bearer token expired")
			return
		case err != nil:
			respondAuthError(r.Context(), w, "invalid_token", "bearer token verification failed")
			return
		case claims.Subject == "":
			respondAuthError(r.Context(), w, "invalid_token", "bearer token has no subject")
			return
		}

		requestctx.SetSubject(r.Context(), claims.Subject)
		identity := &Identity{Subject: claims.Subject, Email: claims.Email, Token: token}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

func extractBearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func respondAuthError(ctx context.Context, w http.ResponseWriter, code, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="checkout"`)
	httpx.WriteError(ctx, w, httpx.NewError(code, message, http.StatusUnauthorized))
}
