package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v4"
)

var (
	// ErrTokenExpired signals that the bearer token has expired.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrTokenInvalid signals that the bearer token failed verification.
	ErrTokenInvalid = errors.New("auth: token invalid")
)

// Claims is the verified subset of token claims the checkout needs.
type Claims struct {
	Subject string
	Email   string
}

// TokenVerifier turns a bearer token into claims.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (Claims, error)
}

// TokenVerifierFunc adapts a function to TokenVerifier.
type TokenVerifierFunc func(ctx context.Context, token string) (Claims, error)

// Verify implements TokenVerifier.
func (f TokenVerifierFunc) Verify(ctx context.Context, token string) (Claims, error) {
	return f(ctx, token)
}

// JWTVerifier validates HS256 tokens signed with a shared secret.
type JWTVerifier struct {
	secret []byte
	issuer string
	parser *jwt.Parser
}

// NewJWTVerifier constructs a verifier. An empty issuer disables the issuer check.
func NewJWTVerifier(secret, issuer string) (*JWTVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: jwt secret is required")
	}
	return &JWTVerifier{
		secret: []byte(secret),
		issuer: strings.TrimSpace(issuer),
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
	}, nil
}

// Verify implements TokenVerifier.
func (v *JWTVerifier) Verify(_ context.Context, token string) (Claims, error) {
	claims := jwt.MapClaims{}
	_, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if v.issuer != "" && !claims.VerifyIssuer(v.issuer, true) {
		return Claims{}, fmt.Errorf("%w: unexpected issuer", ErrTokenInvalid)
	}
	out := claimsFromMap(claims)
	if out.Subject == "" {
		return Claims{}, fmt.Errorf("%w: subject missing", ErrTokenInvalid)
	}
	return out, nil
}

// PassthroughVerifier trusts the backend to authorise the token. It reads the subject from
// an unverified JWT or, for opaque tokens, derives a stable pseudonymous subject.
type PassthroughVerifier struct {
	parser *jwt.Parser
}

// NewPassthroughVerifier constructs a PassthroughVerifier.
func NewPassthroughVerifier() *PassthroughVerifier {
	return &PassthroughVerifier{parser: jwt.NewParser()}
}

// Verify implements TokenVerifier.
func (v *PassthroughVerifier) Verify(_ context.Context, token string) (Claims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := v.parser.ParseUnverified(token, claims); err == nil {
		if out := claimsFromMap(claims); out.Subject != "" {
			return out, nil
		}
	}
	sum := sha256.Sum256([]byte(token))
	return Claims{Subject: "tok_" + hex.EncodeToString(sum[:12])}, nil
}

func claimsFromMap(claims jwt.MapClaims) Claims {
	out := Claims{}
	if sub, ok := claims["sub"].(string); ok {
		out.Subject = strings.TrimSpace(sub)
	}
	if email, ok := claims["email"].(string); ok {
		out.Email = strings.TrimSpace(email)
	}
	return out
}
