// Package authtest provides helpers for exercising code that sits behind the
// authentication pipeline: fixed-outcome authenticators and HS256 token
// minting. Token minting here exists for tests and local development only.
package authtest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ggoodman/authguard/auth"
	"github.com/ggoodman/authguard/principals"
	"github.com/golang-jwt/jwt/v5"
)

// Fixed is an Authenticator that returns a preset outcome for requests that
// carry any Authorization header and Unauthenticated() for those that don't.
// Used for testing handlers without real tokens.
type Fixed struct {
	Context auth.AuthContext
	Err     error
}

// NewFixed returns a Fixed authenticator resolving every credential to p.
func NewFixed(p principals.Principal) *Fixed {
	return &Fixed{Context: auth.Authenticated(p)}
}

// Authenticate implements auth.Authenticator.
func (f *Fixed) Authenticate(ctx context.Context, authorization string) (auth.AuthContext, error) {
	if _, err := auth.ExtractBearer(authorization); errors.Is(err, auth.ErrNoCredential) {
		return auth.Unauthenticated(), nil
	}
	if f.Err != nil {
		return auth.AuthContext{}, f.Err
	}
	return f.Context, nil
}

// SignClaims signs claims with secret using HS256.
func SignClaims(secret string, claims map[string]any) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims(claims)).SignedString([]byte(secret))
}

// Token mints an HS256 token whose "id" claim is subject and which expires
// after lifetime.
func Token(secret string, subject any, lifetime time.Duration) (string, error) {
	now := time.Now()
	return SignClaims(secret, map[string]any{
		auth.DefaultSubjectClaim: subject,
		"iat":                    now.Unix(),
		"exp":                    now.Add(lifetime).Unix(),
	})
}

// MustToken is Token for tests.
func MustToken(tb testing.TB, secret string, subject any, lifetime time.Duration) string {
	tb.Helper()
	tok, err := Token(secret, subject, lifetime)
	if err != nil {
		tb.Fatalf("sign token: %v", err)
	}
	return tok
}

// Header returns the Authorization header value for tok.
func Header(tok string) string {
	return "Bearer " + tok
}
