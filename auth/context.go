package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/ggoodman/authguard/principals"
)

// State is the authentication state of a single request.
type State uint8

const (
	// StateUnset means authentication has not run for the request.
	StateUnset State = iota
	StateUnauthenticated
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateUnset:
		return "unset"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// AuthContext is the immutable outcome of authenticating one request. The
// zero value is StateUnset.
type AuthContext struct {
	state     State
	principal principals.Principal
}

// Unauthenticated returns the outcome for a request without credentials.
func Unauthenticated() AuthContext {
	return AuthContext{state: StateUnauthenticated}
}

// Authenticated returns the outcome for a request resolved to p.
func Authenticated(p principals.Principal) AuthContext {
	return AuthContext{state: StateAuthenticated, principal: p}
}

func (a AuthContext) State() State { return a.state }

func (a AuthContext) IsAuthenticated() bool { return a.state == StateAuthenticated }

// Principal returns a copy of the resolved principal, if any.
func (a AuthContext) Principal() (principals.Principal, bool) {
	if a.state != StateAuthenticated {
		return principals.Principal{}, false
	}
	return a.principal, true
}

// ErrAuthContextSealed is returned when a request context already carries an
// AuthContext. Authentication outcomes are written once per request.
var ErrAuthContextSealed = errors.New("auth: authentication context already set")

type authContextKey struct{}

// WithAuthContext attaches ac to ctx. It fails if ac is unset or if ctx
// already carries an outcome.
func WithAuthContext(ctx context.Context, ac AuthContext) (context.Context, error) {
	if ac.state == StateUnset {
		return ctx, errors.New("auth: cannot attach an unset authentication context")
	}
	if _, ok := ctx.Value(authContextKey{}).(AuthContext); ok {
		return ctx, ErrAuthContextSealed
	}
	return context.WithValue(ctx, authContextKey{}, ac), nil
}

// FromContext returns the outcome attached to ctx, or the unset zero value.
func FromContext(ctx context.Context) AuthContext {
	ac, _ := ctx.Value(authContextKey{}).(AuthContext)
	return ac
}

// PrincipalFromContext is shorthand for FromContext(ctx).Principal().
func PrincipalFromContext(ctx context.Context) (principals.Principal, bool) {
	return FromContext(ctx).Principal()
}

// Require is the guard check for protected operations: nil when ac is
// authenticated, ErrUnauthorized otherwise. It performs no I/O.
func Require(ac AuthContext) error {
	if ac.IsAuthenticated() {
		return nil
	}
	return ErrUnauthorized
}

// RequireContext applies Require to the outcome carried by ctx.
func RequireContext(ctx context.Context) error {
	return Require(FromContext(ctx))
}
