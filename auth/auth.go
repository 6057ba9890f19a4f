package auth

import (
	"context"
	"errors"
)

// ErrUnauthorized indicates the request carried a credential that could not
// be accepted: malformed header, bad signature, expired token, unusable
// payload or unknown principal. Callers must not reveal which.
var ErrUnauthorized = errors.New("unauthorized")

// ErrInternal indicates authentication could not complete for reasons that
// say nothing about the credential (store outage, timeout, misconfiguration).
var ErrInternal = errors.New("internal error")

// ErrNoCredential is returned by ExtractBearer when the request carries no
// Authorization header. It is not a failure: such requests proceed as
// unauthenticated.
var ErrNoCredential = errors.New("no credential")

// Authenticator turns the raw Authorization header of one request into an
// AuthContext. An absent header yields Unauthenticated() and a nil error.
// Implementations must be safe for concurrent use and keep no per-request
// state.
type Authenticator interface {
	Authenticate(ctx context.Context, authorization string) (AuthContext, error)
}

// AuthenticatorFunc adapts a function to the Authenticator interface.
type AuthenticatorFunc func(ctx context.Context, authorization string) (AuthContext, error)

func (f AuthenticatorFunc) Authenticate(ctx context.Context, authorization string) (AuthContext, error) {
	return f(ctx, authorization)
}
