package auth

import (
	"fmt"
	"strings"
)

const bearerScheme = "bearer"

// ExtractBearer returns the token from an Authorization header value of the
// form "Bearer <token>". The scheme is matched case-insensitively.
//
// An empty or blank header yields ErrNoCredential. Any other value that is not
// a well-formed bearer credential yields an error wrapping ErrUnauthorized.
func ExtractBearer(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", ErrNoCredential
	}

	scheme, tok, ok := strings.Cut(header, " ")
	if !ok {
		return "", fmt.Errorf("%w: malformed authorization header", ErrUnauthorized)
	}
	if !strings.EqualFold(scheme, bearerScheme) {
		return "", fmt.Errorf("%w: unsupported authorization scheme", ErrUnauthorized)
	}
	tok = strings.TrimSpace(tok)
	if tok == "" || strings.ContainsAny(tok, " \t") {
		return "", fmt.Errorf("%w: malformed bearer token", ErrUnauthorized)
	}
	return tok, nil
}
