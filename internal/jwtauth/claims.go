package jwtauth

import (
	"fmt"

	"github.com/ggoodman/authguard/principals"
	"github.com/golang-jwt/jwt/v5"
)

var decodeParser = jwt.NewParser(jwt.WithJSONNumber())

// DecodeClaims decodes the payload of a token without checking its
// signature. Callers must have verified the token first.
func DecodeClaims(tok string) (map[string]any, error) {
	claims := jwt.MapClaims{}
	if _, _, err := decodeParser.ParseUnverified(tok, claims); err != nil {
		return nil, fmt.Errorf("%w: decode payload: %v", ErrUnauthorized, err)
	}
	return claims, nil
}

// SubjectFromClaims extracts the principal ID carried under name.
func SubjectFromClaims(claims map[string]any, name string) (principals.ID, error) {
	if claims == nil {
		return "", fmt.Errorf("%w: missing claims", ErrUnauthorized)
	}
	v, ok := claims[name]
	if !ok {
		return "", fmt.Errorf("%w: missing %s claim", ErrUnauthorized, name)
	}
	id, err := principals.ParseID(v)
	if err != nil {
		return "", fmt.Errorf("%w: invalid %s claim: %v", ErrUnauthorized, name, err)
	}
	return id, nil
}
