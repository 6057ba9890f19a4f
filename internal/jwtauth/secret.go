package jwtauth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// NewSecret constructs a Verifier for HMAC tokens signed with cfg.Secret.
func NewSecret(cfg *Config) (Verifier, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if len(cfg.Secret) == 0 {
		return nil, errors.New("signing secret is required")
	}
	for _, alg := range cfg.AllowedAlgs {
		if _, ok := jwt.GetSigningMethod(alg).(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("algorithm %q cannot be used with a shared secret", alg)
		}
	}
	secret := append([]byte(nil), cfg.Secret...)
	return newVerifier(cfg, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %T", t.Method)
		}
		return secret, nil
	})
}
