package jwtauth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthorized indicates that a token failed verification or carries a
// payload the pipeline cannot use. Wrapped causes are for logs only.
var ErrUnauthorized = errors.New("jwtauth: unauthorized")

// Config controls how tokens are verified. Exactly one key source is used,
// chosen in this order: DiscoveryIssuer, JWKSURL, Secret.
type Config struct {
	// Secret is the shared HMAC signing secret.
	Secret []byte
	// JWKSURL points at a JSON Web Key Set used for asymmetric algorithms.
	// Keys are refreshed in the background.
	JWKSURL string
	// DiscoveryIssuer, when set, is resolved through OpenID Connect discovery
	// to find the issuer's jwks_uri.
	DiscoveryIssuer string

	// Issuer, if set, must match the "iss" claim.
	Issuer string
	// ExpectedAudiences, if non-empty, must intersect the "aud" claim.
	ExpectedAudiences []string
	AllowedAlgs       []string
	Leeway            time.Duration
	// MaxAge, if positive, rejects tokens whose "iat" is older than MaxAge.
	MaxAge time.Duration
}

// DefaultConfig returns a Config accepting HS256 with no clock leeway.
func DefaultConfig() *Config {
	return &Config{
		AllowedAlgs: []string{"HS256"},
	}
}

// Verifier checks the integrity and validity window of a token. It returns
// nil or an error wrapping ErrUnauthorized; it never returns claims.
type Verifier interface {
	Verify(ctx context.Context, tok string) error
}

// New builds the Verifier selected by cfg.
func New(ctx context.Context, cfg *Config) (Verifier, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	switch {
	case cfg.DiscoveryIssuer != "":
		return NewFromDiscovery(ctx, cfg)
	case cfg.JWKSURL != "":
		return NewJWKS(ctx, cfg)
	default:
		return NewSecret(cfg)
	}
}

type verifier struct {
	cfg     Config
	parser  *jwt.Parser
	keyfunc jwt.Keyfunc
}

func newVerifier(cfg *Config, keyfunc jwt.Keyfunc) (*verifier, error) {
	if len(cfg.AllowedAlgs) == 0 {
		return nil, errors.New("at least one allowed algorithm is required")
	}
	for _, alg := range cfg.AllowedAlgs {
		if strings.EqualFold(alg, "none") {
			return nil, errors.New(`algorithm "none" is never allowed`)
		}
	}
	c := *cfg
	c.AllowedAlgs = append([]string(nil), cfg.AllowedAlgs...)
	c.ExpectedAudiences = append([]string(nil), cfg.ExpectedAudiences...)
	c.Secret = append([]byte(nil), cfg.Secret...)

	// If exactly one expected audience is configured we can leverage the
	// parser's built-in audience enforcement. If multiple are present we
	// perform intersection logic after parsing.
	opts := []jwt.ParserOption{
		jwt.WithValidMethods(c.AllowedAlgs),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(c.Leeway),
	}
	if c.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.Issuer))
	}
	if len(c.ExpectedAudiences) == 1 {
		opts = append(opts, jwt.WithAudience(c.ExpectedAudiences[0]))
	}

	allowed := c.AllowedAlgs
	return &verifier{
		cfg:    c,
		parser: jwt.NewParser(opts...),
		keyfunc: func(t *jwt.Token) (any, error) {
			// Enforce allowed algs
			if alg := t.Method.Alg(); !slices.Contains(allowed, alg) {
				return nil, fmt.Errorf("disallowed alg: %s", alg)
			}
			return keyfunc(t)
		},
	}, nil
}

func (v *verifier) Verify(ctx context.Context, tok string) error {
	if tok == "" {
		return fmt.Errorf("%w: empty token", ErrUnauthorized)
	}

	parsed, err := v.parser.Parse(tok, v.keyfunc)
	if err != nil {
		return fmt.Errorf("%w: token parse/verify failed: %v", ErrUnauthorized, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return fmt.Errorf("%w: invalid claims type", ErrUnauthorized)
	}

	if len(v.cfg.ExpectedAudiences) > 1 && !audIntersects(claims["aud"], v.cfg.ExpectedAudiences) {
		return fmt.Errorf("%w: audience mismatch", ErrUnauthorized)
	}

	if v.cfg.MaxAge > 0 {
		iat, err := claims.GetIssuedAt()
		if err != nil {
			return fmt.Errorf("%w: invalid iat: %v", ErrUnauthorized, err)
		}
		if iat != nil && time.Since(iat.Time) > v.cfg.MaxAge+v.cfg.Leeway {
			return fmt.Errorf("%w: token older than max age", ErrUnauthorized)
		}
	}

	return nil
}

func audIntersects(aud any, wants []string) bool {
	wantSet := map[string]struct{}{}
	for _, w := range wants {
		wantSet[w] = struct{}{}
	}
	switch v := aud.(type) {
	case string:
		_, ok := wantSet[v]
		return ok
	case []any:
		for _, e := range v {
			if s, ok := e.(string); ok {
				if _, ok2 := wantSet[s]; ok2 {
					return true
				}
			}
		}
	case []string:
		for _, s := range v {
			if _, ok := wantSet[s]; ok {
				return true
			}
		}
	}
	return false
}
