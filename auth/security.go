package auth

import (
	"errors"
	"slices"
	"time"

	"github.com/ggoodman/authguard/internal/jwtauth"
)

// DefaultSecret is the signing secret assumed when none is configured. It is
// public knowledge and only acceptable for local development; the config
// package refuses to fall back to it in production.
const DefaultSecret = "secret"

const (
	DefaultTokenLifetime = 5 * time.Minute
	DefaultSubjectClaim  = "id"
)

// Config is the process-wide, immutable description of how bearer tokens are
// verified and resolved. Build one at startup, then hand it to NewGuard.
//
// Key material comes from exactly one source: DiscoveryIssuer (OIDC
// discovery), JWKSURL, or Secret (shared HMAC secret, the default).
type Config struct {
	Secret        string
	TokenLifetime time.Duration // default 5m; caps token age in shared-secret mode
	AllowedAlgs   []string      // default: ["HS256"] in shared-secret mode, ["RS256"] otherwise
	Leeway        time.Duration // clock skew tolerance (default 0)
	SubjectClaim  string        // default "id"

	Issuer    string   // optional "iss" enforcement
	Audiences []string // optional "aud" enforcement (any match)

	JWKSURL         string
	DiscoveryIssuer string
}

// Normalize fills defaults without mutating caller copies elsewhere.
func (c *Config) Normalize() {
	if c.TokenLifetime == 0 {
		c.TokenLifetime = DefaultTokenLifetime
	}
	if c.SubjectClaim == "" {
		c.SubjectClaim = DefaultSubjectClaim
	}
	if len(c.AllowedAlgs) == 0 {
		if c.usesSharedSecret() {
			c.AllowedAlgs = []string{"HS256"}
		} else {
			c.AllowedAlgs = []string{"RS256"}
		}
	}
}

// Validate returns an error if required invariants are not met.
func (c Config) Validate() error {
	if c.usesSharedSecret() && c.Secret == "" {
		return errors.New("security: signing secret required")
	}
	if c.TokenLifetime < 0 {
		return errors.New("security: token lifetime must not be negative")
	}
	if c.Leeway < 0 {
		return errors.New("security: leeway must not be negative")
	}
	if slices.Contains(c.AllowedAlgs, "none") {
		return errors.New(`security: algorithm "none" is never allowed`)
	}
	for _, a := range c.Audiences {
		if a == "" {
			return errors.New("security: empty audience entry")
		}
	}
	return nil
}

// Copy returns a deep copy safe for mutation by the caller.
func (c Config) Copy() Config {
	dup := c
	dup.Audiences = append([]string(nil), c.Audiences...)
	dup.AllowedAlgs = append([]string(nil), c.AllowedAlgs...)
	return dup
}

func (c Config) usesSharedSecret() bool {
	return c.DiscoveryIssuer == "" && c.JWKSURL == ""
}

func (c Config) jwtConfig() *jwtauth.Config {
	jc := &jwtauth.Config{
		JWKSURL:           c.JWKSURL,
		DiscoveryIssuer:   c.DiscoveryIssuer,
		Issuer:            c.Issuer,
		ExpectedAudiences: append([]string(nil), c.Audiences...),
		AllowedAlgs:       append([]string(nil), c.AllowedAlgs...),
		Leeway:            c.Leeway,
	}
	if c.usesSharedSecret() {
		jc.Secret = []byte(c.Secret)
		jc.MaxAge = c.TokenLifetime
	}
	return jc
}
