package jwtauth

import (
	"context"
	"errors"
	"fmt"

	keyfunc "github.com/MicahParks/keyfunc/v3"
	"github.com/coreos/go-oidc/v3/oidc"
)

// NewJWKS constructs a Verifier whose keys come from cfg.JWKSURL. The key set
// is fetched once here and refreshed in the background for the lifetime of
// ctx.
func NewJWKS(ctx context.Context, cfg *Config) (Verifier, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if cfg.JWKSURL == "" {
		return nil, errors.New("jwks uri required")
	}

	kf, err := keyfunc.NewDefaultCtx(ctx, []string{cfg.JWKSURL})
	if err != nil {
		return nil, fmt.Errorf("jwks init failed: %w", err)
	}
	return newVerifier(cfg, kf.Keyfunc)
}

// NewFromDiscovery performs OIDC discovery against cfg.DiscoveryIssuer to
// obtain jwks_uri and issuer, then behaves like NewJWKS. When cfg.Issuer is
// empty the discovered issuer is enforced.
func NewFromDiscovery(ctx context.Context, cfg *Config) (Verifier, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if cfg.DiscoveryIssuer == "" {
		return nil, errors.New("issuer is required")
	}

	provider, err := oidc.NewProvider(ctx, cfg.DiscoveryIssuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery failed: %w", err)
	}
	var meta struct {
		Issuer  string `json:"issuer"`
		JwksURI string `json:"jwks_uri"`
	}
	if err := provider.Claims(&meta); err != nil {
		return nil, fmt.Errorf("invalid discovery metadata: %w", err)
	}
	if meta.JwksURI == "" {
		return nil, errors.New("discovery incomplete: missing jwks_uri")
	}

	c := *cfg
	c.JWKSURL = meta.JwksURI
	if c.Issuer == "" {
		c.Issuer = meta.Issuer
	}
	return NewJWKS(ctx, &c)
}
