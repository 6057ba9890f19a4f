// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ggoodman/authguard/auth"
	"github.com/joeshaw/envdecode"
)

// Principal store backends selectable with PRINCIPAL_STORE.
const (
	StoreMemory   = "memory"
	StoreFile     = "file"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Config is populated from the environment by Load. Defaults are provided
// via struct tags.
type Config struct {
	// Env is the deployment environment. ENV: APP_ENV
	Env        string `env:"APP_ENV,default=development"`
	ListenAddr string `env:"LISTEN_ADDR,default=:8080"`
	LogLevel   string `env:"LOG_LEVEL,default=info"`

	// PublicURL is the externally visible base URL, used to advertise
	// resource metadata. ENV: PUBLIC_URL
	PublicURL string `env:"PUBLIC_URL"`

	// JWTSecret is the shared HMAC secret. ENV: JWT_SECRET
	JWTSecret       string        `env:"JWT_SECRET"`
	JWTExpiresIn    time.Duration `env:"JWT_EXPIRES_IN,default=5m"`
	JWTAlgorithms   string        `env:"JWT_ALGORITHMS"`
	JWTLeeway       time.Duration `env:"JWT_LEEWAY,default=0s"`
	JWTSubjectClaim string        `env:"JWT_SUBJECT_CLAIM,default=id"`
	JWTIssuer       string        `env:"JWT_ISSUER"`
	JWTAudience     string        `env:"JWT_AUDIENCE"`
	JWKSURL         string        `env:"JWKS_URL"`
	OIDCIssuer      string        `env:"OIDC_ISSUER"`

	PrincipalStore    string `env:"PRINCIPAL_STORE,default=memory"`
	PrincipalsFile    string `env:"PRINCIPALS_FILE"`
	RedisAddr         string `env:"REDIS_ADDR,default=localhost:6379"`
	RedisKeyPrefix    string `env:"REDIS_KEY_PREFIX,default=authguard:principals:"`
	PostgresDSN       string `env:"POSTGRES_DSN"`
	TrustedProxyCIDRs string `env:"TRUSTED_PROXY_CIDRS"`

	// UsingDefaultSecret is set when JWT_SECRET was absent outside
	// production and auth.DefaultSecret was substituted.
	UsingDefaultSecret bool
}

// Load reads the environment into a Config and validates it.
func Load() (Config, error) {
	var c Config
	if err := envdecode.Decode(&c); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := c.finish(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) finish() error {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	c.PrincipalStore = strings.ToLower(strings.TrimSpace(c.PrincipalStore))

	if c.JWTSecret == "" && c.JWKSURL == "" && c.OIDCIssuer == "" {
		if c.IsProduction() {
			return errors.New("config: JWT_SECRET is required in production")
		}
		c.JWTSecret = auth.DefaultSecret
		c.UsingDefaultSecret = true
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}

	switch c.PrincipalStore {
	case StoreMemory, StoreRedis:
	case StoreFile:
		if c.PrincipalsFile == "" {
			return errors.New("config: PRINCIPALS_FILE is required for the file store")
		}
	case StorePostgres:
		if c.PostgresDSN == "" {
			return errors.New("config: POSTGRES_DSN is required for the postgres store")
		}
	default:
		return fmt.Errorf("config: unknown PRINCIPAL_STORE %q", c.PrincipalStore)
	}

	return c.Auth().Validate()
}

// IsProduction reports whether APP_ENV names a production deployment.
func (c Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// SlogLevel parses LOG_LEVEL.
func (c Config) SlogLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("config: LOG_LEVEL: %w", err)
	}
	return l, nil
}

// Auth returns the pipeline configuration described by c.
func (c Config) Auth() auth.Config {
	ac := auth.Config{
		Secret:          c.JWTSecret,
		TokenLifetime:   c.JWTExpiresIn,
		AllowedAlgs:     List(c.JWTAlgorithms),
		Leeway:          c.JWTLeeway,
		SubjectClaim:    strings.TrimSpace(c.JWTSubjectClaim),
		Issuer:          strings.TrimSpace(c.JWTIssuer),
		Audiences:       List(c.JWTAudience),
		JWKSURL:         strings.TrimSpace(c.JWKSURL),
		DiscoveryIssuer: strings.TrimSpace(c.OIDCIssuer),
	}
	ac.Normalize()
	return ac
}

// TrustedProxies returns the parsed TRUSTED_PROXY_CIDRS list.
func (c Config) TrustedProxies() []string {
	return List(c.TrustedProxyCIDRs)
}

// List splits a comma separated value, dropping blank entries.
func List(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
