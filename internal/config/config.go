package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"reposweep.org/internal/auth"
)

// Config holds all environment-based configuration for the service.
type Config struct {
	// Listen address for the HTTP server.
	Addr string `env:"ADDR" envDefault:":8080"`

	// Environment controls error verbosity and cookie hardening.
	// "production" keeps upstream error detail out of responses.
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	// GitHub OAuth application credentials.
	GitHubClientID     string `env:"GITHUB_CLIENT_ID"`
	GitHubClientSecret string `env:"GITHUB_CLIENT_SECRET"`

	// Redirect URI registered with the OAuth application.
	OAuthRedirectURL string `env:"OAUTH_REDIRECT_URL" envDefault:"http://localhost:8080/auth/callback"`

	// Secret used to sign session tokens. Must be at least 32 characters.
	SessionSecret string `env:"SESSION_SECRET"`

	// Origin the browser UI is served from. When set, cross-origin
	// requests are rejected against this value instead of the Host header.
	PublicOrigin string `env:"PUBLIC_ORIGIN"`

	// Optional Postgres DSN for the rate-limit counter store. Empty means
	// in-memory counters (single instance, best-effort accuracy).
	RateLimitPGDSN string `env:"RATELIMIT_PG_DSN"`

	// Override for the upstream API base URL (GitHub Enterprise, tests).
	GitHubAPIURL string `env:"GITHUB_API_URL" envDefault:"https://api.github.com"`
}

// Load reads configuration from the environment, loading a .env file first
// when present, and validates it eagerly so a misconfigured process fails
// before it binds a socket.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.GitHubClientID) == "" {
		return fmt.Errorf("GITHUB_CLIENT_ID is required")
	}
	if strings.TrimSpace(c.GitHubClientSecret) == "" {
		return fmt.Errorf("GITHUB_CLIENT_SECRET is required")
	}
	if len(strings.TrimSpace(c.SessionSecret)) < auth.MinSecretLength {
		return auth.ErrWeakSecret
	}
	switch c.Environment {
	case "development", "production":
	default:
		return fmt.Errorf("ENVIRONMENT must be development or production, got %q", c.Environment)
	}
	return nil
}

// Production reports whether the service runs with hardened defaults.
func (c *Config) Production() bool {
	return c.Environment == "production"
}
