package config

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all environment-based configuration for shopbot.
type Config struct {
	// Telegram bot token issued by BotFather (required).
	BotToken string `env:"BOT_TOKEN"`

	// Backend base domain, e.g. "backend.example:8000". Derived API URLs
	// are built from it.
	BackendDomain string `env:"BACKEND_DOMAIN" envDefault:"localhost:8000"`

	// BackendScheme selects http or https for derived URLs.
	BackendScheme string `env:"BACKEND_SCHEME" envDefault:"http"`

	// Comma-separated URL or domain patterns identifying trusted backend
	// destinations for request signing. When empty, BackendDomain is used.
	TrustedBackendURLs string `env:"TRUSTED_BACKEND_URLS"`

	// Shared secret for HMAC request signing (required). The signer
	// refuses to construct without it.
	SignatureSecretKey string `env:"SIGNATURE_SECRET_KEY"`

	// SignatureValidityWindow bounds |now - timestamp| accepted by the
	// backend. Informational on the client side; the backend enforces it.
	SignatureValidityWindow time.Duration `env:"SIGNATURE_VALIDITY_WINDOW" envDefault:"300s"`

	// Redis connection URL for the session store.
	RedisURL string `env:"REDIS_URL" envDefault:"redis://localhost:6379/3"`

	// Token cache lifetimes.
	AccessTokenLifetime  time.Duration `env:"ACCESS_TOKEN_LIFETIME" envDefault:"1h"`
	RefreshTokenLifetime time.Duration `env:"REFRESH_TOKEN_LIFETIME" envDefault:"1h"`

	// StaffFlagLifetime controls how long a cached staff-authorization
	// answer is trusted. Independent of token lifetimes.
	StaffFlagLifetime time.Duration `env:"STAFF_FLAG_LIFETIME" envDefault:"1h"`

	// OpenRouter API key for the AI support assistant. Optional; the
	// /ask command is disabled without it.
	OpenRouterAPIKey string `env:"OPENROUTER_API_KEY"`

	// RequestTimeout applies to every outbound backend and AI call.
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`

	// PollTimeout is the Telegram getUpdates long-poll timeout.
	PollTimeout time.Duration `env:"POLL_TIMEOUT" envDefault:"30s"`

	// Environment controls log format.
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. On Unix systems, group or world
// readable files risk exposing credentials to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

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
	if c.BotToken == "" {
		return fmt.Errorf("BOT_TOKEN is required")
	}

	if c.BackendDomain == "" {
		return fmt.Errorf("BACKEND_DOMAIN is required")
	}

	if c.BackendScheme != "http" && c.BackendScheme != "https" {
		return fmt.Errorf("BACKEND_SCHEME must be http or https, got %q", c.BackendScheme)
	}

	// A missing signing secret is a configuration error, not a license to
	// operate unsigned. Fail at startup.
	if c.SignatureSecretKey == "" {
		return fmt.Errorf("SIGNATURE_SECRET_KEY is required")
	}

	if c.AccessTokenLifetime <= 0 || c.RefreshTokenLifetime <= 0 {
		return fmt.Errorf("token lifetimes must be positive")
	}

	if c.StaffFlagLifetime <= 0 {
		return fmt.Errorf("STAFF_FLAG_LIFETIME must be positive")
	}

	return nil
}

// BaseURL returns the backend root, e.g. "http://localhost:8000/".
func (c *Config) BaseURL() string {
	return fmt.Sprintf("%s://%s/", c.BackendScheme, c.BackendDomain)
}

// APIV1URL returns the versioned API base.
func (c *Config) APIV1URL() string {
	return c.BaseURL() + "api/v1/"
}

// AuthAPIURL returns the auth API base used for token operations.
func (c *Config) AuthAPIURL() string {
	return c.APIV1URL() + "auth/"
}

// UsersAPIURL returns the user-management API base.
func (c *Config) UsersAPIURL() string {
	return c.AuthAPIURL() + "users/"
}

// ProductsAPIURL returns the products API base.
func (c *Config) ProductsAPIURL() string {
	return c.APIV1URL() + "products/"
}

// TrustedURLs returns the configured trusted-destination patterns,
// defaulting to the backend domain when none are set.
func (c *Config) TrustedURLs() []string {
	raw := c.TrustedBackendURLs
	if strings.TrimSpace(raw) == "" {
		return []string{c.BackendDomain}
	}

	var urls []string

	for _, u := range strings.Split(raw, ",") {
		u = strings.TrimSpace(u)
		if u != "" {
			urls = append(urls, u)
		}
	}

	return urls
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
