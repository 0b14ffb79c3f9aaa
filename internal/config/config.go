// Package config loads and validates app config from env and an optional .env
// file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"costscope.io/internal/obs"
)

// Placeholder secrets that must never reach production.
var forbiddenSecrets = []string{
	"secret",
	"changeme",
	"change-me",
	"password",
	"development-secret",
	"dev-secret",
	"insecure",
	"example",
}

const minSecretLength = 32

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// PGDSN is the Postgres DSN consumed through the pgx stdlib driver.
	PGDSN string `mapstructure:"PG_DSN"`
	// RedisAddr is the revocation store backend; empty falls back to the
	// in-memory store (dev only).
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`
	// AuthSecret signs access and refresh tokens; see ValidateSecret.
	AuthSecret string `mapstructure:"AUTH_SECRET"`
	// AuthIssuer is the iss claim on issued tokens.
	AuthIssuer string `mapstructure:"AUTH_ISSUER"`
	// AccessTTLMinutes is the access token lifetime in minutes.
	AccessTTLMinutes int `mapstructure:"ACCESS_TTL_MINUTES"`
	// RefreshTTLDays is the refresh token lifetime in days.
	RefreshTTLDays int `mapstructure:"REFRESH_TTL_DAYS"`
	// Env is the application environment ("development", "production").
	Env string `mapstructure:"APP_ENV"`
	// RateLimitBurst / RateLimitPerSecond tune the per-IP token bucket.
	RateLimitBurst     int `mapstructure:"RATE_LIMIT_BURST"`
	RateLimitPerSecond int `mapstructure:"RATE_LIMIT_PER_SECOND"`
}

// Load reads .env (if present), then builds and validates Config from the
// environment via Viper. Missing .env is ignored; env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("PG_DSN", "")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("AUTH_SECRET", "")
	v.SetDefault("AUTH_ISSUER", "costscope")
	v.SetDefault("ACCESS_TTL_MINUTES", 15)
	v.SetDefault("REFRESH_TTL_DAYS", 7)
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("RATE_LIMIT_BURST", 20)
	v.SetDefault("RATE_LIMIT_PER_SECOND", 10)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.AccessTTLMinutes <= 0 {
		return nil, errors.New("config: ACCESS_TTL_MINUTES must be positive")
	}
	if cfg.RefreshTTLDays <= 0 {
		return nil, errors.New("config: REFRESH_TTL_DAYS must be positive")
	}
	if cfg.RefreshTTL() <= cfg.AccessTTL() {
		return nil, errors.New("config: refresh TTL must exceed access TTL")
	}

	if err := cfg.ValidateSecret(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ValidateSecret enforces the signing-secret policy: at least 32 characters
// and not a known placeholder. Violations are a hard error in production and
// a logged warning elsewhere.
func (c *Config) ValidateSecret() error {
	problem := secretProblem(c.AuthSecret)
	if problem == "" {
		return nil
	}
	if c.Production() {
		return fmt.Errorf("config: AUTH_SECRET rejected: %s", problem)
	}
	obs.LogRequest(map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339),
		"level": "warn",
		"msg":   "weak AUTH_SECRET accepted outside production",
		"why":   problem,
	})
	return nil
}

func secretProblem(secret string) string {
	trimmed := strings.TrimSpace(secret)
	if len(trimmed) < minSecretLength {
		return fmt.Sprintf("shorter than %d characters", minSecretLength)
	}
	lower := strings.ToLower(trimmed)
	for _, bad := range forbiddenSecrets {
		if strings.Contains(lower, bad) {
			return fmt.Sprintf("contains placeholder %q", bad)
		}
	}
	return ""
}

// Production reports whether APP_ENV names the production environment.
func (c *Config) Production() bool {
	return strings.EqualFold(strings.TrimSpace(c.Env), "production")
}

// AccessTTL returns the access token lifetime.
func (c *Config) AccessTTL() time.Duration {
	return time.Duration(c.AccessTTLMinutes) * time.Minute
}

// RefreshTTL returns the refresh token lifetime.
func (c *Config) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshTTLDays) * 24 * time.Hour
}
