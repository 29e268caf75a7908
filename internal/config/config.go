// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full runtime configuration. Defaults suit local
// development; production deployments override through the environment.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"local"`
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`

	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisAddr   string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass   string `env:"REDIS_PASSWORD"`

	// JWTSecret signs new tokens; PastJWTSecrets are retired secrets still
	// accepted for verification during rotation.
	JWTSecret      string   `env:"JWT_SECRET,required"`
	PastJWTSecrets []string `env:"PAST_JWT_SECRETS"`

	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"15m"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"9600h"` // 400 days

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	SMTPFrom     string `env:"SMTP_FROM"`

	// AppBaseURL prefixes links in outbound email.
	AppBaseURL string `env:"APP_BASE_URL" envDefault:"http://localhost:3000"`
	// CORSOrigin is the single browser origin allowed to call the API.
	CORSOrigin string `env:"CORS_ORIGIN" envDefault:"http://localhost:3000"`

	EmailVerificationCodeLimit int `env:"EMAIL_VERIFICATION_CODE_LIMIT" envDefault:"5"`
	PasswordResetRequestLimit  int `env:"PASSWORD_RESET_REQUEST_LIMIT" envDefault:"3"`

	LoginLockoutThreshold int           `env:"LOGIN_LOCKOUT_THRESHOLD" envDefault:"5"`
	LoginLockoutWindow    time.Duration `env:"LOGIN_LOCKOUT_WINDOW" envDefault:"5m"`

	RateLimitRequests     int           `env:"RATE_LIMIT_REQUESTS" envDefault:"5"`
	RateLimitUserRequests int           `env:"RATE_LIMIT_USER_REQUESTS" envDefault:"20"`
	RateLimitWindow       time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"5s"`
}

// Load reads and validates configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}
	if c.AccessTokenTTL >= c.RefreshTokenTTL {
		return errors.New("access token TTL must be shorter than refresh token TTL")
	}
	if c.EmailVerificationCodeLimit <= 0 || c.PasswordResetRequestLimit <= 0 {
		return errors.New("issuance limits must be positive")
	}
	if c.LoginLockoutThreshold <= 0 || c.RateLimitRequests <= 0 || c.RateLimitUserRequests <= 0 {
		return errors.New("abuse thresholds must be positive")
	}
	return nil
}

// JWTSecrets returns the full key set, newest first.
func (c *Config) JWTSecrets() []string {
	return append([]string{c.JWTSecret}, c.PastJWTSecrets...)
}

// IsLocal reports whether the service runs in local development mode, which
// relaxes cookie security and bypasses device attestation.
func (c *Config) IsLocal() bool {
	return c.Environment == "local"
}
