package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/authd?sslmode=disable")
	t.Setenv("JWT_SECRET", "test-secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Environment)
	assert.True(t, cfg.IsLocal())
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 9600*time.Hour, cfg.RefreshTokenTTL)
	assert.Equal(t, 5, cfg.EmailVerificationCodeLimit)
	assert.Equal(t, 3, cfg.PasswordResetRequestLimit)
	assert.Equal(t, 5, cfg.LoginLockoutThreshold)
	assert.Equal(t, 5*time.Second, cfg.RateLimitWindow)
}

func TestLoadMissingRequired(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	_, err := Load()
	assert.Error(t, err)
}

func TestJWTSecretsOrder(t *testing.T) {
	setRequired(t)
	t.Setenv("PAST_JWT_SECRETS", "old-1,old-2")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"test-secret", "old-1", "old-2"}, cfg.JWTSecrets())
}

func TestValidateRejectsInvertedTTLs(t *testing.T) {
	setRequired(t)
	t.Setenv("ACCESS_TOKEN_TTL", "10h")
	t.Setenv("REFRESH_TOKEN_TTL", "1h")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidateRejectsZeroLimits(t *testing.T) {
	setRequired(t)
	t.Setenv("EMAIL_VERIFICATION_CODE_LIMIT", "0")

	_, err := Load()
	assert.Error(t, err)
}

func TestIsLocal(t *testing.T) {
	setRequired(t)
	t.Setenv("ENVIRONMENT", "production")

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.IsLocal())
}
