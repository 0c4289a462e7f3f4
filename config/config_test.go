package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, 8097, cfg.Port)
	assert.False(t, cfg.Production)
	assert.Equal(t, time.Hour, cfg.AccessTokenExpiry)
	assert.Equal(t, 7*24*time.Hour, cfg.RefreshTokenExpiry)
	assert.False(t, cfg.UseMongoDB)
	assert.True(t, cfg.EnableRefreshTokens)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("USE_MONGODB", "true")
	t.Setenv("ACCESS_TOKEN_EXPIRY", "30m")
	t.Setenv("JWT_SECRET", "s3cret")

	cfg := Load()

	assert.Equal(t, 9000, cfg.Port)
	assert.True(t, cfg.UseMongoDB)
	assert.Equal(t, 30*time.Minute, cfg.AccessTokenExpiry)
	assert.Equal(t, "s3cret", cfg.JWTSecret)
}

func TestRefreshExpiryAcceptsDays(t *testing.T) {
	t.Setenv("REFRESH_TOKEN_EXPIRY", "14")

	cfg := Load()

	assert.Equal(t, 14*24*time.Hour, cfg.RefreshTokenExpiry)
}

func TestRefreshExpiryAcceptsDaySuffix(t *testing.T) {
	t.Setenv("REFRESH_TOKEN_EXPIRY", "30d")

	cfg := Load()

	assert.Equal(t, 30*24*time.Hour, cfg.RefreshTokenExpiry)
}

func TestProductionMode(t *testing.T) {
	t.Setenv("ENV", "production")

	cfg := Load()

	assert.True(t, cfg.Production)
}
