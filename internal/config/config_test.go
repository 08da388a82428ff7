package config

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func baseEnv() map[string]string {
	return map[string]string{
		"REDIS_URL":            "redis://localhost:6379/0",
		"JWT_SECRET":           "s3cret",
		"DATABASE_URL":         "",
		"CART_TTL":             "",
		"AUTH_RATE_LIMIT":      "",
		"BODY_LIMIT_BYTES":     "",
		"WORKER_CONCURRENCY":   "",
		"COOKIE_SAMESITE":      "",
		"CORS_ALLOWED_ORIGINS": "",
		"PORT":                 "",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadForTests(baseEnv())
	require.NoError(t, err)
	require.Equal(t, 168*time.Hour, cfg.CartTTL)
	require.Equal(t, "10-M", cfg.AuthRateLimit)
	require.Equal(t, int64(1<<20), cfg.BodyLimitBytes)
	require.Equal(t, http.SameSiteLaxMode, cfg.CookieSameSite)
	require.Equal(t, ":8080", cfg.HTTPAddr())
	require.False(t, cfg.UsePostgres())
}

func TestLoadOverrides(t *testing.T) {
	env := baseEnv()
	env["DATABASE_URL"] = "postgres://localhost/solar"
	env["CART_TTL"] = "2h"
	env["CORS_ALLOWED_ORIGINS"] = "https://a.example, ,https://b.example"
	env["COOKIE_SAMESITE"] = "strict"
	env["PORT"] = ":9090"
	env["WORKER_CONCURRENCY"] = "4"

	cfg, err := LoadForTests(env)
	require.NoError(t, err)
	require.True(t, cfg.UsePostgres())
	require.Equal(t, 2*time.Hour, cfg.CartTTL)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	require.Equal(t, http.SameSiteStrictMode, cfg.CookieSameSite)
	require.Equal(t, ":9090", cfg.HTTPAddr())
	require.Equal(t, 4, cfg.WorkerConcurrency)
}

func TestLoadRequiresSecrets(t *testing.T) {
	env := baseEnv()
	env["JWT_SECRET"] = ""
	_, err := LoadForTests(env)
	require.ErrorContains(t, err, "JWT_SECRET")

	env = baseEnv()
	env["REDIS_URL"] = ""
	_, err = LoadForTests(env)
	require.ErrorContains(t, err, "REDIS_URL")

	env = baseEnv()
	env["WORKER_CONCURRENCY"] = "0"
	_, err = LoadForTests(env)
	require.Error(t, err)
}

func TestParseDurationFallsBackOnGarbage(t *testing.T) {
	require.Equal(t, time.Hour, parseDuration("soon", "1h"))
	require.Equal(t, time.Hour, parseDuration("-5m", "1h"))
}
