package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/jrsteele09/go-session-auth/internal/config"
	"github.com/stretchr/testify/require"
)

var (
	accessSecret  = strings.Repeat("a", config.MinSecretLength)
	refreshSecret = strings.Repeat("r", config.MinSecretLength)
)

func setEnv(t *testing.T, vars map[string]string) {
	t.Helper()
	for k, v := range vars {
		t.Setenv(k, v)
	}
}

func TestLoad_Defaults(t *testing.T) {
	setEnv(t, map[string]string{"ENV": "DEV"})

	c, err := config.Load()
	require.NoError(t, err)

	require.Equal(t, ":8080", c.GetPort())
	require.Equal(t, "DEV", c.GetEnv())
	require.True(t, c.IsDev())
	require.Equal(t, 15*time.Minute, c.GetAccessTokenExpiry())
	require.Equal(t, 7*24*time.Hour, c.GetRefreshTokenExpiry())
	require.False(t, c.GetRotateRefreshTokens())
	require.Equal(t, config.StoreMemory, c.GetStoreBackend())

	// Random development secrets are generated and differ.
	require.GreaterOrEqual(t, len(c.GetAccessSecret()), config.MinSecretLength)
	require.NotEqual(t, c.GetAccessSecret(), c.GetRefreshSecret())

	_, _, ok := c.GetAdminCredentials()
	require.False(t, ok)
}

func TestLoad_FromEnvironment(t *testing.T) {
	setEnv(t, map[string]string{
		"ENV":                   "production",
		"PORT":                  ":9090",
		"JWT_ACCESS_SECRET":     accessSecret,
		"JWT_REFRESH_SECRET":    refreshSecret,
		"ACCESS_TOKEN_EXPIRY":   "5m",
		"REFRESH_TOKEN_EXPIRY":  "24h",
		"ROTATE_REFRESH_TOKENS": "true",
		"STORE_BACKEND":         "redis",
		"REDIS_ADDR":            "redis:6379",
		"REDIS_DB":              "2",
		"ALLOWED_ORIGINS":       "https://a.example, https://b.example",
		"ADMIN_EMAIL":           "admin@x.com",
		"ADMIN_PASSWORD":        "admin-pw",
	})

	c, err := config.Load()
	require.NoError(t, err)

	require.Equal(t, ":9090", c.GetPort())
	require.Equal(t, "PRODUCTION", c.GetEnv())
	require.False(t, c.IsDev())
	require.Equal(t, accessSecret, c.GetAccessSecret())
	require.Equal(t, 5*time.Minute, c.GetAccessTokenExpiry())
	require.Equal(t, 24*time.Hour, c.GetRefreshTokenExpiry())
	require.True(t, c.GetRotateRefreshTokens())
	require.Equal(t, config.StoreRedis, c.GetStoreBackend())
	require.Equal(t, "redis:6379", c.GetRedisAddr())
	require.Equal(t, 2, c.GetRedisDB())

	origins := c.GetAllowedOrigins()
	require.True(t, origins.IsAllowedOrigin("https://a.example"))
	require.True(t, origins.IsAllowedOrigin("https://b.example"))
	require.False(t, origins.IsAllowedOrigin("https://c.example"))

	email, password, ok := c.GetAdminCredentials()
	require.True(t, ok)
	require.Equal(t, "admin@x.com", email)
	require.Equal(t, "admin-pw", password)
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing secrets outside dev", map[string]string{"ENV": "PROD"}},
		{"short secret", map[string]string{
			"ENV": "PROD", "JWT_ACCESS_SECRET": "short", "JWT_REFRESH_SECRET": refreshSecret,
		}},
		{"same secret", map[string]string{
			"ENV": "PROD", "JWT_ACCESS_SECRET": accessSecret, "JWT_REFRESH_SECRET": accessSecret,
		}},
		{"refresh shorter than access", map[string]string{
			"ENV": "DEV", "ACCESS_TOKEN_EXPIRY": "2h", "REFRESH_TOKEN_EXPIRY": "1h",
		}},
		{"unknown store", map[string]string{"ENV": "DEV", "STORE_BACKEND": "mongo"}},
		{"bad duration", map[string]string{"ENV": "DEV", "ACCESS_TOKEN_EXPIRY": "soon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setEnv(t, tt.env)
			_, err := config.Load()
			require.Error(t, err)
		})
	}
}
