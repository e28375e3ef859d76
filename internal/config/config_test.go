package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/jrsteele09/go-identity-server/internal/config"
	"github.com/stretchr/testify/require"
)

func TestValidate_SigningKeyLength(t *testing.T) {
	t.Setenv("SIGNING_KEY", "too-short")
	err := config.Validate(config.New())
	require.Error(t, err)
	require.Contains(t, err.Error(), "SIGNING_KEY")

	t.Setenv("SIGNING_KEY", strings.Repeat("k", config.MinSigningKeyLength))
	require.NoError(t, config.Validate(config.New()))
}

func TestValidate_NonPositiveLifetimes(t *testing.T) {
	t.Setenv("SIGNING_KEY", strings.Repeat("k", 40))
	t.Setenv("ACCESS_TOKEN_MINUTES", "0")
	require.Error(t, config.Validate(config.New()))
}

func TestDefaults(t *testing.T) {
	t.Setenv("ENV", "")
	t.Setenv("PORT", "")
	c := config.New()

	require.True(t, c.IsDevelopment())
	require.Equal(t, ":8080", c.GetPort())
	require.Equal(t, 15*time.Minute, c.GetAccessTokenExpiry())
	require.Equal(t, 30*time.Minute, c.GetSessionRefreshExpiry())
	require.Equal(t, 30*24*time.Hour, c.GetRememberMeExpiry())
	require.Equal(t, "refresh_token", c.GetRefreshCookieName())
	require.Equal(t, 5, c.GetMaxFailedAccessAttempts())
	require.False(t, c.GetRequireEmailVerification())
	require.False(t, c.GetTrustProxyHeaders())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ENV", "prod")
	t.Setenv("PORT", ":9000")
	t.Setenv("ACCESS_TOKEN_MINUTES", "5")
	t.Setenv("REMEMBER_ME_DAYS", "7")
	t.Setenv("REQUIRE_EMAIL_VERIFICATION", "true")
	t.Setenv("ADMIN_EMAILS", " a@example.com, ,b@example.com")
	t.Setenv("CORS_ORIGINS", "https://app.example.com")
	t.Setenv("TRUST_PROXY_HEADERS", "true")
	c := config.New()

	require.False(t, c.IsDevelopment())
	require.Equal(t, ":9000", c.GetPort())
	require.Equal(t, 5*time.Minute, c.GetAccessTokenExpiry())
	require.Equal(t, 7*24*time.Hour, c.GetRememberMeExpiry())
	require.True(t, c.GetRequireEmailVerification())
	require.Equal(t, []string{"a@example.com", "b@example.com"}, c.GetAdminNotificationEmails())
	require.True(t, c.GetAllowedOrigins().IsAllowedOrigin("https://app.example.com"))
	require.True(t, c.GetTrustProxyHeaders())
}

func TestGetEnvInt_InvalidFallsBack(t *testing.T) {
	t.Setenv("SOME_INT", "abc")
	require.Equal(t, 3, config.GetEnvInt("SOME_INT", 3))
}
