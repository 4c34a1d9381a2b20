package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_GeneratesSecretsOnce(t *testing.T) {
	dir := t.TempDir()

	first, err := Load(dir)
	require.NoError(t, err)

	assert.NotEmpty(t, first.Authentication.Secret)
	assert.NotEmpty(t, first.Authentication.AccessSecret)
	assert.NotEmpty(t, first.Authentication.RefreshSecret)
	assert.NotEmpty(t, first.Authentication.ClientId)
	assert.NotEmpty(t, first.Authentication.ClientSecret)

	// Per-purpose secrets must be distinct.
	assert.NotEqual(t, first.Authentication.Secret, first.Authentication.AccessSecret)
	assert.NotEqual(t, first.Authentication.AccessSecret, first.Authentication.RefreshSecret)

	// A second boot reuses the persisted secrets instead of regenerating.
	second, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, first.Authentication, second.Authentication)

	if _, err := os.Stat(filepath.Join(dir, "config.json")); err != nil {
		t.Fatalf("config file missing: %v", err)
	}
}

func TestLoad_DerivedDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, cfg.PublicUrl, cfg.Authentication.RedirectUri)
	assert.Equal(t, cfg.PublicUrl+"/oauth2/authorize", cfg.Authentication.AuthorizeEndpoint)
	assert.Equal(t, "webapp_session", cfg.Authentication.CookieName)
	assert.Positive(t, cfg.Authentication.AccessTTLMin)
	assert.Positive(t, cfg.Authentication.RefreshTTLDays)
	assert.Positive(t, cfg.Authentication.CookieExpiryDays)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("WEBAPP_PUBLIC_URL", "https://app.example.com")
	t.Setenv("WEBAPP_AUTHENTICATION_CLIENT_ID", "env-client")
	t.Setenv("WEBAPP_AUTHENTICATION_ACCESS_TTL_MIN", "5")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "https://app.example.com", cfg.PublicUrl)
	assert.Equal(t, "env-client", cfg.Authentication.ClientId)
	assert.Equal(t, 5, cfg.Authentication.AccessTTLMin)
	// Derived values follow the override.
	assert.Equal(t, "https://app.example.com", cfg.Authentication.RedirectUri)
}
