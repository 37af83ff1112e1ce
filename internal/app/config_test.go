package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, "http://localhost:8000", cfg.Server.BaseURL)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, 6*time.Hour, cfg.Verification.Expiry)
	require.Equal(t, 30*24*time.Hour, cfg.Auth.Session.RefreshTTL)
	require.False(t, cfg.Email.SMTP.Enabled)
	require.False(t, cfg.OAuth.Google.Enabled)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("WHISPERBOX_SERVER_PORT", "9000")
	t.Setenv("WHISPERBOX_VERIFICATION_EXPIRY", "2h")
	t.Setenv("WHISPERBOX_AUTH_JWT_SECRET", "env-secret")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 9000, cfg.Server.Port)
	require.Equal(t, 2*time.Hour, cfg.Verification.Expiry)
	require.Equal(t, "env-secret", cfg.Auth.JWT.Secret)
}

func TestDatabaseSettingsSelectsHostConfig(t *testing.T) {
	cfg := DatabaseConfig{
		Driver: "postgres",
		Postgres: DBAuthConfig{
			Host:     "db.internal",
			Port:     5432,
			Database: "whisperbox",
			Username: "app",
			Password: "secret",
		},
		MySQL: DBAuthConfig{Host: "ignored"},
	}

	settings := cfg.DatabaseSettings()
	require.Equal(t, "postgres", settings.Driver)
	require.Equal(t, "db.internal", settings.Host)
	require.Equal(t, 5432, settings.Port)
	require.Equal(t, "whisperbox", settings.Name)
	require.Equal(t, "app", settings.User)
}
