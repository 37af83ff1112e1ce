package app

import (
	"strings"

	"github.com/ethanmsmith/whisperbox/internal/auth"
	"github.com/ethanmsmith/whisperbox/internal/database"
	"github.com/ethanmsmith/whisperbox/pkg/mail"
)

// The config tree is plain data; these adapters translate its sections
// into the option structs the respective packages take, applying
// fallbacks for unset values.

func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	cfg := auth.JWTConfig{
		Secret:         c.JWT.Secret,
		Issuer:         c.JWT.Issuer,
		AccessTokenTTL: c.JWT.TTL,
	}
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = auth.DefaultAccessTokenTTL
	}
	return cfg
}

func (c AuthConfig) SessionServiceConfig() auth.SessionConfig {
	cfg := auth.SessionConfig{
		RefreshTokenTTL: c.Session.RefreshTTL,
		RefreshLength:   c.Session.RefreshLength,
	}
	if cfg.RefreshTokenTTL <= 0 {
		cfg.RefreshTokenTTL = auth.DefaultRefreshTokenTTL
	}
	if cfg.RefreshLength <= 0 {
		cfg.RefreshLength = 48
	}
	return cfg
}

func (c EmailConfig) SMTPSettings() mail.SMTPSettings {
	return mail.SMTPSettings{
		Enabled:  c.SMTP.Enabled,
		Host:     c.SMTP.Host,
		Port:     c.SMTP.Port,
		Username: c.SMTP.Username,
		Password: c.SMTP.Password,
		From:     c.SMTP.From,
		UseTLS:   c.SMTP.UseTLS,
		Timeout:  c.SMTP.Timeout,
	}
}

// DatabaseSettings selects the host parameters for the configured
// driver; sqlite needs only the path.
func (c DatabaseConfig) DatabaseSettings() database.Config {
	cfg := database.Config{
		Driver: c.Driver,
		Path:   c.Path,
		DSN:    c.DSN,
	}

	var hostCfg DBAuthConfig
	switch strings.ToLower(c.Driver) {
	case "postgres":
		hostCfg = c.Postgres
	case "mysql":
		hostCfg = c.MySQL
	default:
		return cfg
	}

	cfg.Host = hostCfg.Host
	cfg.Port = hostCfg.Port
	cfg.Name = hostCfg.Database
	cfg.User = hostCfg.Username
	cfg.Password = hostCfg.Password
	return cfg
}
