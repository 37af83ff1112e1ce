package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ethanmsmith/whisperbox/internal/api"
	"github.com/ethanmsmith/whisperbox/internal/app"
	"github.com/ethanmsmith/whisperbox/internal/app/maintenance"
	"github.com/ethanmsmith/whisperbox/internal/auth"
	"github.com/ethanmsmith/whisperbox/internal/auth/providers"
	"github.com/ethanmsmith/whisperbox/internal/database"
	"github.com/ethanmsmith/whisperbox/internal/handlers"
	"github.com/ethanmsmith/whisperbox/internal/middleware"
	"github.com/ethanmsmith/whisperbox/internal/services"
	"github.com/ethanmsmith/whisperbox/pkg/crypto"
	"github.com/ethanmsmith/whisperbox/pkg/logger"
	"github.com/ethanmsmith/whisperbox/pkg/mail"
	"github.com/ethanmsmith/whisperbox/web"
)

func main() {
	configPath := flag.String("config", "", "directory containing config.yaml")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "whisperbox:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	var paths []string
	if configPath != "" {
		paths = append(paths, configPath)
	}

	cfg, err := app.LoadConfig(paths...)
	if err != nil {
		return err
	}

	if err := app.ConfigureLogging(cfg.Server.LogLevel); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	db, err := database.Open(cfg.Database.DatabaseSettings())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	mailer, err := buildMailer(cfg)
	if err != nil {
		return err
	}

	jwtService, err := auth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return fmt.Errorf("jwt service: %w", err)
	}

	sessions, err := auth.NewSessionService(db, jwtService, cfg.Auth.SessionServiceConfig())
	if err != nil {
		return fmt.Errorf("session service: %w", err)
	}

	stateKey := cfg.Auth.StateKey
	if stateKey == "" {
		stateKey, err = crypto.GenerateToken(32)
		if err != nil {
			return fmt.Errorf("generate state key: %w", err)
		}
		logger.Warn("auth.state_key not configured, using an ephemeral key; " +
			"in-flight logins will not survive a restart")
	}
	states, err := auth.NewStateCodec(stateKey)
	if err != nil {
		return fmt.Errorf("state codec: %w", err)
	}

	verifications, err := services.NewVerificationService(db, mailer, services.VerificationConfig{
		Expiry:  cfg.Verification.Expiry,
		BaseURL: cfg.Server.BaseURL,
	})
	if err != nil {
		return fmt.Errorf("verification service: %w", err)
	}

	accounts, err := services.NewAccountService(db, verifications)
	if err != nil {
		return fmt.Errorf("account service: %w", err)
	}

	local, err := providers.NewLocalProvider(db)
	if err != nil {
		return fmt.Errorf("local provider: %w", err)
	}

	google, err := buildGoogleProvider(cfg)
	if err != nil {
		return err
	}

	router, err := buildRouter(cfg, db, accounts, verifications, local, google, sessions, jwtService, states)
	if err != nil {
		return err
	}

	cleaner, err := maintenance.NewCleaner([]maintenance.Task{
		{Name: "expired_sessions", Run: sessions.CleanupExpired},
		{Name: "expired_verifications", Run: verifications.CleanupExpired},
	})
	if err != nil {
		return fmt.Errorf("maintenance: %w", err)
	}
	if err := cleaner.Start(); err != nil {
		return err
	}
	defer cleaner.Stop()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	return nil
}

func buildMailer(cfg *app.Config) (mail.Mailer, error) {
	if !cfg.Email.SMTP.Enabled {
		logger.Warn("smtp disabled, verification emails will be logged instead of sent")
		return mail.NewLogMailer(logger.Logger()), nil
	}

	mailer, err := mail.NewSMTPMailer(cfg.Email.SMTPSettings())
	if err != nil {
		return nil, fmt.Errorf("smtp mailer: %w", err)
	}
	return mailer, nil
}

func buildGoogleProvider(cfg *app.Config) (*providers.GoogleProvider, error) {
	if !cfg.OAuth.Google.Enabled {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	google, err := providers.NewGoogleProvider(ctx, providers.GoogleConfig{
		Enabled:      true,
		ClientID:     cfg.OAuth.Google.ClientID,
		ClientSecret: cfg.OAuth.Google.ClientSecret,
		RedirectURL:  cfg.OAuth.Google.RedirectURL,
	})
	if err != nil {
		return nil, fmt.Errorf("google provider: %w", err)
	}

	logger.Info("google sign-in enabled")
	return google, nil
}

func buildRouter(
	cfg *app.Config,
	db *gorm.DB,
	accounts *services.AccountService,
	verifications *services.VerificationService,
	local *providers.LocalProvider,
	google *providers.GoogleProvider,
	sessions *auth.SessionService,
	jwtService *auth.JWTService,
	states *auth.StateCodec,
) (http.Handler, error) {
	assets, err := web.Static()
	if err != nil {
		return nil, fmt.Errorf("web assets: %w", err)
	}

	pages, err := handlers.NewPagesHandler(assets,
		"home", "login", "register", "verified", "error", "secrets")
	if err != nil {
		return nil, err
	}

	registerHandler, err := handlers.NewRegisterHandler(accounts)
	if err != nil {
		return nil, err
	}

	cookies := handlers.CookieSettings{
		Secure: isHTTPS(cfg.Server.BaseURL),
	}

	authHandler, err := handlers.NewAuthHandler(local, sessions, jwtService, cookies)
	if err != nil {
		return nil, err
	}

	verifyHandler, err := handlers.NewVerifyHandler(verifications)
	if err != nil {
		return nil, err
	}

	ssoHandler, err := handlers.NewSSOHandler(google, accounts, sessions, states, cookies)
	if err != nil {
		return nil, err
	}

	return api.NewRouter(api.Deps{
		Pages:         pages,
		Register:      registerHandler,
		Auth:          authHandler,
		Verify:        verifyHandler,
		SSO:           ssoHandler,
		Authenticator: middleware.NewSessionAuthenticator(jwtService, sessions),
		HealthCheck:   healthCheck(db),
	})
}

func healthCheck(db *gorm.DB) func() error {
	return func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Ping()
	}
}

func isHTTPS(baseURL string) bool {
	return len(baseURL) >= 8 && baseURL[:8] == "https://"
}
