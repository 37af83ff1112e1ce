package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/ethanmsmith/whisperbox/internal/models"
	"github.com/ethanmsmith/whisperbox/pkg/crypto"
	apperrors "github.com/ethanmsmith/whisperbox/pkg/errors"
	"github.com/ethanmsmith/whisperbox/pkg/metrics"
)

// LocalProvider authenticates users against locally stored credentials.
type LocalProvider struct {
	db  *gorm.DB
	now func() time.Time
}

// LocalOption customises a LocalProvider.
type LocalOption func(*LocalProvider)

// WithLocalClock injects a clock, used by tests.
func WithLocalClock(clock func() time.Time) LocalOption {
	return func(p *LocalProvider) {
		if clock != nil {
			p.now = clock
		}
	}
}

// NewLocalProvider constructs a password authentication provider.
func NewLocalProvider(db *gorm.DB, opts ...LocalOption) (*LocalProvider, error) {
	if db == nil {
		return nil, errors.New("local provider: db is required")
	}

	provider := &LocalProvider{
		db:  db,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(provider)
	}

	return provider, nil
}

// Credentials are the inputs to a password login attempt.
type Credentials struct {
	Email     string
	Password  string
	IPAddress string
}

// Authenticate verifies the supplied credentials and returns the matching
// user. Unknown emails and wrong passwords yield the same error so the
// response does not reveal which accounts exist.
func (p *LocalProvider) Authenticate(ctx context.Context, creds Credentials) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(creds.Email))
	if email == "" || creds.Password == "" {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, apperrors.ErrInvalidCredentials
	}

	var user models.User
	err := p.db.WithContext(ctx).Where("email = ?", email).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, apperrors.ErrInvalidCredentials
	}
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("local provider: find user: %w", err)
	}

	// Unverified accounts are told to check their inbox before the
	// password is even compared.
	if !user.Verified {
		metrics.AuthAttempts.WithLabelValues("unverified").Inc()
		return nil, apperrors.ErrEmailNotVerified
	}

	if user.Password == "" || !crypto.VerifyPassword(user.Password, creds.Password) {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, apperrors.ErrInvalidCredentials
	}

	if err := p.recordLogin(ctx, &user, creds.IPAddress); err != nil {
		metrics.AuthAttempts.WithLabelValues("error").Inc()
		return nil, err
	}

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	return &user, nil
}

func (p *LocalProvider) recordLogin(ctx context.Context, user *models.User, ip string) error {
	now := p.now()

	updates := map[string]any{
		"last_login_at": now,
	}
	if ip = strings.TrimSpace(ip); ip != "" {
		updates["last_login_ip"] = ip
	}

	if err := p.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
		return fmt.Errorf("local provider: record login: %w", err)
	}

	user.LastLoginAt = &now
	if ip != "" {
		user.LastLoginIP = ip
	}

	return nil
}
