package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ethanmsmith/whisperbox/internal/models"
	"github.com/ethanmsmith/whisperbox/pkg/crypto"
	"github.com/ethanmsmith/whisperbox/pkg/logger"
	"github.com/ethanmsmith/whisperbox/pkg/mail"
	"github.com/ethanmsmith/whisperbox/pkg/metrics"
)

// DefaultVerificationExpiry is how long a verification link stays valid.
const DefaultVerificationExpiry = 6 * time.Hour

var (
	// ErrVerificationNotFound means no pending verification exists for the
	// user, either because the account was already verified or never signed up.
	ErrVerificationNotFound = errors.New("verification: not found")
	// ErrVerificationExpired means the link outlived its expiry. The pending
	// account is removed so the address can sign up again.
	ErrVerificationExpired = errors.New("verification: expired")
	// ErrVerificationInvalid means the unique string did not match the
	// stored record.
	ErrVerificationInvalid = errors.New("verification: invalid")
)

// VerificationConfig describes tunable behaviour for the VerificationService.
type VerificationConfig struct {
	Expiry  time.Duration
	BaseURL string
	Clock   func() time.Time
}

// VerificationService issues and consumes email verification challenges.
// The unique string mailed to the user is stored only as a bcrypt hash, so
// records are looked up by user id and compared rather than queried by token.
type VerificationService struct {
	db      *gorm.DB
	mailer  mail.Mailer
	expiry  time.Duration
	baseURL string
	now     func() time.Time
}

// NewVerificationService constructs the verification service.
func NewVerificationService(db *gorm.DB, mailer mail.Mailer, cfg VerificationConfig) (*VerificationService, error) {
	if db == nil {
		return nil, errors.New("verification service: db is required")
	}
	if mailer == nil {
		return nil, errors.New("verification service: mailer is required")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("verification service: base url is required")
	}

	expiry := cfg.Expiry
	if expiry <= 0 {
		expiry = DefaultVerificationExpiry
	}

	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	return &VerificationService{
		db:      db,
		mailer:  mailer,
		expiry:  expiry,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		now:     clock,
	}, nil
}

// Issue creates a fresh verification record for the user and mails the link.
// Any earlier pending record is replaced so only one link is live at a time.
func (s *VerificationService) Issue(ctx context.Context, user *models.User) error {
	if user == nil || user.ID == "" {
		return errors.New("verification service: user is required")
	}

	uniqueString := uuid.NewString() + user.ID

	hash, err := crypto.HashPassword(uniqueString)
	if err != nil {
		metrics.VerificationEmails.WithLabelValues("error").Inc()
		return fmt.Errorf("verification service: hash unique string: %w", err)
	}

	now := s.now()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", user.ID).
			Delete(&models.VerificationToken{}).Error; err != nil {
			return fmt.Errorf("delete previous record: %w", err)
		}

		record := &models.VerificationToken{
			UserID:    user.ID,
			TokenHash: hash,
			ExpiresAt: now.Add(s.expiry),
		}
		if err := tx.Create(record).Error; err != nil {
			return fmt.Errorf("create record: %w", err)
		}
		return nil
	})
	if err != nil {
		metrics.VerificationEmails.WithLabelValues("error").Inc()
		return fmt.Errorf("verification service: store record: %w", err)
	}

	link := fmt.Sprintf("%s/verify/%s/%s", s.baseURL, user.ID, uniqueString)

	message := mail.Message{
		To:      []string{user.Email},
		Subject: "Verify Your Email",
		Body: fmt.Sprintf(
			`<p>Verify your email address to complete the signup and log into your account.</p>`+
				`<p>This link <b>expires in 6 hours</b>.</p>`+
				`<p>Press <a href=%q>here</a> to proceed.</p>`, link),
		HTML: true,
	}

	if err := s.mailer.Send(ctx, message); err != nil {
		metrics.VerificationEmails.WithLabelValues("error").Inc()
		return fmt.Errorf("verification service: send email: %w", err)
	}

	logger.Info("verification email sent",
		zap.String("user_id", user.ID),
		zap.Time("expires_at", now.Add(s.expiry)))

	metrics.VerificationEmails.WithLabelValues("sent").Inc()
	return nil
}

// Consume checks the unique string from a verification link against the
// pending record for the user. Expired links remove both the record and the
// unverified account so the address can register again.
func (s *VerificationService) Consume(ctx context.Context, userID, uniqueString string) error {
	userID = strings.TrimSpace(userID)
	uniqueString = strings.TrimSpace(uniqueString)
	if userID == "" || uniqueString == "" {
		metrics.Verifications.WithLabelValues("missing").Inc()
		return ErrVerificationNotFound
	}

	var record models.VerificationToken
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		metrics.Verifications.WithLabelValues("missing").Inc()
		return ErrVerificationNotFound
	}
	if err != nil {
		metrics.Verifications.WithLabelValues("error").Inc()
		return fmt.Errorf("verification service: find record: %w", err)
	}

	if record.ExpiresAt.Before(s.now()) {
		if err := s.removeExpired(ctx, &record); err != nil {
			metrics.Verifications.WithLabelValues("error").Inc()
			return err
		}
		metrics.Verifications.WithLabelValues("expired").Inc()
		return ErrVerificationExpired
	}

	if !crypto.VerifyPassword(record.TokenHash, uniqueString) {
		metrics.Verifications.WithLabelValues("invalid").Inc()
		return ErrVerificationInvalid
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.User{}).
			Where("id = ?", userID).
			Update("verified", true).Error; err != nil {
			return fmt.Errorf("mark verified: %w", err)
		}
		if err := tx.Delete(&record).Error; err != nil {
			return fmt.Errorf("delete record: %w", err)
		}
		return nil
	})
	if err != nil {
		metrics.Verifications.WithLabelValues("error").Inc()
		return fmt.Errorf("verification service: finalise: %w", err)
	}

	logger.Info("email verified", zap.String("user_id", userID))

	metrics.Verifications.WithLabelValues("verified").Inc()
	return nil
}

// CleanupExpired removes verification records past their expiry together
// with the unverified accounts behind them. It backs the scheduled sweep so
// abandoned signups do not hold email addresses hostage.
func (s *VerificationService) CleanupExpired(ctx context.Context) (int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	now := s.now()

	var expired []models.VerificationToken
	if err := s.db.WithContext(ctx).
		Where("expires_at < ?", now).
		Find(&expired).Error; err != nil {
		return 0, fmt.Errorf("verification service: list expired: %w", err)
	}

	var removed int64
	for i := range expired {
		if err := s.removeExpired(ctx, &expired[i]); err != nil {
			return removed, err
		}
		removed++
	}

	return removed, nil
}

func (s *VerificationService) removeExpired(ctx context.Context, record *models.VerificationToken) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(record).Error; err != nil {
			return fmt.Errorf("delete record: %w", err)
		}
		if err := tx.Where("id = ? AND verified = ?", record.UserID, false).
			Delete(&models.User{}).Error; err != nil {
			return fmt.Errorf("delete unverified user: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("verification service: remove expired: %w", err)
	}

	logger.Info("expired verification removed", zap.String("user_id", record.UserID))
	return nil
}
