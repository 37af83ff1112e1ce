package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/ethanmsmith/whisperbox/internal/auth/providers"
	"github.com/ethanmsmith/whisperbox/internal/models"
	"github.com/ethanmsmith/whisperbox/pkg/crypto"
	apperrors "github.com/ethanmsmith/whisperbox/pkg/errors"
	"github.com/ethanmsmith/whisperbox/pkg/metrics"
)

var (
	namePattern  = regexp.MustCompile(`^[a-zA-Z ]*$`)
	emailPattern = regexp.MustCompile(`^[\w-.]+@([\w-]+\.)+[\w-]{2,4}$`)
)

const dateOfBirthLayout = "2006-01-02"

// RegisterInput carries the raw signup form values. Validation happens in
// Register so failures surface in a fixed order.
type RegisterInput struct {
	Name        string
	Email       string
	DateOfBirth string
	Password    string
}

// VerificationIssuer issues email verification challenges for new accounts.
type VerificationIssuer interface {
	Issue(ctx context.Context, user *models.User) error
}

// AccountService owns user registration and account lookups.
type AccountService struct {
	db           *gorm.DB
	verification VerificationIssuer
}

// NewAccountService constructs the account service. The verification issuer
// is required because every local signup triggers a verification email.
func NewAccountService(db *gorm.DB, verification VerificationIssuer) (*AccountService, error) {
	if db == nil {
		return nil, errors.New("account service: db is required")
	}
	if verification == nil {
		return nil, errors.New("account service: verification issuer is required")
	}

	return &AccountService{
		db:           db,
		verification: verification,
	}, nil
}

// Register validates the signup input, creates an unverified user, and sends
// the verification email. Checks run in a fixed order and stop at the first
// failure.
func (s *AccountService) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	name := strings.TrimSpace(input.Name)
	email := strings.ToLower(strings.TrimSpace(input.Email))
	dateOfBirth := strings.TrimSpace(input.DateOfBirth)
	password := input.Password

	if name == "" || email == "" || dateOfBirth == "" || password == "" {
		metrics.Registrations.WithLabelValues("invalid").Inc()
		return nil, apperrors.NewBadRequest("Empty input fields!")
	}
	if !namePattern.MatchString(name) {
		metrics.Registrations.WithLabelValues("invalid").Inc()
		return nil, apperrors.NewBadRequest("Invalid name entered")
	}
	if !emailPattern.MatchString(email) {
		metrics.Registrations.WithLabelValues("invalid").Inc()
		return nil, apperrors.NewBadRequest("Invalid email entered")
	}
	dob, err := time.Parse(dateOfBirthLayout, dateOfBirth)
	if err != nil {
		metrics.Registrations.WithLabelValues("invalid").Inc()
		return nil, apperrors.NewBadRequest("Invalid date of birth entered")
	}
	if len(password) < 8 {
		metrics.Registrations.WithLabelValues("invalid").Inc()
		return nil, apperrors.NewBadRequest("Password is too short!")
	}

	taken, err := s.emailTaken(ctx, email)
	if err != nil {
		metrics.Registrations.WithLabelValues("error").Inc()
		return nil, err
	}
	if taken {
		metrics.Registrations.WithLabelValues("duplicate").Inc()
		return nil, apperrors.ErrEmailTaken
	}

	hashed, err := crypto.HashPassword(password)
	if err != nil {
		metrics.Registrations.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("account service: hash password: %w", err)
	}

	user := &models.User{
		Name:         name,
		Email:        email,
		Password:     hashed,
		DateOfBirth:  &dob,
		Verified:     false,
		AuthProvider: "local",
	}

	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		metrics.Registrations.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("account service: create user: %w", err)
	}

	if err := s.verification.Issue(ctx, user); err != nil {
		metrics.Registrations.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("account service: issue verification: %w", err)
	}

	metrics.Registrations.WithLabelValues("success").Inc()
	return user, nil
}

// EmailRegistered reports whether an account already exists for the
// address.
func (s *AccountService) EmailRegistered(ctx context.Context, email string) (bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !emailPattern.MatchString(email) {
		return false, nil
	}

	return s.emailTaken(ctx, email)
}

// GetUser loads a user by id.
func (s *AccountService) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("id = ?", userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("account service: find user: %w", err)
	}
	return &user, nil
}

// EnsureFederatedUser resolves the account backing a federated identity,
// creating it on first login. Accounts created this way are verified
// immediately because the identity provider already attests the address.
func (s *AccountService) EnsureFederatedUser(ctx context.Context, identity *providers.Identity) (*models.User, error) {
	if identity == nil || identity.Email == "" || identity.Subject == "" {
		return nil, errors.New("account service: incomplete identity")
	}

	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", identity.Email).Take(&user).Error
	switch {
	case err == nil:
		updates := map[string]any{}
		if user.AuthSubject == "" {
			updates["auth_provider"] = identity.Provider
			updates["auth_subject"] = identity.Subject
		}
		if !user.Verified && identity.EmailVerified {
			updates["verified"] = true
		}
		if len(updates) > 0 {
			if err := s.db.WithContext(ctx).Model(&user).Updates(updates).Error; err != nil {
				return nil, fmt.Errorf("account service: link federated user: %w", err)
			}
			if _, ok := updates["verified"]; ok {
				user.Verified = true
			}
		}
		return &user, nil

	case errors.Is(err, gorm.ErrRecordNotFound):
		name := identity.Name
		if name == "" {
			name = identity.Email
		}
		user = models.User{
			Name:         name,
			Email:        identity.Email,
			Verified:     true,
			AuthProvider: identity.Provider,
			AuthSubject:  identity.Subject,
		}
		if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
			return nil, fmt.Errorf("account service: create federated user: %w", err)
		}
		return &user, nil

	default:
		return nil, fmt.Errorf("account service: find federated user: %w", err)
	}
}

func (s *AccountService) emailTaken(ctx context.Context, email string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("email = ?", email).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("account service: count users: %w", err)
	}
	return count > 0, nil
}
