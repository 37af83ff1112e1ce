package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/ethanmsmith/whisperbox/internal/models"
	"github.com/ethanmsmith/whisperbox/pkg/crypto"
	"github.com/ethanmsmith/whisperbox/pkg/logger"
	"github.com/ethanmsmith/whisperbox/pkg/metrics"
)

// DefaultRefreshTokenTTL is the fallback refresh token lifetime.
const DefaultRefreshTokenTTL = 30 * 24 * time.Hour

// SessionConfig describes tunable behaviour for the SessionService.
type SessionConfig struct {
	RefreshTokenTTL time.Duration
	RefreshLength   int
	Clock           func() time.Time
}

// SessionMetadata captures contextual information about the client.
type SessionMetadata struct {
	IPAddress string
	UserAgent string
	Claims    map[string]any
}

// TokenPair represents an access token and refresh token pair.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// AuthSubject represents the authenticated principal for whom a session is being issued.
type AuthSubject struct {
	UserID     string
	Provider   string
	ExternalID string
	Email      string
	Claims     map[string]any
}

var (
	// ErrSessionNotFound indicates that no session matches the provided token or identifier.
	ErrSessionNotFound = errors.New("session: not found")
	// ErrSessionRevoked marks a session that has been revoked by the user.
	ErrSessionRevoked = errors.New("session: revoked")
	// ErrSessionExpired signals that a refresh token has reached its expiry.
	ErrSessionExpired = errors.New("session: expired")
	// ErrSessionInvalidToken is returned when the supplied refresh token is malformed.
	ErrSessionInvalidToken = errors.New("session: invalid token")
)

// SessionService manages creation, rotation, and revocation of user sessions.
type SessionService struct {
	db         *gorm.DB
	jwt        *JWTService
	refreshTTL time.Duration
	tokenLen   int
	now        func() time.Time
}

// NewSessionService constructs a session manager backed by the provided database and JWT service.
func NewSessionService(db *gorm.DB, jwtService *JWTService, cfg SessionConfig) (*SessionService, error) {
	if db == nil {
		return nil, errors.New("session service: db is required")
	}
	if jwtService == nil {
		return nil, errors.New("session service: jwt service is required")
	}

	ttl := cfg.RefreshTokenTTL
	if ttl <= 0 {
		ttl = DefaultRefreshTokenTTL
	}

	length := cfg.RefreshLength
	if length <= 0 {
		length = 48
	}

	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	service := &SessionService{
		db:         db,
		jwt:        jwtService,
		refreshTTL: ttl,
		tokenLen:   length,
		now:        clock,
	}
	metrics.SetActiveSessionsSource(func() float64 {
		return float64(service.ActiveSessionCount())
	})

	return service, nil
}

// ActiveSessionCount counts sessions that are neither revoked nor past
// their expiry. It backs the active-sessions gauge.
func (s *SessionService) ActiveSessionCount() int64 {
	var count int64
	err := s.db.Model(&models.Session{}).
		Where("revoked_at IS NULL AND expires_at > ?", s.now()).
		Count(&count).Error
	if err != nil {
		logger.Error("count active sessions", zap.Error(err))
		return 0
	}
	return count
}

// CreateSession generates a new session and issues a fresh token pair.
func (s *SessionService) CreateSession(userID string, meta SessionMetadata) (TokenPair, *models.Session, error) {
	if strings.TrimSpace(userID) == "" {
		return TokenPair{}, nil, errors.New("session service: user id is required")
	}

	refreshToken, err := crypto.GenerateToken(s.tokenLen)
	if err != nil {
		return TokenPair{}, nil, fmt.Errorf("session service: generate refresh token: %w", err)
	}

	now := s.now()

	session := &models.Session{
		UserID:       userID,
		RefreshToken: refreshToken,
		IPAddress:    strings.TrimSpace(meta.IPAddress),
		UserAgent:    strings.TrimSpace(meta.UserAgent),
		ExpiresAt:    now.Add(s.refreshTTL),
		LastUsedAt:   now,
	}

	if len(meta.Claims) > 0 {
		raw, marshalErr := json.Marshal(meta.Claims)
		if marshalErr != nil {
			return TokenPair{}, nil, fmt.Errorf("session service: encode claims: %w", marshalErr)
		}
		session.Claims = datatypes.JSON(raw)
	}

	if err := s.db.Create(session).Error; err != nil {
		return TokenPair{}, nil, fmt.Errorf("session service: create session: %w", err)
	}

	accessToken, err := s.jwt.GenerateAccessToken(AccessTokenInput{
		UserID:    userID,
		SessionID: session.ID,
		Metadata:  cloneMetadata(meta.Claims),
	})
	if err != nil {
		return TokenPair{}, nil, fmt.Errorf("session service: generate access token: %w", err)
	}

	return TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, session, nil
}

// CreateForSubject issues a session for the supplied authenticated subject
// while enriching metadata with identity provider attributes.
func (s *SessionService) CreateForSubject(subject AuthSubject, meta SessionMetadata) (TokenPair, *models.Session, error) {
	if strings.TrimSpace(subject.UserID) == "" {
		return TokenPair{}, nil, errors.New("session service: subject user id is required")
	}

	merged := make(map[string]any)
	for k, v := range meta.Claims {
		if k != "" {
			merged[k] = v
		}
	}
	for k, v := range subject.Claims {
		if k != "" {
			merged[k] = v
		}
	}

	if provider := strings.TrimSpace(subject.Provider); provider != "" {
		merged["auth_provider"] = provider
	}
	if externalID := strings.TrimSpace(subject.ExternalID); externalID != "" {
		merged["auth_subject"] = externalID
	}
	if email := strings.TrimSpace(subject.Email); email != "" {
		merged["auth_email"] = strings.ToLower(email)
	}

	meta.Claims = merged
	return s.CreateSession(subject.UserID, meta)
}

// RefreshSession rotates the refresh token and issues a new access token.
func (s *SessionService) RefreshSession(refreshToken string) (TokenPair, *models.Session, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return TokenPair{}, nil, ErrSessionInvalidToken
	}

	var session models.Session
	err := s.db.Where("refresh_token = ?", refreshToken).Take(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return TokenPair{}, nil, ErrSessionNotFound
	}
	if err != nil {
		return TokenPair{}, nil, fmt.Errorf("session service: find session: %w", err)
	}

	now := s.now()

	if session.RevokedAt != nil {
		return TokenPair{}, nil, ErrSessionRevoked
	}

	if session.ExpiresAt.Before(now) {
		return TokenPair{}, nil, ErrSessionExpired
	}

	newRefresh, err := crypto.GenerateToken(s.tokenLen)
	if err != nil {
		return TokenPair{}, nil, fmt.Errorf("session service: generate refresh token: %w", err)
	}

	updates := map[string]any{
		"refresh_token": newRefresh,
		"expires_at":    now.Add(s.refreshTTL),
		"last_used_at":  now,
	}

	if err := s.db.Model(&session).Updates(updates).Error; err != nil {
		return TokenPair{}, nil, fmt.Errorf("session service: update session: %w", err)
	}

	session.RefreshToken = newRefresh
	session.ExpiresAt = updates["expires_at"].(time.Time)
	session.LastUsedAt = now

	accessToken, err := s.jwt.GenerateAccessToken(AccessTokenInput{
		UserID:    session.UserID,
		SessionID: session.ID,
	})
	if err != nil {
		return TokenPair{}, nil, fmt.Errorf("session service: generate access token: %w", err)
	}

	return TokenPair{
		AccessToken:  accessToken,
		RefreshToken: newRefresh,
	}, &session, nil
}

// ValidateSession confirms that the referenced session is still live.
func (s *SessionService) ValidateSession(sessionID string) (*models.Session, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrSessionInvalidToken
	}

	var session models.Session
	err := s.db.Where("id = ?", sessionID).Take(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session service: find session: %w", err)
	}

	if session.RevokedAt != nil {
		return nil, ErrSessionRevoked
	}
	if session.ExpiresAt.Before(s.now()) {
		return nil, ErrSessionExpired
	}

	return &session, nil
}

// RevokeSession marks a session as revoked, preventing further refresh operations.
func (s *SessionService) RevokeSession(sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrSessionInvalidToken
	}

	now := s.now()

	result := s.db.Model(&models.Session{}).
		Where("id = ? AND revoked_at IS NULL", sessionID).
		Updates(map[string]any{
			"revoked_at": now,
		})

	if result.Error != nil {
		return fmt.Errorf("session service: revoke session: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return ErrSessionNotFound
	}

	return nil
}

// RevokeUserSessions revokes every live session belonging to the user.
func (s *SessionService) RevokeUserSessions(userID string) (int64, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, errors.New("session service: user id is required")
	}

	result := s.db.Model(&models.Session{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Updates(map[string]any{
			"revoked_at": s.now(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("session service: revoke user sessions: %w", result.Error)
	}

	return result.RowsAffected, nil
}

// CleanupExpired removes expired or revoked sessions.
func (s *SessionService) CleanupExpired(ctx context.Context) (int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	result := s.db.WithContext(ctx).
		Where("expires_at < ?", s.now()).
		Or("revoked_at IS NOT NULL").
		Delete(&models.Session{})
	if result.Error != nil {
		return 0, fmt.Errorf("session service: cleanup expired sessions: %w", result.Error)
	}

	return result.RowsAffected, nil
}
