package auth

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ethanmsmith/whisperbox/internal/database/testutil"
	"github.com/ethanmsmith/whisperbox/internal/models"
)

func newSessionTestServices(t *testing.T, clock func() time.Time) (*SessionService, *gorm.DB) {
	t.Helper()

	db := testutil.MustOpenTestDB(t)

	jwtService, err := NewJWTService(JWTConfig{Secret: "test-secret", Issuer: "whisperbox"})
	require.NoError(t, err)

	svc, err := NewSessionService(db, jwtService, SessionConfig{
		RefreshTokenTTL: time.Hour,
		Clock:           clock,
	})
	require.NoError(t, err)

	return svc, db
}

func seedSessionUser(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()

	user := &models.User{
		Name:     "Test User",
		Email:    "sessions@example.com",
		Password: "irrelevant",
		Verified: true,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func TestCreateSessionIssuesTokenPair(t *testing.T) {
	svc, db := newSessionTestServices(t, nil)
	user := seedSessionUser(t, db)

	pair, session, err := svc.CreateSession(user.ID, SessionMetadata{
		IPAddress: "10.0.0.1",
		UserAgent: "test-agent",
		Claims:    map[string]any{"auth_provider": "local"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.Equal(t, user.ID, session.UserID)
	require.Equal(t, "10.0.0.1", session.IPAddress)

	var stored models.Session
	require.NoError(t, db.Where("id = ?", session.ID).Take(&stored).Error)

	var claims map[string]any
	require.NoError(t, json.Unmarshal(stored.Claims, &claims))
	require.Equal(t, "local", claims["auth_provider"])
}

func TestCreateForSubjectMergesProviderClaims(t *testing.T) {
	svc, db := newSessionTestServices(t, nil)
	user := seedSessionUser(t, db)

	_, session, err := svc.CreateForSubject(AuthSubject{
		UserID:     user.ID,
		Provider:   "google",
		ExternalID: "google-sub-123",
		Email:      "Sessions@Example.com",
	}, SessionMetadata{})
	require.NoError(t, err)

	var claims map[string]any
	require.NoError(t, json.Unmarshal(session.Claims, &claims))
	require.Equal(t, "google", claims["auth_provider"])
	require.Equal(t, "google-sub-123", claims["auth_subject"])
	require.Equal(t, "sessions@example.com", claims["auth_email"])
}

func TestRefreshSessionRotatesToken(t *testing.T) {
	svc, db := newSessionTestServices(t, nil)
	user := seedSessionUser(t, db)

	pair, session, err := svc.CreateSession(user.ID, SessionMetadata{})
	require.NoError(t, err)

	newPair, refreshed, err := svc.RefreshSession(pair.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, session.ID, refreshed.ID)
	require.NotEqual(t, pair.RefreshToken, newPair.RefreshToken)

	// The old token must no longer be accepted.
	_, _, err = svc.RefreshSession(pair.RefreshToken)
	require.ErrorIs(t, err, ErrSessionNotFound)

	// The rotated token must work.
	_, _, err = svc.RefreshSession(newPair.RefreshToken)
	require.NoError(t, err)
}

func TestRefreshSessionRejectsRevoked(t *testing.T) {
	svc, db := newSessionTestServices(t, nil)
	user := seedSessionUser(t, db)

	pair, session, err := svc.CreateSession(user.ID, SessionMetadata{})
	require.NoError(t, err)

	require.NoError(t, svc.RevokeSession(session.ID))

	_, _, err = svc.RefreshSession(pair.RefreshToken)
	require.ErrorIs(t, err, ErrSessionRevoked)
}

func TestRefreshSessionRejectsExpired(t *testing.T) {
	current := time.Now()
	svc, db := newSessionTestServices(t, func() time.Time { return current })
	user := seedSessionUser(t, db)

	pair, _, err := svc.CreateSession(user.ID, SessionMetadata{})
	require.NoError(t, err)

	current = current.Add(2 * time.Hour)

	_, _, err = svc.RefreshSession(pair.RefreshToken)
	require.ErrorIs(t, err, ErrSessionExpired)
}

func TestValidateSession(t *testing.T) {
	svc, db := newSessionTestServices(t, nil)
	user := seedSessionUser(t, db)

	_, session, err := svc.CreateSession(user.ID, SessionMetadata{})
	require.NoError(t, err)

	live, err := svc.ValidateSession(session.ID)
	require.NoError(t, err)
	require.Equal(t, user.ID, live.UserID)

	require.NoError(t, svc.RevokeSession(session.ID))

	_, err = svc.ValidateSession(session.ID)
	require.ErrorIs(t, err, ErrSessionRevoked)

	_, err = svc.ValidateSession("no-such-session")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRevokeSessionTwiceReportsNotFound(t *testing.T) {
	svc, db := newSessionTestServices(t, nil)
	user := seedSessionUser(t, db)

	_, session, err := svc.CreateSession(user.ID, SessionMetadata{})
	require.NoError(t, err)

	require.NoError(t, svc.RevokeSession(session.ID))
	require.ErrorIs(t, svc.RevokeSession(session.ID), ErrSessionNotFound)
}

func TestRevokeUserSessions(t *testing.T) {
	svc, db := newSessionTestServices(t, nil)
	user := seedSessionUser(t, db)

	for range 3 {
		_, _, err := svc.CreateSession(user.ID, SessionMetadata{})
		require.NoError(t, err)
	}

	revoked, err := svc.RevokeUserSessions(user.ID)
	require.NoError(t, err)
	require.EqualValues(t, 3, revoked)

	var remaining int64
	require.NoError(t, db.Model(&models.Session{}).
		Where("user_id = ? AND revoked_at IS NULL", user.ID).
		Count(&remaining).Error)
	require.Zero(t, remaining)
}

func TestCleanupExpiredRemovesStaleSessions(t *testing.T) {
	current := time.Now()
	svc, db := newSessionTestServices(t, func() time.Time { return current })
	user := seedSessionUser(t, db)

	_, expired, err := svc.CreateSession(user.ID, SessionMetadata{})
	require.NoError(t, err)

	current = current.Add(2 * time.Hour)

	_, live, err := svc.CreateSession(user.ID, SessionMetadata{})
	require.NoError(t, err)

	removed, err := svc.CleanupExpired(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)

	var count int64
	require.NoError(t, db.Model(&models.Session{}).
		Where("id = ?", expired.ID).Count(&count).Error)
	require.Zero(t, count)

	_, err = svc.ValidateSession(live.ID)
	require.NoError(t, err)
}

func TestActiveSessionCountTracksStore(t *testing.T) {
	current := time.Now()
	svc, db := newSessionTestServices(t, func() time.Time { return current })
	user := seedSessionUser(t, db)

	require.Zero(t, svc.ActiveSessionCount())

	_, first, err := svc.CreateSession(user.ID, SessionMetadata{})
	require.NoError(t, err)
	_, _, err = svc.CreateSession(user.ID, SessionMetadata{})
	require.NoError(t, err)
	require.EqualValues(t, 2, svc.ActiveSessionCount())

	require.NoError(t, svc.RevokeSession(first.ID))
	require.EqualValues(t, 1, svc.ActiveSessionCount())

	// Expiry drops sessions from the count without any cleanup pass, so
	// the gauge cannot drift from the store.
	current = current.Add(2 * time.Hour)
	require.Zero(t, svc.ActiveSessionCount())
}
