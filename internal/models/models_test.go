package models_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ethanmsmith/whisperbox/internal/database/testutil"
	"github.com/ethanmsmith/whisperbox/internal/models"
)

func TestUserGetsUUIDOnCreate(t *testing.T) {
	db := testutil.MustOpenTestDB(t)

	user := &models.User{Name: "N", Email: "uuid@example.com", Password: "x"}
	require.NoError(t, db.Create(user).Error)
	require.NotEmpty(t, user.ID)
	require.False(t, user.Verified)
	require.Equal(t, "local", user.AuthProvider)
}

func TestUserEmailIsUnique(t *testing.T) {
	db := testutil.MustOpenTestDB(t)

	require.NoError(t, db.Create(&models.User{
		Name: "A", Email: "dup@example.com", Password: "x",
	}).Error)

	err := db.Create(&models.User{
		Name: "B", Email: "dup@example.com", Password: "y",
	}).Error
	require.Error(t, err)
}

func TestVerificationTokenDefaults(t *testing.T) {
	db := testutil.MustOpenTestDB(t)

	user := &models.User{Name: "N", Email: "vt@example.com", Password: "x"}
	require.NoError(t, db.Create(user).Error)

	token := &models.VerificationToken{
		UserID:    user.ID,
		TokenHash: "hash",
		ExpiresAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, db.Create(token).Error)
	require.NotEmpty(t, token.ID)
	require.False(t, token.CreatedAt.IsZero())
}

func TestSessionRefreshTokenIsUnique(t *testing.T) {
	db := testutil.MustOpenTestDB(t)

	user := &models.User{Name: "N", Email: "s@example.com", Password: "x"}
	require.NoError(t, db.Create(user).Error)

	first := &models.Session{
		UserID:       user.ID,
		RefreshToken: "same-token",
		ExpiresAt:    time.Now().Add(time.Hour),
		LastUsedAt:   time.Now(),
	}
	require.NoError(t, db.Create(first).Error)

	second := &models.Session{
		UserID:       user.ID,
		RefreshToken: "same-token",
		ExpiresAt:    time.Now().Add(time.Hour),
		LastUsedAt:   time.Now(),
	}
	require.Error(t, db.Create(second).Error)
}
