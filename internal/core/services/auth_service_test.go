package services

import (
	"testing"
	"time"

	"telecare/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthService_IssueAndValidate(t *testing.T) {
	clock := newFakeClock()
	auth := NewAuthService("test-secret", time.Hour, clock.Now)

	token, expires, err := auth.IssueToken("s1", "dr", domain.RoleProvider)
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(time.Hour), expires)

	claims, err := auth.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionID("s1"), claims.SessionID)
	assert.Equal(t, domain.ParticipantID("dr"), claims.ParticipantID)
	assert.Equal(t, domain.RoleProvider, claims.Role)
}

func TestAuthService_Expired(t *testing.T) {
	clock := newFakeClock()
	auth := NewAuthService("test-secret", time.Minute, clock.Now)

	token, _, err := auth.IssueToken("s1", "pt", domain.RolePatient)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	_, err = auth.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestAuthService_WrongSecret(t *testing.T) {
	clock := newFakeClock()
	token, _, err := NewAuthService("secret-a", time.Hour, clock.Now).IssueToken("s1", "pt", domain.RolePatient)
	require.NoError(t, err)

	_, err = NewAuthService("secret-b", time.Hour, clock.Now).ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewAuthService("secret-a", time.Hour, clock.Now).ValidateToken("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
