package services

import (
	"context"
	"testing"

	"telecare/internal/core/domain"
	"telecare/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func claimsFor(id domain.ParticipantID, role domain.Role) *domain.ParticipantClaims {
	return &domain.ParticipantClaims{SessionID: "s-access", ParticipantID: id, Role: role}
}

func TestAuthorize_BeforeStart(t *testing.T) {
	ts := newTestSession(t, testConfig("s-access"), Dependencies{})

	assert.NoError(t, Authorize(ts.svc, claimsFor("dr", domain.RoleProvider), ActionStartSession, ""))
	err := Authorize(ts.svc, claimsFor("pt", domain.RolePatient), ActionStartSession, "")
	assert.True(t, errors.IsCode(err, errors.ErrCodeInsufficientPermissions))

	assert.NoError(t, Authorize(ts.svc, claimsFor("dr", domain.RoleProvider), ActionUpdateMedia, ""))
	err = Authorize(ts.svc, claimsFor("pt", domain.RolePatient), ActionUpdateMedia, "")
	assert.True(t, errors.IsCode(err, errors.ErrCodeParticipantNotFound))
}

func TestAuthorize_Started(t *testing.T) {
	ts := startedSession(t, testConfig("s-access"), Dependencies{})
	dr := claimsFor("dr", domain.RoleProvider)
	pt := claimsFor("pt", domain.RolePatient)

	tests := []struct {
		name   string
		claims *domain.ParticipantClaims
		action Action
		target domain.ParticipantID
		code   errors.ErrorCode
	}{
		{"provider ends", dr, ActionEndSession, "", ""},
		{"patient cannot end", pt, ActionEndSession, "", errors.ErrCodeInsufficientPermissions},
		{"patient cannot pause", pt, ActionPauseSession, "", errors.ErrCodeInsufficientPermissions},
		{"patient minimizes", pt, ActionMinimizeSession, "", ""},
		{"patient updates media", pt, ActionUpdateMedia, "", ""},
		{"patient leaves", pt, ActionRemoveParticipant, "pt", ""},
		{"patient cannot remove provider", pt, ActionRemoveParticipant, "dr", errors.ErrCodeInsufficientPermissions},
		{"provider removes patient", dr, ActionRemoveParticipant, "pt", ""},
		{"patient cannot stop recording", pt, ActionStopRecording, "", errors.ErrCodeInsufficientPermissions},
		{"patient cannot read compliance", pt, ActionViewCompliance, "", errors.ErrCodeInsufficientPermissions},
		{"provider reads compliance", dr, ActionViewCompliance, "", ""},
		{"patient views state", pt, ActionViewState, "", ""},
		{"stranger cannot view state", claimsFor("x", domain.RoleCaregiver), ActionViewState, "", errors.ErrCodeParticipantNotFound},
		{"unknown action", dr, Action("teleport"), "", errors.ErrCodeInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Authorize(ts.svc, tt.claims, tt.action, tt.target)
			if tt.code == "" {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.IsCode(err, tt.code), "got %v", err)
		})
	}
}

func TestAuthorize_ScreenShareOwner(t *testing.T) {
	ts := startedSession(t, testConfig("s-access"), Dependencies{})
	_, err := ts.svc.StartScreenShare(context.Background(), "pt")
	require.NoError(t, err)

	assert.NoError(t, Authorize(ts.svc, claimsFor("pt", domain.RolePatient), ActionStopScreenShare, ""))
	assert.NoError(t, Authorize(ts.svc, claimsFor("dr", domain.RoleProvider), ActionStopScreenShare, ""))
}

func TestAuthorize_ComplianceReadableAfterEnd(t *testing.T) {
	ts := startedSession(t, testConfig("s-access"), Dependencies{})
	_, err := ts.svc.EndSession(context.Background(), domain.EndReasonNormal)
	require.NoError(t, err)

	assert.NoError(t, Authorize(ts.svc, claimsFor("dr", domain.RoleProvider), ActionViewCompliance, ""))
	err = Authorize(ts.svc, claimsFor("dr", domain.RoleProvider), ActionEndSession, "")
	assert.True(t, errors.IsCode(err, errors.ErrCodeInsufficientPermissions))
}

func TestAuthorize_ForeignToken(t *testing.T) {
	ts := newTestSession(t, testConfig("s-access"), Dependencies{})
	err := Authorize(ts.svc, &domain.ParticipantClaims{SessionID: "other", ParticipantID: "dr", Role: domain.RoleProvider}, ActionStartSession, "")
	assert.True(t, errors.IsCode(err, errors.ErrCodeInsufficientPermissions))

	err = Authorize(ts.svc, nil, ActionStartSession, "")
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnauthorized))
}
