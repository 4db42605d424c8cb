package services

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"telecare/internal/core/domain"
	"telecare/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestNewTelehealthSessionService_Validation(t *testing.T) {
	_, err := NewTelehealthSessionService(testConfig("s1"), Dependencies{})
	assert.Error(t, err)

	cfg := testConfig("")
	_, err = NewTelehealthSessionService(cfg, Dependencies{Media: okMedia()})
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidInput))
}

func TestTelehealthSession_LedgerBracketsSession(t *testing.T) {
	ts := startedSession(t, testConfig("s1"), Dependencies{})
	ctx := context.Background()

	_, err := ts.svc.PauseSession(ctx)
	require.NoError(t, err)
	_, err = ts.svc.ResumeSession(ctx)
	require.NoError(t, err)

	result, err := ts.svc.EndSession(ctx, domain.EndReasonNormal)
	require.NoError(t, err)

	events := ts.svc.GetSessionEvents()
	require.NotEmpty(t, events)
	assert.Equal(t, domain.EventSessionStarted, events[0].Type)
	assert.Equal(t, domain.EventSessionEnded, events[len(events)-1].Type)
	for i, e := range events {
		assert.Equal(t, i+1, e.Sequence)
	}
	assert.Equal(t, events, result.Export.Events)
}

func TestTelehealthSession_NothingPrecedesSessionStarted(t *testing.T) {
	ts := newTestSession(t, testConfig("s1"), Dependencies{})
	ctx := context.Background()

	_, err := ts.svc.AddParticipant(ctx, domain.NewParticipant{ID: "dr", Name: "Dr", Role: domain.RoleProvider})
	assert.True(t, errors.IsCode(err, errors.ErrCodeSessionNotStarted))
	_, err = ts.svc.RecordConsent(ctx, "dr", domain.ConsentRecording, true)
	assert.True(t, errors.IsCode(err, errors.ErrCodeSessionNotStarted))
	_, err = ts.svc.ReportTechnicalIssue(ctx, "", "camera glitch")
	assert.True(t, errors.IsCode(err, errors.ErrCodeSessionNotStarted))
	_, err = ts.svc.EndSession(ctx, domain.EndReasonNormal)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidStateTransition))

	assert.Empty(t, ts.svc.GetSessionEvents())
}

func TestTelehealthSession_ChangeCarriesExactEvents(t *testing.T) {
	ts := newTestSession(t, testConfig("s1"), Dependencies{})
	ctx := context.Background()

	ch, err := ts.svc.StartSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionActive, ch.Session.Status)
	assert.Equal(t, []domain.EventType{domain.EventSessionStarted}, eventTypes(ch.Events))

	ch, err = ts.svc.AddParticipant(ctx, domain.NewParticipant{ID: "dr", Name: "Dr", Role: domain.RoleProvider})
	require.NoError(t, err)
	require.NotNil(t, ch.Participant)
	assert.Equal(t, domain.ParticipantID("dr"), ch.Participant.ID)
	assert.Equal(t, []domain.EventType{domain.EventParticipantJoined}, eventTypes(ch.Events))
	assert.Equal(t, 2, ch.Events[0].Sequence)

	ch, err = ts.svc.MinimizeSession(ctx)
	require.NoError(t, err)
	assert.True(t, ch.Session.IsMinimized)
	assert.Len(t, ch.Events, 1)
}

func TestTelehealthSession_StartFailureIsRetryable(t *testing.T) {
	media := new(MockMediaCapability)
	media.On("AcquireLocalMedia", mock.Anything, mock.Anything).Return(nil, stderrors.New("NotAllowedError"))
	ts := newTestSession(t, testConfig("s1"), Dependencies{Media: media})

	_, err := ts.svc.StartSession(context.Background())
	te := errors.GetTelehealthError(err)
	require.NotNil(t, te)
	assert.Equal(t, errors.ErrCodeMediaPermissionDenied, te.Code)
	assert.True(t, te.Retryable)
	assert.Equal(t, domain.SessionWaiting, ts.svc.GetSessionState().Session.Status)
	assert.Empty(t, ts.svc.GetSessionEvents())
}

// maxParticipants=2: provider and patient join, a third is refused, and only
// the provider may invite.
func TestTelehealthSession_CapacityAndInvitationScenario(t *testing.T) {
	cfg := testConfig("s1")
	cfg.MaxParticipants = 2
	ts := startedSession(t, cfg, Dependencies{})
	ctx := context.Background()

	_, err := ts.svc.AddParticipant(ctx, domain.NewParticipant{ID: "p3", Name: "Third", Role: domain.RoleCaregiver})
	assert.True(t, errors.IsCode(err, errors.ErrCodeSessionFull))
	assert.Len(t, ts.svc.GetParticipants(), 2)

	ch, err := ts.svc.InviteParticipant(ctx, domain.InviteRequest{
		InvitedBy: "dr", Email: "interp@example.org", Name: "Luis", Role: domain.RoleInterpreter,
	})
	require.NoError(t, err)
	require.NotNil(t, ch.Invitation)
	assert.Equal(t, domain.InvitationPending, ch.Invitation.Status)
	assert.Nil(t, ch.Delivered)

	_, err = ts.svc.InviteParticipant(ctx, domain.InviteRequest{
		InvitedBy: "pt", Email: "interp2@example.org", Name: "Ana", Role: domain.RoleInterpreter,
	})
	te := errors.GetTelehealthError(err)
	require.NotNil(t, te)
	assert.Equal(t, errors.ErrCodeInsufficientPermissions, te.Code)
	assert.Equal(t, errors.TypePermission, te.Type)
	assert.False(t, te.Retryable)
}

func TestTelehealthSession_RecordingScenario(t *testing.T) {
	ctx := context.Background()

	disabled := startedSession(t, testConfig("s1"), Dependencies{})
	_, err := disabled.svc.StartRecording(ctx, "pt")
	assert.True(t, errors.IsCode(err, errors.ErrCodeInsufficientPermissions))
	_, err = disabled.svc.StartRecording(ctx, "dr")
	assert.True(t, errors.IsCode(err, errors.ErrCodeRecordingDisabled))

	cfg := testConfig("s2")
	cfg.RecordingEnabled = true
	enabled := startedSession(t, cfg, Dependencies{})
	ch, err := enabled.svc.StartRecording(ctx, "dr")
	require.NoError(t, err)
	assert.True(t, ch.Session.IsRecording)

	events := enabled.svc.GetSessionEvents()
	consentAt := -1
	for i, e := range events {
		if e.Type == domain.EventConsentGiven {
			consentAt = i
		}
	}
	require.GreaterOrEqual(t, consentAt, 0)
	require.Less(t, consentAt+1, len(events))
	assert.Equal(t, domain.EventRecordingStarted, events[consentAt+1].Type)
}

func TestTelehealthSession_ConcurrentScreenShare(t *testing.T) {
	ts := startedSession(t, testConfig("s1"), Dependencies{})
	ctx := context.Background()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok       int
		rejected int
	)
	for _, id := range []domain.ParticipantID{"dr", "pt", "dr", "pt"} {
		wg.Add(1)
		go func(id domain.ParticipantID) {
			defer wg.Done()
			_, err := ts.svc.StartScreenShare(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.IsCode(err, errors.ErrCodeScreenShareActive):
				rejected++
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, 3, rejected)
	assert.True(t, ts.svc.GetSessionState().Session.HasActiveScreenShare)
	ts.media.AssertNumberOfCalls(t, "AcquireScreenCapture", 1)
}

func TestTelehealthSession_RemovingSharerStopsScreenShare(t *testing.T) {
	ts := startedSession(t, testConfig("s1"), Dependencies{})
	ctx := context.Background()

	_, err := ts.svc.StartScreenShare(ctx, "pt")
	require.NoError(t, err)
	ch, err := ts.svc.RemoveParticipant(ctx, "pt")
	require.NoError(t, err)
	assert.False(t, ch.Session.HasActiveScreenShare)
	assert.Equal(t, []domain.EventType{domain.EventParticipantLeft, domain.EventScreenShareStopped}, eventTypes(ch.Events))
}

func TestTelehealthSession_MuteParticipantByRole(t *testing.T) {
	tests := []struct {
		role    domain.Role
		allowed bool
	}{
		{domain.RoleProvider, true},
		{domain.RoleSpecialist, true},
		{domain.RolePatient, false},
		{domain.RoleInterpreter, false},
		{domain.RoleCaregiver, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			ts := startedSession(t, testConfig("s1"), Dependencies{})
			ctx := context.Background()
			_, err := ts.svc.AddParticipant(ctx, domain.NewParticipant{ID: "actor", Name: "Actor", Role: tt.role})
			require.NoError(t, err)

			ch, err := ts.svc.MuteParticipant(ctx, "pt", true, "actor")
			if !tt.allowed {
				assert.True(t, errors.IsCode(err, errors.ErrCodeInsufficientPermissions), "got %v", err)
				p, _ := ts.svc.GetParticipant("pt")
				assert.False(t, p.IsMuted)
				return
			}
			require.NoError(t, err)
			assert.True(t, ch.Participant.IsMuted)
			require.Len(t, ch.Events, 1)
			assert.Equal(t, domain.EventParticipantMuted, ch.Events[0].Type)
			assert.Equal(t, "actor", ch.Events[0].Data["mutedBy"])
		})
	}
}

func TestTelehealthSession_MuteParticipantErrors(t *testing.T) {
	ts := startedSession(t, testConfig("s1"), Dependencies{})
	ctx := context.Background()

	_, err := ts.svc.MuteParticipant(ctx, "pt", true, "ghost")
	assert.True(t, errors.IsCode(err, errors.ErrCodeParticipantNotFound))
	_, err = ts.svc.MuteParticipant(ctx, "ghost", true, "dr")
	assert.True(t, errors.IsCode(err, errors.ErrCodeParticipantNotFound))

	_, err = ts.svc.RemoveParticipant(ctx, "dr")
	require.NoError(t, err)
	_, err = ts.svc.MuteParticipant(ctx, "pt", true, "dr")
	assert.True(t, errors.IsCode(err, errors.ErrCodeInsufficientPermissions))
}

func TestTelehealthSession_InvitationDelivery(t *testing.T) {
	notifier := new(MockNotifier)
	notifier.On("Deliver", mock.Anything, mock.MatchedBy(func(inv domain.Invitation) bool {
		return inv.InviteeEmail == "ok@example.org"
	})).Return(nil)
	notifier.On("Deliver", mock.Anything, mock.Anything).Return(stderrors.New("smtp timeout"))
	ts := startedSession(t, testConfig("s1"), Dependencies{Notifier: notifier})
	ctx := context.Background()

	ch, err := ts.svc.InviteParticipant(ctx, domain.InviteRequest{
		InvitedBy: "dr", Email: "ok@example.org", Name: "Luis", Role: domain.RoleInterpreter,
	})
	require.NoError(t, err)
	require.NotNil(t, ch.Delivered)
	assert.True(t, *ch.Delivered)
	assert.Equal(t, []domain.EventType{domain.EventInvitationSent}, eventTypes(ch.Events))

	ch, err = ts.svc.InviteParticipant(ctx, domain.InviteRequest{
		InvitedBy: "dr", Email: "fail@example.org", Name: "Kai", Role: domain.RoleCaregiver,
	})
	require.NoError(t, err)
	require.NotNil(t, ch.Delivered)
	assert.False(t, *ch.Delivered)
	assert.Equal(t, []domain.EventType{domain.EventInvitationSent, domain.EventTechnicalIssue}, eventTypes(ch.Events))
	assert.Len(t, ts.svc.GetPendingInvitations(), 2)
	notifier.AssertNumberOfCalls(t, "Deliver", 2)
}

func TestTelehealthSession_AcceptAndDeclineInvitation(t *testing.T) {
	ts := startedSession(t, testConfig("s1"), Dependencies{})
	ctx := context.Background()

	first, err := ts.svc.InviteParticipant(ctx, domain.InviteRequest{
		InvitedBy: "dr", Email: "interp@example.org", Name: "Luis", Role: domain.RoleInterpreter,
	})
	require.NoError(t, err)
	second, err := ts.svc.InviteParticipant(ctx, domain.InviteRequest{
		InvitedBy: "dr", Email: "cg@example.org", Name: "Kai", Role: domain.RoleCaregiver,
	})
	require.NoError(t, err)

	ch, err := ts.svc.AcceptInvitation(ctx, first.Invitation.ID, "interp")
	require.NoError(t, err)
	assert.Equal(t, domain.InvitationAccepted, ch.Invitation.Status)
	assert.Equal(t, domain.RoleInterpreter, ch.Participant.Role)

	ch, err = ts.svc.DeclineInvitation(ctx, second.Invitation.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvitationDeclined, ch.Invitation.Status)
	assert.Empty(t, ch.Events)

	assert.Empty(t, ts.svc.GetPendingInvitations())
	assert.Len(t, ts.svc.ListInvitations(domain.InvitationFilter{}), 2)
}

func TestTelehealthSession_ExpiredInvitation(t *testing.T) {
	ts := startedSession(t, testConfig("s1"), Dependencies{})
	ctx := context.Background()

	ch, err := ts.svc.InviteParticipant(ctx, domain.InviteRequest{
		InvitedBy: "dr", Email: "interp@example.org", Name: "Luis", Role: domain.RoleInterpreter,
	})
	require.NoError(t, err)

	ts.clock.Advance(25 * time.Hour)
	_, err = ts.svc.AcceptInvitation(ctx, ch.Invitation.ID, "interp")
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvitationExpired))
	_, err = ts.svc.AcceptInvitation(ctx, ch.Invitation.ID, "interp")
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvitationAlreadyProcessed))
}

func TestTelehealthSession_UpdateParticipantPermissions(t *testing.T) {
	ts := startedSession(t, testConfig("s1"), Dependencies{})
	ctx := context.Background()

	ch, err := ts.svc.UpdateParticipantPermissions(ctx, "dr", "pt", domain.PermissionsPatch{CanRecordSession: boolPtr(true)})
	require.NoError(t, err)
	assert.True(t, ch.Participant.Permissions.CanRecordSession)
	assert.Equal(t, domain.EventParticipantPermissionsUpdated, ch.Events[0].Type)

	_, err = ts.svc.UpdateParticipantPermissions(ctx, "pt", "dr", domain.PermissionsPatch{CanMuteOthers: boolPtr(false)})
	assert.True(t, errors.IsCode(err, errors.ErrCodeInsufficientPermissions))

	ch, err = ts.svc.UpdateParticipantPermissions(ctx, "pt", "pt", domain.PermissionsPatch{CanShareScreen: boolPtr(false)})
	require.NoError(t, err)
	assert.False(t, ch.Participant.Permissions.CanShareScreen)

	_, err = ts.svc.UpdateParticipantPermissions(ctx, "dr", "ghost", domain.PermissionsPatch{CanShareScreen: boolPtr(true)})
	assert.True(t, errors.IsCode(err, errors.ErrCodeParticipantNotFound))
}

func TestTelehealthSession_ConsentAndTechnicalIssues(t *testing.T) {
	ts := startedSession(t, testConfig("s1"), Dependencies{})
	ctx := context.Background()

	ch, err := ts.svc.RecordConsent(ctx, "pt", "treatment", true)
	require.NoError(t, err)
	require.Len(t, ch.Events, 1)
	assert.Equal(t, domain.EventConsentGiven, ch.Events[0].Type)
	assert.Equal(t, "treatment", ch.Events[0].Data["type"])

	_, err = ts.svc.RecordConsent(ctx, "pt", " ", true)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidInput))
	_, err = ts.svc.RecordConsent(ctx, "ghost", "treatment", true)
	assert.True(t, errors.IsCode(err, errors.ErrCodeParticipantNotFound))

	ch, err = ts.svc.ReportTechnicalIssue(ctx, "pt", "audio dropouts")
	require.NoError(t, err)
	assert.Equal(t, domain.ComplianceMedium, ch.Events[0].Level)
	assert.Equal(t, "audio dropouts", ch.Events[0].Data["description"])

	summary := ts.svc.GetComplianceSummary()
	assert.Equal(t, 1, summary.ConsentEvents)
	assert.Equal(t, 1, summary.TechnicalIssues)
}

func TestTelehealthSession_RequirePermission(t *testing.T) {
	ts := startedSession(t, testConfig("s1"), Dependencies{})

	assert.NoError(t, ts.svc.RequirePermission("dr", domain.PermEndSession))
	assert.True(t, errors.IsCode(ts.svc.RequirePermission("pt", domain.PermEndSession), errors.ErrCodeInsufficientPermissions))
	assert.True(t, errors.IsCode(ts.svc.RequirePermission("ghost", domain.PermEndSession), errors.ErrCodeParticipantNotFound))
}

func TestTelehealthSession_EndSessionResult(t *testing.T) {
	archive := new(MockArchive)
	archive.On("Store", mock.Anything, mock.Anything).Return(nil)
	cfg := testConfig("s1")
	cfg.RecordingEnabled = true
	ts := startedSession(t, cfg, Dependencies{Archive: archive})
	ctx := context.Background()

	require.NoError(t, ts.svc.ReportConnectionQuality(ctx, "dr", 90))
	require.NoError(t, ts.svc.ReportConnectionQuality(ctx, "pt", 60))
	_, err := ts.svc.StartRecording(ctx, "dr")
	require.NoError(t, err)
	ts.clock.Advance(10 * time.Minute)
	_, err = ts.svc.ReportTechnicalIssue(ctx, "pt", "frozen video")
	require.NoError(t, err)

	result, err := ts.svc.EndSession(ctx, domain.EndReasonNormal)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionEnded, result.Change.Session.Status)
	assert.Equal(t, domain.EventSessionEnded, result.Change.Events[len(result.Change.Events)-1].Type)

	a := result.Analytics
	assert.Equal(t, 10*time.Minute, a.TotalDuration)
	assert.Equal(t, 2, a.ParticipantCount)
	assert.InDelta(t, 75.0, a.AverageConnectionQuality, 0.001)
	assert.Equal(t, 1, a.TechnicalIssuesCount)
	assert.Equal(t, 10*time.Minute, a.RecordingDuration)
	assert.Nil(t, a.TranscriptionAccuracy)
	assert.Equal(t, 95, a.ComplianceScore)

	assert.Equal(t, domain.SessionID("s1"), result.Export.SessionID)
	archive.AssertNumberOfCalls(t, "Store", 1)

	again, err := ts.svc.EndSession(ctx, domain.EndReasonNormal)
	require.NoError(t, err)
	assert.Empty(t, again.Change.Events)
	assert.Equal(t, a, again.Analytics)
	archive.AssertNumberOfCalls(t, "Store", 1)
}

func TestTelehealthSession_ArchiveFailureIsNotSurfaced(t *testing.T) {
	archive := new(MockArchive)
	archive.On("Store", mock.Anything, mock.Anything).Return(stderrors.New("bucket unavailable"))
	ts := startedSession(t, testConfig("s1"), Dependencies{Archive: archive})

	result, err := ts.svc.EndSession(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "normal", result.Export.Events[len(result.Export.Events)-1].Data["reason"])
}

func TestTelehealthSession_ShortSessionAnalytics(t *testing.T) {
	ts := startedSession(t, testConfig("s1"), Dependencies{})
	ts.clock.Advance(time.Minute)

	a := ts.svc.GetSessionAnalytics()
	assert.Equal(t, time.Minute, a.TotalDuration)
	assert.Equal(t, 90, a.ComplianceScore)
}
