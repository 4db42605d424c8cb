package ports

import (
	"context"
	"time"

	"telecare/internal/core/domain"
)

// TelehealthSession is the facade over one session's state machine, roster and ledger.
type TelehealthSession interface {
	ID() domain.SessionID

	StartSession(ctx context.Context) (*domain.Change, error)
	EndSession(ctx context.Context, reason domain.EndReason) (*domain.EndResult, error)
	PauseSession(ctx context.Context) (*domain.Change, error)
	ResumeSession(ctx context.Context) (*domain.Change, error)
	MinimizeSession(ctx context.Context) (*domain.Change, error)
	MaximizeSession(ctx context.Context) (*domain.Change, error)
	UpdateMediaSettings(ctx context.Context, patch domain.MediaSettingsPatch) (*domain.Change, error)

	StartScreenShare(ctx context.Context, participantID domain.ParticipantID) (*domain.Change, error)
	StopScreenShare(ctx context.Context) (*domain.Change, error)
	StartRecording(ctx context.Context, participantID domain.ParticipantID) (*domain.Change, error)
	StopRecording(ctx context.Context) (*domain.Change, error)

	AddParticipant(ctx context.Context, p domain.NewParticipant) (*domain.Change, error)
	RemoveParticipant(ctx context.Context, participantID domain.ParticipantID) (*domain.Change, error)
	UpdateParticipantPermissions(ctx context.Context, actorID, targetID domain.ParticipantID, patch domain.PermissionsPatch) (*domain.Change, error)
	MuteParticipant(ctx context.Context, targetID domain.ParticipantID, muted bool, mutedBy domain.ParticipantID) (*domain.Change, error)

	InviteParticipant(ctx context.Context, req domain.InviteRequest) (*domain.Change, error)
	AcceptInvitation(ctx context.Context, invitationID domain.InvitationID, participantID domain.ParticipantID) (*domain.Change, error)
	DeclineInvitation(ctx context.Context, invitationID domain.InvitationID) (*domain.Change, error)

	RecordConsent(ctx context.Context, participantID domain.ParticipantID, consentType string, granted bool) (*domain.Change, error)
	ReportTechnicalIssue(ctx context.Context, participantID domain.ParticipantID, description string) (*domain.Change, error)
	ReportConnectionQuality(ctx context.Context, participantID domain.ParticipantID, quality float64) error

	// RequirePermission fails unless the participant exists and holds the named permission.
	RequirePermission(participantID domain.ParticipantID, permission string) error

	GetSessionState() domain.SessionState
	GetParticipant(participantID domain.ParticipantID) (domain.Participant, error)
	GetParticipants() []domain.Participant
	GetConnectedParticipants() []domain.Participant
	GetPendingInvitations() []domain.Invitation
	ListInvitations(filter domain.InvitationFilter) []domain.Invitation
	GetMediaSettings() domain.MediaSettings
	GetLocalStream() *domain.MediaHandle
	GetScreenShareStream() *domain.MediaHandle
	GetSessionEvents() []domain.ComplianceEvent
	GetComplianceSummary() domain.ComplianceSummary
	ExportComplianceData() domain.ComplianceExport
	GetSessionAnalytics() domain.SessionAnalytics
}

// SessionDirectory holds the independent sessions hosted by this process.
type SessionDirectory interface {
	Create(ctx context.Context, cfg domain.SessionConfiguration) (TelehealthSession, error)
	Get(id domain.SessionID) (TelehealthSession, error)
	List() []domain.Session
	Remove(id domain.SessionID) error
	PruneEnded() int
}

// PermissionPolicy decides whether actor may apply patch to target.
type PermissionPolicy interface {
	CanUpdatePermissions(actor, target domain.Participant, patch domain.PermissionsPatch) error
}

// SessionMetrics receives operational counters. Implementations must be safe for concurrent use.
type SessionMetrics interface {
	SessionStarted()
	SessionStartFailed()
	SessionEnded(reason domain.EndReason, duration time.Duration, complianceScore int)
	ParticipantJoined(role domain.Role)
	ParticipantLeft(role domain.Role)
	ComplianceEventRecorded(eventType domain.EventType, level domain.ComplianceLevel)
	LedgerMirrorFailed()
	InvitationDelivered(ok bool)
}

// AuthService issues and validates participant access tokens.
type AuthService interface {
	IssueToken(sessionID domain.SessionID, participantID domain.ParticipantID, role domain.Role) (string, time.Time, error)
	ValidateToken(token string) (*domain.ParticipantClaims, error)
}
