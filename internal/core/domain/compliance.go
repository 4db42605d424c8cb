package domain

import "time"

type EventType string

const (
	EventSessionStarted                EventType = "session_started"
	EventSessionEnded                  EventType = "session_ended"
	EventParticipantJoined             EventType = "participant_joined"
	EventParticipantLeft               EventType = "participant_left"
	EventParticipantMuted              EventType = "participant_muted"
	EventParticipantUnmuted            EventType = "participant_unmuted"
	EventParticipantPermissionsUpdated EventType = "participant_permissions_updated"
	EventInvitationSent                EventType = "invitation_sent"
	EventScreenShareStarted            EventType = "screen_share_started"
	EventScreenShareStopped            EventType = "screen_share_stopped"
	EventRecordingStarted              EventType = "recording_started"
	EventRecordingStopped              EventType = "recording_stopped"
	EventConsentGiven                  EventType = "consent_given"
	EventConsentRevoked                EventType = "consent_revoked"
	EventTechnicalIssue                EventType = "technical_issue"
	EventSessionPaused                 EventType = "session_paused"
	EventSessionResumed                EventType = "session_resumed"
	EventSessionMinimized              EventType = "session_minimized"
	EventSessionMaximized              EventType = "session_maximized"
	EventMediaSettingsUpdated          EventType = "media_settings_updated"
)

var eventTypes = map[EventType]bool{
	EventSessionStarted: true, EventSessionEnded: true,
	EventParticipantJoined: true, EventParticipantLeft: true,
	EventParticipantMuted: true, EventParticipantUnmuted: true,
	EventParticipantPermissionsUpdated: true, EventInvitationSent: true,
	EventScreenShareStarted: true, EventScreenShareStopped: true,
	EventRecordingStarted: true, EventRecordingStopped: true,
	EventConsentGiven: true, EventConsentRevoked: true,
	EventTechnicalIssue: true,
	EventSessionPaused:  true, EventSessionResumed: true,
	EventSessionMinimized: true, EventSessionMaximized: true,
	EventMediaSettingsUpdated: true,
}

func (t EventType) Valid() bool {
	return eventTypes[t]
}

type ComplianceLevel string

const (
	ComplianceLow    ComplianceLevel = "low"
	ComplianceMedium ComplianceLevel = "medium"
	ComplianceHigh   ComplianceLevel = "high"
)

// ConsentRecording is the consent type logged before any recording starts.
const ConsentRecording = "recording"

// ComplianceEvent is immutable once appended. Sequence is its 1-based ledger position.
type ComplianceEvent struct {
	ID            string                 `json:"id"`
	Sequence      int                    `json:"sequence"`
	SessionID     SessionID              `json:"sessionId"`
	Timestamp     time.Time              `json:"timestamp"`
	Type          EventType              `json:"type"`
	ParticipantID ParticipantID          `json:"participantId,omitempty"`
	Level         ComplianceLevel        `json:"complianceLevel"`
	Data          map[string]interface{} `json:"data,omitempty"`
}

// Clone returns a copy whose Data map is not shared.
func (e ComplianceEvent) Clone() ComplianceEvent {
	if e.Data != nil {
		data := make(map[string]interface{}, len(e.Data))
		for k, v := range e.Data {
			data[k] = v
		}
		e.Data = data
	}
	return e
}

// EventInput is what callers hand to the compliance logger.
type EventInput struct {
	Type          EventType
	ParticipantID ParticipantID
	Level         ComplianceLevel
	Data          map[string]interface{}
}

type ComplianceSummary struct {
	TotalEvents          int           `json:"totalEvents"`
	HighComplianceEvents int           `json:"highComplianceEvents"`
	ConsentEvents        int           `json:"consentEvents"`
	TechnicalIssues      int           `json:"technicalIssues"`
	SessionDuration      time.Duration `json:"sessionDuration"`
}

// ComplianceExport is the hand-off record for external compliance stores.
type ComplianceExport struct {
	SessionID     SessionID            `json:"sessionId"`
	Configuration SessionConfiguration `json:"configuration"`
	Events        []ComplianceEvent    `json:"events"`
	Summary       ComplianceSummary    `json:"summary"`
	ExportedAt    time.Time            `json:"exportedAt"`
}
