package domain

import (
	"fmt"
	"time"
)

type SessionID string

type SessionStatus string

const (
	SessionWaiting SessionStatus = "waiting"
	SessionActive  SessionStatus = "active"
	SessionPaused  SessionStatus = "paused"
	SessionEnded   SessionStatus = "ended"
)

// EndReason explains why a session was ended.
type EndReason string

const (
	EndReasonNormal        EndReason = "normal"
	EndReasonTimeout       EndReason = "timeout"
	EndReasonError         EndReason = "error"
	EndReasonProviderEnded EndReason = "provider_ended"
)

func (r EndReason) Valid() bool {
	switch r {
	case EndReasonNormal, EndReasonTimeout, EndReasonError, EndReasonProviderEnded:
		return true
	}
	return false
}

type ComplianceSettings struct {
	AuditLogging      bool `json:"auditLogging"`
	HIPAACompliant    bool `json:"hipaaCompliant"`
	DataRetentionDays int  `json:"dataRetentionDays"`
}

// SessionConfiguration is fixed for the lifetime of a session.
type SessionConfiguration struct {
	SessionID            SessionID          `json:"sessionId"`
	MaxParticipants      int                `json:"maxParticipants"`
	RecordingEnabled     bool               `json:"recordingEnabled"`
	ScreenShareEnabled   bool               `json:"screenShareEnabled"`
	TranscriptionEnabled bool               `json:"transcriptionEnabled"`
	InvitationTTL        time.Duration      `json:"invitationTtl"`
	Compliance           ComplianceSettings `json:"compliance"`
	Media                MediaSettings      `json:"media"`
}

// DefaultInvitationTTL is how long an invitation stays acceptable.
const DefaultInvitationTTL = 24 * time.Hour

// DefaultIdleSessionTTL is how long a session that never started is kept.
const DefaultIdleSessionTTL = 24 * time.Hour

func (c SessionConfiguration) Validate() error {
	if c.SessionID == "" {
		return fmt.Errorf("session id is required")
	}
	if c.MaxParticipants < 1 {
		return fmt.Errorf("max participants must be at least 1")
	}
	if c.InvitationTTL < 0 {
		return fmt.Errorf("invitation ttl must not be negative")
	}
	return c.Media.Validate()
}

// Session is owned by the SessionManager; callers only ever see copies.
type Session struct {
	ID                   SessionID            `json:"id"`
	Status               SessionStatus        `json:"status"`
	StartTime            time.Time            `json:"startTime,omitempty"`
	EndTime              time.Time            `json:"endTime,omitempty"`
	Duration             time.Duration        `json:"duration"`
	IsMinimized          bool                 `json:"isMinimized"`
	IsRecording          bool                 `json:"isRecording"`
	HasActiveScreenShare bool                 `json:"hasActiveScreenShare"`
	ScreenSharer         ParticipantID        `json:"screenSharer,omitempty"`
	Configuration        SessionConfiguration `json:"configuration"`
}

// Elapsed returns the running duration at now, or the final duration once ended.
func (s Session) Elapsed(now time.Time) time.Duration {
	switch {
	case s.Status == SessionEnded:
		return s.Duration
	case s.StartTime.IsZero():
		return 0
	default:
		return now.Sub(s.StartTime)
	}
}

// SessionState is the session plus its full roster.
type SessionState struct {
	Session      Session       `json:"session"`
	Participants []Participant `json:"participants"`
}
