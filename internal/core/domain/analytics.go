package domain

import "time"

// SessionAnalytics is derived on demand and never stored by the session itself.
type SessionAnalytics struct {
	SessionID                SessionID     `json:"sessionId"`
	TotalDuration            time.Duration `json:"totalDuration"`
	ParticipantCount         int           `json:"participantCount"`
	AverageConnectionQuality float64       `json:"averageConnectionQuality"`
	TechnicalIssuesCount     int           `json:"technicalIssuesCount"`
	RecordingDuration        time.Duration `json:"recordingDuration,omitempty"`
	TranscriptionAccuracy    *float64      `json:"transcriptionAccuracy,omitempty"`
	ComplianceScore          int           `json:"complianceScore"`
}
