package services

import (
	"context"
	"sync"
	"time"

	"telecare/internal/core/domain"
	"telecare/internal/core/ports"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// sinkTimeout bounds a single mirror write so a slow store cannot stall the session.
const sinkTimeout = 2 * time.Second

var defaultEventLevels = map[domain.EventType]domain.ComplianceLevel{
	domain.EventSessionStarted:                domain.ComplianceHigh,
	domain.EventSessionEnded:                  domain.ComplianceHigh,
	domain.EventParticipantJoined:             domain.ComplianceHigh,
	domain.EventParticipantLeft:               domain.ComplianceHigh,
	domain.EventParticipantPermissionsUpdated: domain.ComplianceHigh,
	domain.EventRecordingStarted:              domain.ComplianceHigh,
	domain.EventRecordingStopped:              domain.ComplianceHigh,
	domain.EventConsentGiven:                  domain.ComplianceHigh,
	domain.EventConsentRevoked:                domain.ComplianceHigh,
	domain.EventParticipantMuted:              domain.ComplianceMedium,
	domain.EventParticipantUnmuted:            domain.ComplianceMedium,
	domain.EventInvitationSent:                domain.ComplianceMedium,
	domain.EventScreenShareStarted:            domain.ComplianceMedium,
	domain.EventScreenShareStopped:            domain.ComplianceMedium,
	domain.EventTechnicalIssue:                domain.ComplianceMedium,
	domain.EventSessionPaused:                 domain.ComplianceMedium,
	domain.EventSessionResumed:                domain.ComplianceMedium,
	domain.EventSessionMinimized:              domain.ComplianceLow,
	domain.EventSessionMaximized:              domain.ComplianceLow,
	domain.EventMediaSettingsUpdated:          domain.ComplianceLow,
}

// ComplianceLogger is the append-only audit ledger of one session.
// Logging never fails the caller: mirror errors are reported to zap and metrics only.
type ComplianceLogger struct {
	mu     sync.RWMutex
	config domain.SessionConfiguration
	events []domain.ComplianceEvent

	sink    ports.ComplianceEventSink
	metrics ports.SessionMetrics
	logger  *zap.SugaredLogger
	now     func() time.Time
}

func NewComplianceLogger(
	config domain.SessionConfiguration,
	sink ports.ComplianceEventSink,
	metrics ports.SessionMetrics,
	logger *zap.SugaredLogger,
	now func() time.Time,
) *ComplianceLogger {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if now == nil {
		now = time.Now
	}
	return &ComplianceLogger{
		config:  config,
		sink:    sink,
		metrics: metrics,
		logger:  logger.With("session_id", config.SessionID),
		now:     now,
	}
}

// LogEvent appends an event and returns a copy of it, or nil when audit logging is disabled.
func (l *ComplianceLogger) LogEvent(ctx context.Context, in domain.EventInput) *domain.ComplianceEvent {
	if !l.config.Compliance.AuditLogging {
		return nil
	}
	if !in.Type.Valid() {
		l.logger.Errorw("Rejected compliance event with unknown type", "event_type", in.Type)
		return nil
	}

	level := in.Level
	if level == "" {
		level = defaultEventLevels[in.Type]
	}

	l.mu.Lock()
	event := domain.ComplianceEvent{
		ID:            uuid.NewString(),
		Sequence:      len(l.events) + 1,
		SessionID:     l.config.SessionID,
		Timestamp:     l.now().UTC(),
		Type:          in.Type,
		ParticipantID: in.ParticipantID,
		Level:         level,
		Data:          in.Data,
	}
	event = event.Clone()
	l.events = append(l.events, event)
	l.mu.Unlock()

	l.metrics.ComplianceEventRecorded(event.Type, event.Level)
	l.logger.Debugw("Compliance event recorded",
		"event_type", event.Type,
		"sequence", event.Sequence,
		"participant_id", event.ParticipantID,
	)
	l.mirror(ctx, event)

	out := event.Clone()
	return &out
}

func (l *ComplianceLogger) mirror(ctx context.Context, event domain.ComplianceEvent) {
	if l.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
	defer cancel()

	if err := l.sink.Append(ctx, event.Clone()); err != nil {
		l.metrics.LedgerMirrorFailed()
		l.logger.Warnw("Failed to mirror compliance event",
			"event_type", event.Type,
			"sequence", event.Sequence,
			"error", err,
		)
	}
}

// LogConsent records consent_given or consent_revoked for consentType.
func (l *ComplianceLogger) LogConsent(ctx context.Context, participantID domain.ParticipantID, consentType string, granted bool) *domain.ComplianceEvent {
	eventType := domain.EventConsentRevoked
	if granted {
		eventType = domain.EventConsentGiven
	}
	return l.LogEvent(ctx, domain.EventInput{
		Type:          eventType,
		ParticipantID: participantID,
		Level:         domain.ComplianceHigh,
		Data: map[string]interface{}{
			"type":    consentType,
			"granted": granted,
		},
	})
}

// LogTechnicalIssue records a technical_issue at medium level. Whether the
// failure aborts the surrounding operation is the caller's decision.
func (l *ComplianceLogger) LogTechnicalIssue(ctx context.Context, participantID domain.ParticipantID, cause error, details map[string]interface{}) *domain.ComplianceEvent {
	data := make(map[string]interface{}, len(details)+1)
	for k, v := range details {
		data[k] = v
	}
	if cause != nil {
		data["error"] = cause.Error()
	}
	return l.LogEvent(ctx, domain.EventInput{
		Type:          domain.EventTechnicalIssue,
		ParticipantID: participantID,
		Level:         domain.ComplianceMedium,
		Data:          data,
	})
}

// LogSessionEnd records the terminal session_ended event.
func (l *ComplianceLogger) LogSessionEnd(ctx context.Context, duration time.Duration, participantCount int, reason domain.EndReason) *domain.ComplianceEvent {
	return l.LogEvent(ctx, domain.EventInput{
		Type:  domain.EventSessionEnded,
		Level: domain.ComplianceHigh,
		Data: map[string]interface{}{
			"duration":         duration.Seconds(),
			"participantCount": participantCount,
			"reason":           string(reason),
		},
	})
}

// Len returns the number of events in the ledger.
func (l *ComplianceLogger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// EventsSince returns copies of the events appended after the first n.
func (l *ComplianceLogger) EventsSince(n int) []domain.ComplianceEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if n < 0 {
		n = 0
	}
	if n >= len(l.events) {
		return []domain.ComplianceEvent{}
	}
	return cloneEvents(l.events[n:])
}

// GetSessionEvents returns a copy of the full ordered ledger.
func (l *ComplianceLogger) GetSessionEvents() []domain.ComplianceEvent {
	return l.EventsSince(0)
}

// GetComplianceSummary counts the ledger and derives the session duration
// from the first session_started and first session_ended events.
func (l *ComplianceLogger) GetComplianceSummary() domain.ComplianceSummary {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return summarize(l.events)
}

// ExportComplianceData bundles configuration, ledger and summary for an external store.
func (l *ComplianceLogger) ExportComplianceData() domain.ComplianceExport {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return domain.ComplianceExport{
		SessionID:     l.config.SessionID,
		Configuration: l.config,
		Events:        cloneEvents(l.events),
		Summary:       summarize(l.events),
		ExportedAt:    l.now().UTC(),
	}
}

func summarize(events []domain.ComplianceEvent) domain.ComplianceSummary {
	var (
		summary   domain.ComplianceSummary
		started   time.Time
		ended     time.Time
		seenStart bool
		seenEnd   bool
	)
	summary.TotalEvents = len(events)
	for _, e := range events {
		if e.Level == domain.ComplianceHigh {
			summary.HighComplianceEvents++
		}
		switch e.Type {
		case domain.EventConsentGiven, domain.EventConsentRevoked:
			summary.ConsentEvents++
		case domain.EventTechnicalIssue:
			summary.TechnicalIssues++
		case domain.EventSessionStarted:
			if !seenStart {
				started, seenStart = e.Timestamp, true
			}
		case domain.EventSessionEnded:
			if !seenEnd {
				ended, seenEnd = e.Timestamp, true
			}
		}
	}
	if seenStart && seenEnd && ended.After(started) {
		summary.SessionDuration = ended.Sub(started)
	}
	return summary
}

func cloneEvents(events []domain.ComplianceEvent) []domain.ComplianceEvent {
	out := make([]domain.ComplianceEvent, len(events))
	for i, e := range events {
		out[i] = e.Clone()
	}
	return out
}
