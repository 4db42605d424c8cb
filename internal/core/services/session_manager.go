package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"telecare/internal/core/domain"
	"telecare/internal/core/ports"
	"telecare/pkg/errors"

	"go.uber.org/zap"
)

// SessionManager owns the session record, its state machine and the media
// handles. The lock is held across capability calls, so concurrent toggles
// on one session are strictly ordered.
type SessionManager struct {
	mu      sync.Mutex
	session domain.Session
	media   domain.MediaSettings

	localStream  *domain.MediaHandle
	screenShare  *domain.MediaHandle
	screenSince  time.Time
	recordSince  time.Time
	recordedTime time.Duration

	capability   ports.MediaCapability
	participants *ParticipantManager
	compliance   *ComplianceLogger
	metrics      ports.SessionMetrics
	logger       *zap.SugaredLogger
	now          func() time.Time
}

// NewSessionManager creates a waiting session together with its ledger and roster.
func NewSessionManager(
	config domain.SessionConfiguration,
	capability ports.MediaCapability,
	sink ports.ComplianceEventSink,
	metrics ports.SessionMetrics,
	logger *zap.SugaredLogger,
	now func() time.Time,
) *SessionManager {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if now == nil {
		now = time.Now
	}
	compliance := NewComplianceLogger(config, sink, metrics, logger, now)
	return &SessionManager{
		session: domain.Session{
			ID:            config.SessionID,
			Status:        domain.SessionWaiting,
			Configuration: config,
		},
		media:        config.Media,
		capability:   capability,
		compliance:   compliance,
		participants: NewParticipantManager(config, compliance, metrics, logger, now),
		metrics:      metrics,
		logger:       logger.With("session_id", config.SessionID),
		now:          now,
	}
}

func (m *SessionManager) Compliance() *ComplianceLogger { return m.compliance }

func (m *SessionManager) Participants() *ParticipantManager { return m.participants }

func (m *SessionManager) requireLiveLocked() error {
	switch m.session.Status {
	case domain.SessionWaiting:
		return errors.NewSessionNotStartedError()
	case domain.SessionEnded:
		return errors.NewSessionEndedError()
	}
	return nil
}

// RequireLive fails unless the session is active or paused.
func (m *SessionManager) RequireLive() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requireLiveLocked()
}

func invalidTransition(from domain.SessionStatus, want string) error {
	return errors.NewValidationError(errors.ErrCodeInvalidStateTransition,
		fmt.Sprintf("session is %s, expected %s", from, want)).WithDetail("status", from)
}

// InitializeSession acquires local media and moves waiting -> active.
// A capability failure leaves the session waiting.
func (m *SessionManager) InitializeSession(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.session.Status {
	case domain.SessionWaiting:
	case domain.SessionEnded:
		return errors.NewSessionEndedError()
	default:
		return invalidTransition(m.session.Status, "waiting")
	}

	constraints := m.media.Constraints()
	if constraints.Video || constraints.Audio {
		handle, err := m.capability.AcquireLocalMedia(ctx, constraints)
		if err != nil {
			m.logger.Warnw("Local media acquisition failed", "error", err)
			return errors.NewTechnicalError(errors.ErrCodeMediaPermissionDenied,
				"could not acquire camera or microphone", true, err)
		}
		m.localStream = handle
	}

	start := m.now().UTC()
	m.session.Status = domain.SessionActive
	m.session.StartTime = start

	cfg := m.session.Configuration
	m.compliance.LogEvent(ctx, domain.EventInput{
		Type: domain.EventSessionStarted,
		Data: map[string]interface{}{
			"maxParticipants":      cfg.MaxParticipants,
			"recordingEnabled":     cfg.RecordingEnabled,
			"screenShareEnabled":   cfg.ScreenShareEnabled,
			"transcriptionEnabled": cfg.TranscriptionEnabled,
			"hipaaCompliant":       cfg.Compliance.HIPAACompliant,
			"videoEnabled":         m.media.VideoEnabled,
			"audioEnabled":         m.media.AudioEnabled,
			"resolution":           string(m.media.Resolution),
			"width":                constraints.Width,
			"height":               constraints.Height,
		},
	})
	m.participants.Open(start)
	m.logger.Infow("Session started", "resolution", m.media.Resolution)
	return nil
}

// EndSession tears the session down: recording, screen share, media, roster,
// then the terminal session_ended event. It reports ended=false when the
// session had already ended; repeated calls release nothing twice.
func (m *SessionManager) EndSession(ctx context.Context, reason domain.EndReason) (bool, error) {
	if reason == "" {
		reason = domain.EndReasonNormal
	}
	if !reason.Valid() {
		return false, errors.NewInvalidInputError(fmt.Sprintf("unknown end reason %q", reason))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.session.Status {
	case domain.SessionEnded:
		return false, nil
	case domain.SessionWaiting:
		return false, invalidTransition(m.session.Status, "active or paused")
	}

	end := m.now().UTC()
	duration := end.Sub(m.session.StartTime)

	if m.session.IsRecording {
		m.stopRecordingLocked(ctx)
	}
	if m.session.HasActiveScreenShare {
		m.stopScreenShareLocked(ctx)
	}
	if m.localStream != nil {
		m.releaseLocked(ctx, m.localStream, "")
		m.localStream = nil
	}

	m.participants.DisconnectAll(ctx)
	m.participants.Close()
	participantCount := len(m.participants.GetParticipants())

	m.session.Status = domain.SessionEnded
	m.session.EndTime = end
	m.session.Duration = duration
	m.session.IsMinimized = false

	m.compliance.LogSessionEnd(ctx, duration, participantCount, reason)
	m.logger.Infow("Session ended",
		"reason", reason,
		"duration", duration,
		"participants", participantCount,
	)
	return true, nil
}

// releaseLocked releases a handle; failures are ledgered and do not stop teardown.
func (m *SessionManager) releaseLocked(ctx context.Context, handle *domain.MediaHandle, participantID domain.ParticipantID) {
	if err := m.capability.Release(ctx, handle); err != nil {
		m.logger.Warnw("Media release failed", "handle", handle.ID, "kind", handle.Kind, "error", err)
		m.compliance.LogTechnicalIssue(ctx, participantID, err, map[string]interface{}{
			"operation": "release_" + string(handle.Kind),
			"handleId":  handle.ID,
		})
	}
}

// StartScreenShare acquires screen capture for participantID. Pausing does
// not block captures; only waiting and ended sessions do.
func (m *SessionManager) StartScreenShare(ctx context.Context, participantID domain.ParticipantID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireLiveLocked(); err != nil {
		return err
	}
	p, err := m.participants.GetParticipant(participantID)
	if err != nil {
		return err
	}
	if !p.IsConnected {
		return errors.NewParticipantNotFoundError(string(participantID))
	}
	if m.session.HasActiveScreenShare {
		return errors.NewValidationError(errors.ErrCodeScreenShareActive, "a screen share is already active").
			WithDetail("shared_by", m.session.ScreenSharer)
	}
	if !p.Permissions.CanShareScreen {
		return errors.NewInsufficientPermissionsError(domain.PermShareScreen)
	}
	if !m.session.Configuration.ScreenShareEnabled {
		return errors.NewValidationError(errors.ErrCodeScreenShareDisabled, "screen sharing is disabled for this session")
	}

	w, h, _ := m.media.Resolution.Dimensions()
	handle, err := m.capability.AcquireScreenCapture(ctx, domain.ScreenCaptureConstraints{
		ParticipantID: participantID,
		Width:         w,
		Height:        h,
		FrameRate:     m.media.FrameRate,
		Cursor:        true,
	})
	if err != nil {
		m.compliance.LogTechnicalIssue(ctx, participantID, err, map[string]interface{}{
			"operation": "start_screen_share",
		})
		return errors.NewTechnicalError(errors.ErrCodeScreenShareFailed, "could not start screen capture", true, err)
	}

	m.screenShare = handle
	m.screenSince = m.now()
	m.session.HasActiveScreenShare = true
	m.session.ScreenSharer = participantID
	m.compliance.LogEvent(ctx, domain.EventInput{
		Type:          domain.EventScreenShareStarted,
		ParticipantID: participantID,
		Data:          map[string]interface{}{"handleId": handle.ID},
	})
	return nil
}

// StopScreenShare is a no-op when nothing is being shared.
func (m *SessionManager) StopScreenShare(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session.Status == domain.SessionEnded {
		return errors.NewSessionEndedError()
	}
	if !m.session.HasActiveScreenShare {
		return nil
	}
	m.stopScreenShareLocked(ctx)
	return nil
}

func (m *SessionManager) stopScreenShareLocked(ctx context.Context) {
	sharer := m.session.ScreenSharer
	if m.screenShare != nil {
		m.releaseLocked(ctx, m.screenShare, sharer)
		m.screenShare = nil
	}
	m.session.HasActiveScreenShare = false
	m.session.ScreenSharer = ""
	m.compliance.LogEvent(ctx, domain.EventInput{
		Type:          domain.EventScreenShareStopped,
		ParticipantID: sharer,
		Data:          map[string]interface{}{"duration": m.now().Sub(m.screenSince).Seconds()},
	})
}

// StartRecording logs recording consent and then recording_started.
func (m *SessionManager) StartRecording(ctx context.Context, participantID domain.ParticipantID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireLiveLocked(); err != nil {
		return err
	}
	p, err := m.participants.GetParticipant(participantID)
	if err != nil {
		return err
	}
	if !p.IsConnected {
		return errors.NewParticipantNotFoundError(string(participantID))
	}
	if !p.Permissions.CanRecordSession {
		return errors.NewInsufficientPermissionsError(domain.PermRecordSession)
	}
	if !m.session.Configuration.RecordingEnabled {
		return errors.NewValidationError(errors.ErrCodeRecordingDisabled, "recording is disabled for this session")
	}
	if m.session.IsRecording {
		return errors.NewValidationError(errors.ErrCodeRecordingActive, "recording is already in progress")
	}

	m.compliance.LogConsent(ctx, participantID, domain.ConsentRecording, true)
	m.session.IsRecording = true
	m.recordSince = m.now()
	m.compliance.LogEvent(ctx, domain.EventInput{
		Type:          domain.EventRecordingStarted,
		ParticipantID: participantID,
	})
	return nil
}

// StopRecording is a no-op when not recording.
func (m *SessionManager) StopRecording(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session.Status == domain.SessionEnded {
		return errors.NewSessionEndedError()
	}
	if !m.session.IsRecording {
		return nil
	}
	m.stopRecordingLocked(ctx)
	return nil
}

func (m *SessionManager) stopRecordingLocked(ctx context.Context) {
	segment := m.now().Sub(m.recordSince)
	m.recordedTime += segment
	m.session.IsRecording = false
	m.compliance.LogEvent(ctx, domain.EventInput{
		Type: domain.EventRecordingStopped,
		Data: map[string]interface{}{
			"duration":      segment.Seconds(),
			"totalRecorded": m.recordedTime.Seconds(),
		},
	})
}

// RecordingDuration includes an in-progress recording.
func (m *SessionManager) RecordingDuration() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.recordedTime
	if m.session.IsRecording {
		d += m.now().Sub(m.recordSince)
	}
	return d
}

func (m *SessionManager) PauseSession(ctx context.Context) error {
	return m.transition(ctx, domain.SessionActive, domain.SessionPaused, domain.EventSessionPaused)
}

func (m *SessionManager) ResumeSession(ctx context.Context) error {
	return m.transition(ctx, domain.SessionPaused, domain.SessionActive, domain.EventSessionResumed)
}

func (m *SessionManager) transition(ctx context.Context, from, to domain.SessionStatus, event domain.EventType) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session.Status == domain.SessionEnded {
		return errors.NewSessionEndedError()
	}
	if m.session.Status != from {
		return invalidTransition(m.session.Status, string(from))
	}
	m.session.Status = to
	m.compliance.LogEvent(ctx, domain.EventInput{
		Type:  event,
		Level: domain.ComplianceMedium,
		Data:  map[string]interface{}{"elapsed": m.now().Sub(m.session.StartTime).Seconds()},
	})
	m.logger.Infow("Session state changed", "from", from, "to", to)
	return nil
}

func (m *SessionManager) MinimizeSession(ctx context.Context) error {
	return m.setMinimized(ctx, true)
}

func (m *SessionManager) MaximizeSession(ctx context.Context) error {
	return m.setMinimized(ctx, false)
}

func (m *SessionManager) setMinimized(ctx context.Context, minimized bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireLiveLocked(); err != nil {
		return err
	}
	if m.session.IsMinimized == minimized {
		return nil
	}
	m.session.IsMinimized = minimized
	event := domain.EventSessionMaximized
	if minimized {
		event = domain.EventSessionMinimized
	}
	m.compliance.LogEvent(ctx, domain.EventInput{Type: event, Level: domain.ComplianceLow})
	return nil
}

// UpdateMediaSettings merges patch. Before the session starts the change is
// applied without a ledger entry; session_started records the result.
func (m *SessionManager) UpdateMediaSettings(ctx context.Context, patch domain.MediaSettingsPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session.Status == domain.SessionEnded {
		return errors.NewSessionEndedError()
	}
	next, changed := m.media.Apply(patch)
	if len(changed) == 0 {
		return errors.NewInvalidInputError("no media settings to update")
	}
	if err := next.Validate(); err != nil {
		return errors.NewInvalidInputError(err.Error())
	}
	m.media = next

	if m.session.Status == domain.SessionWaiting {
		return nil
	}
	m.compliance.LogEvent(ctx, domain.EventInput{
		Type:  domain.EventMediaSettingsUpdated,
		Level: domain.ComplianceLow,
		Data: map[string]interface{}{
			"changed":      changed,
			"videoEnabled": next.VideoEnabled,
			"audioEnabled": next.AudioEnabled,
			"resolution":   string(next.Resolution),
			"frameRate":    next.FrameRate,
		},
	})
	return nil
}

// Snapshot returns a copy of the session record.
func (m *SessionManager) Snapshot() domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// GetSessionState merges the session record with the full roster.
func (m *SessionManager) GetSessionState() domain.SessionState {
	return domain.SessionState{
		Session:      m.Snapshot(),
		Participants: m.participants.GetParticipants(),
	}
}

func (m *SessionManager) GetMediaSettings() domain.MediaSettings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.media
}

func (m *SessionManager) GetLocalStream() *domain.MediaHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyHandle(m.localStream)
}

func (m *SessionManager) GetScreenShareStream() *domain.MediaHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyHandle(m.screenShare)
}

func copyHandle(h *domain.MediaHandle) *domain.MediaHandle {
	if h == nil {
		return nil
	}
	out := *h
	out.Tracks = append([]string(nil), h.Tracks...)
	return &out
}
