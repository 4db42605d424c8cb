package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"telecare/internal/core/domain"
	"telecare/internal/core/ports"
	"telecare/pkg/errors"
	"telecare/pkg/tracing"
	"telecare/pkg/utils"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	archiveTimeout = 5 * time.Second

	// maxIssueDescription caps reported issue text kept in the ledger.
	maxIssueDescription = 500
)

// Dependencies are the collaborators of one session. Only Media is required.
type Dependencies struct {
	Media    ports.MediaCapability
	Sink     ports.ComplianceEventSink
	Notifier ports.InvitationNotifier
	Policy   ports.PermissionPolicy
	Archive  ports.ComplianceArchive
	Metrics  ports.SessionMetrics
	Logger   *zap.SugaredLogger
	Clock    func() time.Time

	// IdleTTL bounds how long a registry keeps a session that never started.
	IdleTTL time.Duration
}

// TelehealthSessionService is the error boundary of one session. It owns no
// state itself; it serializes mutations and coordinates the checks that span
// the roster and the session record.
type TelehealthSessionService struct {
	mu sync.RWMutex
	id domain.SessionID

	sessions     *SessionManager
	participants *ParticipantManager
	compliance   *ComplianceLogger

	notifier ports.InvitationNotifier
	policy   ports.PermissionPolicy
	archive  ports.ComplianceArchive
	metrics  ports.SessionMetrics
	logger   *zap.SugaredLogger
	now      func() time.Time

	createdAt time.Time
	retired   bool
}

var _ ports.TelehealthSession = (*TelehealthSessionService)(nil)

func NewTelehealthSessionService(cfg domain.SessionConfiguration, deps Dependencies) (*TelehealthSessionService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.NewInvalidInputError(err.Error())
	}
	if deps.Media == nil {
		return nil, fmt.Errorf("media capability is required")
	}
	if deps.Policy == nil {
		deps.Policy = DefaultPermissionPolicy{}
	}
	if deps.Metrics == nil {
		deps.Metrics = NopMetrics{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop().Sugar()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if cfg.InvitationTTL == 0 {
		cfg.InvitationTTL = domain.DefaultInvitationTTL
	}

	sm := NewSessionManager(cfg, deps.Media, deps.Sink, deps.Metrics, deps.Logger, deps.Clock)
	return &TelehealthSessionService{
		id:           cfg.SessionID,
		sessions:     sm,
		participants: sm.Participants(),
		compliance:   sm.Compliance(),
		notifier:     deps.Notifier,
		policy:       deps.Policy,
		archive:      deps.Archive,
		metrics:      deps.Metrics,
		logger:       deps.Logger.With("session_id", cfg.SessionID),
		now:          deps.Clock,
		createdAt:    deps.Clock(),
	}, nil
}

func (s *TelehealthSessionService) ID() domain.SessionID { return s.id }

// run executes one mutation under the session lock and reports exactly the
// ledger events it appended.
func (s *TelehealthSessionService) run(
	ctx context.Context,
	op string,
	fn func(ctx context.Context, ch *domain.Change) error,
	attrs ...attribute.KeyValue,
) (*domain.Change, error) {
	ctx, span := tracing.TraceSessionOperation(ctx, op, string(s.id), attrs...)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.retired {
		return nil, notFound(s.id)
	}

	mark := s.compliance.Len()
	ch := &domain.Change{}
	if err := fn(ctx, ch); err != nil {
		te := errors.Wrap(err, errors.ErrCodeInternal, op+" failed", false)
		span.SetAttributes(tracing.ErrorCodeKey.String(string(te.Code)))
		tracing.RecordError(ctx, te)
		if te.Type == errors.TypeTechnical {
			s.logger.Warnw("Session operation failed", "operation", op, "code", te.Code, "error", te)
		} else {
			s.logger.Debugw("Session operation rejected", "operation", op, "code", te.Code)
		}
		return nil, te
	}
	ch.Session = s.sessions.Snapshot()
	ch.Events = s.compliance.EventsSince(mark)
	return ch, nil
}

// retire detaches the session from its registry. Only sessions holding no
// media can be retired; every later mutation reports SESSION_NOT_FOUND.
func (s *TelehealthSessionService) retire() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := s.sessions.Snapshot().Status
	if status != domain.SessionWaiting && status != domain.SessionEnded {
		return invalidTransition(status, "waiting or ended")
	}
	s.retired = true
	return nil
}

// retireIfStale retires ended sessions and sessions left waiting since before
// idleCutoff.
func (s *TelehealthSessionService) retireIfStale(idleCutoff time.Time) (domain.SessionStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := s.sessions.Snapshot().Status
	switch {
	case status == domain.SessionEnded:
	case status == domain.SessionWaiting && !s.createdAt.After(idleCutoff):
	default:
		return status, false
	}
	s.retired = true
	return status, true
}

func participantAttr(id domain.ParticipantID) attribute.KeyValue {
	return tracing.ParticipantIDKey.String(string(id))
}

func (s *TelehealthSessionService) StartSession(ctx context.Context) (*domain.Change, error) {
	return s.run(ctx, "start_session", func(ctx context.Context, _ *domain.Change) error {
		if err := s.sessions.InitializeSession(ctx); err != nil {
			s.metrics.SessionStartFailed()
			return errors.Wrap(err, errors.ErrCodeSessionInitFailed, "failed to start session", true)
		}
		s.metrics.SessionStarted()
		return nil
	})
}

// EndSession ends the session and returns its analytics and compliance export.
// Calling it again returns the same outcome without new events.
func (s *TelehealthSessionService) EndSession(ctx context.Context, reason domain.EndReason) (*domain.EndResult, error) {
	if reason == "" {
		reason = domain.EndReasonNormal
	}
	first := false
	ch, err := s.run(ctx, "end_session", func(ctx context.Context, _ *domain.Change) error {
		ended, err := s.sessions.EndSession(ctx, reason)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeSessionEndFailed, "failed to end session", false)
		}
		first = ended
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &domain.EndResult{
		Change:    *ch,
		Analytics: s.GetSessionAnalytics(),
		Export:    s.compliance.ExportComplianceData(),
	}
	if first {
		s.metrics.SessionEnded(reason, result.Analytics.TotalDuration, result.Analytics.ComplianceScore)
		s.storeExport(ctx, &result.Export)
	}
	return result, nil
}

// storeExport hands the export to the archive. Failures are logged only.
func (s *TelehealthSessionService) storeExport(ctx context.Context, export *domain.ComplianceExport) {
	if s.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
	defer cancel()
	if err := s.archive.Store(ctx, export); err != nil {
		s.logger.Errorw("Failed to archive compliance export", "events", len(export.Events), "error", err)
		return
	}
	s.logger.Infow("Compliance export archived", "events", len(export.Events))
}

func (s *TelehealthSessionService) PauseSession(ctx context.Context) (*domain.Change, error) {
	return s.run(ctx, "pause_session", func(ctx context.Context, _ *domain.Change) error {
		return s.sessions.PauseSession(ctx)
	})
}

func (s *TelehealthSessionService) ResumeSession(ctx context.Context) (*domain.Change, error) {
	return s.run(ctx, "resume_session", func(ctx context.Context, _ *domain.Change) error {
		return s.sessions.ResumeSession(ctx)
	})
}

func (s *TelehealthSessionService) MinimizeSession(ctx context.Context) (*domain.Change, error) {
	return s.run(ctx, "minimize_session", func(ctx context.Context, _ *domain.Change) error {
		return s.sessions.MinimizeSession(ctx)
	})
}

func (s *TelehealthSessionService) MaximizeSession(ctx context.Context) (*domain.Change, error) {
	return s.run(ctx, "maximize_session", func(ctx context.Context, _ *domain.Change) error {
		return s.sessions.MaximizeSession(ctx)
	})
}

func (s *TelehealthSessionService) UpdateMediaSettings(ctx context.Context, patch domain.MediaSettingsPatch) (*domain.Change, error) {
	return s.run(ctx, "update_media_settings", func(ctx context.Context, _ *domain.Change) error {
		return s.sessions.UpdateMediaSettings(ctx, patch)
	})
}

func (s *TelehealthSessionService) StartScreenShare(ctx context.Context, participantID domain.ParticipantID) (*domain.Change, error) {
	return s.run(ctx, "start_screen_share", func(ctx context.Context, _ *domain.Change) error {
		return s.sessions.StartScreenShare(ctx, participantID)
	}, participantAttr(participantID))
}

func (s *TelehealthSessionService) StopScreenShare(ctx context.Context) (*domain.Change, error) {
	return s.run(ctx, "stop_screen_share", func(ctx context.Context, _ *domain.Change) error {
		return s.sessions.StopScreenShare(ctx)
	})
}

func (s *TelehealthSessionService) StartRecording(ctx context.Context, participantID domain.ParticipantID) (*domain.Change, error) {
	return s.run(ctx, "start_recording", func(ctx context.Context, _ *domain.Change) error {
		return s.sessions.StartRecording(ctx, participantID)
	}, participantAttr(participantID))
}

func (s *TelehealthSessionService) StopRecording(ctx context.Context) (*domain.Change, error) {
	return s.run(ctx, "stop_recording", func(ctx context.Context, _ *domain.Change) error {
		return s.sessions.StopRecording(ctx)
	})
}

func (s *TelehealthSessionService) AddParticipant(ctx context.Context, p domain.NewParticipant) (*domain.Change, error) {
	return s.run(ctx, "add_participant", func(ctx context.Context, ch *domain.Change) error {
		added, err := s.participants.AddParticipant(ctx, p)
		if err != nil {
			return err
		}
		ch.Participant = &added
		return nil
	}, participantAttr(p.ID))
}

// RemoveParticipant disconnects a participant. A screen share they own is stopped with them.
func (s *TelehealthSessionService) RemoveParticipant(ctx context.Context, participantID domain.ParticipantID) (*domain.Change, error) {
	return s.run(ctx, "remove_participant", func(ctx context.Context, ch *domain.Change) error {
		removed, err := s.participants.RemoveParticipant(ctx, participantID)
		if err != nil {
			return err
		}
		ch.Participant = &removed
		if snap := s.sessions.Snapshot(); snap.HasActiveScreenShare && snap.ScreenSharer == participantID {
			return s.sessions.StopScreenShare(ctx)
		}
		return nil
	}, participantAttr(participantID))
}

// connectedActor looks up the participant performing an action. A
// disconnected participant keeps its record but may no longer act.
func (s *TelehealthSessionService) connectedActor(id domain.ParticipantID, permission string) (domain.Participant, error) {
	actor, err := s.participants.GetParticipant(id)
	if err != nil {
		return domain.Participant{}, err
	}
	if !actor.IsConnected {
		return domain.Participant{}, errors.NewInsufficientPermissionsError(permission).
			WithDetail("reason", "participant is not connected")
	}
	return actor, nil
}

func (s *TelehealthSessionService) UpdateParticipantPermissions(ctx context.Context, actorID, targetID domain.ParticipantID, patch domain.PermissionsPatch) (*domain.Change, error) {
	return s.run(ctx, "update_participant_permissions", func(ctx context.Context, ch *domain.Change) error {
		actor, err := s.connectedActor(actorID, "manage participants")
		if err != nil {
			return err
		}
		target, err := s.participants.GetParticipant(targetID)
		if err != nil {
			return err
		}
		if err := s.policy.CanUpdatePermissions(actor, target, patch); err != nil {
			return err
		}
		updated, err := s.participants.UpdateParticipantPermissions(ctx, targetID, patch, actorID)
		if err != nil {
			return err
		}
		ch.Participant = &updated
		return nil
	}, participantAttr(targetID))
}

// MuteParticipant requires mutedBy to hold canMuteOthers, also when muting themselves.
func (s *TelehealthSessionService) MuteParticipant(ctx context.Context, targetID domain.ParticipantID, muted bool, mutedBy domain.ParticipantID) (*domain.Change, error) {
	return s.run(ctx, "mute_participant", func(ctx context.Context, ch *domain.Change) error {
		actor, err := s.connectedActor(mutedBy, domain.PermMuteOthers)
		if err != nil {
			return err
		}
		if !actor.Permissions.CanMuteOthers {
			return errors.NewInsufficientPermissionsError(domain.PermMuteOthers)
		}
		updated, err := s.participants.SetMuted(ctx, targetID, muted, mutedBy)
		if err != nil {
			return err
		}
		ch.Participant = &updated
		return nil
	}, participantAttr(targetID))
}

// InviteParticipant creates the invitation and then hands it to the notifier.
// Delivery is attempted once; a failure is ledgered and reported through Delivered.
func (s *TelehealthSessionService) InviteParticipant(ctx context.Context, req domain.InviteRequest) (*domain.Change, error) {
	return s.run(ctx, "invite_participant", func(ctx context.Context, ch *domain.Change) error {
		inv, err := s.participants.InviteParticipant(ctx, req)
		if err != nil {
			return err
		}
		ch.Invitation = &inv
		if s.notifier == nil {
			return nil
		}

		delivered := true
		if err := s.notifier.Deliver(ctx, inv); err != nil {
			delivered = false
			s.logger.Warnw("Invitation delivery failed", "invitation_id", inv.ID, "error", err)
			s.compliance.LogTechnicalIssue(ctx, req.InvitedBy, err, map[string]interface{}{
				"operation":    "deliver_invitation",
				"invitationId": string(inv.ID),
			})
		}
		s.metrics.InvitationDelivered(delivered)
		ch.Delivered = &delivered
		return nil
	}, participantAttr(req.InvitedBy))
}

func (s *TelehealthSessionService) AcceptInvitation(ctx context.Context, invitationID domain.InvitationID, participantID domain.ParticipantID) (*domain.Change, error) {
	return s.run(ctx, "accept_invitation", func(ctx context.Context, ch *domain.Change) error {
		p, inv, err := s.participants.AcceptInvitation(ctx, invitationID, participantID)
		if err != nil {
			return err
		}
		ch.Participant = &p
		ch.Invitation = &inv
		return nil
	}, tracing.InvitationIDKey.String(string(invitationID)), participantAttr(participantID))
}

func (s *TelehealthSessionService) DeclineInvitation(ctx context.Context, invitationID domain.InvitationID) (*domain.Change, error) {
	return s.run(ctx, "decline_invitation", func(ctx context.Context, ch *domain.Change) error {
		inv, err := s.participants.DeclineInvitation(ctx, invitationID)
		if err != nil {
			return err
		}
		ch.Invitation = &inv
		return nil
	}, tracing.InvitationIDKey.String(string(invitationID)))
}

func (s *TelehealthSessionService) RecordConsent(ctx context.Context, participantID domain.ParticipantID, consentType string, granted bool) (*domain.Change, error) {
	return s.run(ctx, "record_consent", func(ctx context.Context, ch *domain.Change) error {
		if strings.TrimSpace(consentType) == "" {
			return errors.NewInvalidInputError("consent type is required")
		}
		if err := s.sessions.RequireLive(); err != nil {
			return err
		}
		p, err := s.participants.GetParticipant(participantID)
		if err != nil {
			return err
		}
		ch.Participant = &p
		s.compliance.LogConsent(ctx, participantID, consentType, granted)
		return nil
	}, participantAttr(participantID))
}

// ReportTechnicalIssue ledgers a client-side problem. participantID may be empty.
func (s *TelehealthSessionService) ReportTechnicalIssue(ctx context.Context, participantID domain.ParticipantID, description string) (*domain.Change, error) {
	return s.run(ctx, "report_technical_issue", func(ctx context.Context, _ *domain.Change) error {
		description = utils.TruncateString(utils.SanitizeString(description), maxIssueDescription)
		if description == "" {
			return errors.NewInvalidInputError("description is required")
		}
		if err := s.sessions.RequireLive(); err != nil {
			return err
		}
		if participantID != "" {
			if _, err := s.participants.GetParticipant(participantID); err != nil {
				return err
			}
		}
		s.compliance.LogTechnicalIssue(ctx, participantID, nil, map[string]interface{}{
			"source":      "reported",
			"description": description,
		})
		return nil
	}, participantAttr(participantID))
}

// ReportConnectionQuality records a 0..100 sample. It is not ledgered.
func (s *TelehealthSessionService) ReportConnectionQuality(ctx context.Context, participantID domain.ParticipantID, quality float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.sessions.RequireLive(); err != nil {
		return err
	}
	return s.participants.SetConnectionQuality(participantID, quality)
}

func (s *TelehealthSessionService) RequirePermission(participantID domain.ParticipantID, permission string) error {
	p, err := s.connectedActor(participantID, permission)
	if err != nil {
		return err
	}
	if !p.Permissions.Has(permission) {
		return errors.NewInsufficientPermissionsError(permission)
	}
	return nil
}

func (s *TelehealthSessionService) GetSessionState() domain.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions.GetSessionState()
}

func (s *TelehealthSessionService) GetParticipant(participantID domain.ParticipantID) (domain.Participant, error) {
	return s.participants.GetParticipant(participantID)
}

func (s *TelehealthSessionService) GetParticipants() []domain.Participant {
	return s.participants.GetParticipants()
}

func (s *TelehealthSessionService) GetConnectedParticipants() []domain.Participant {
	return s.participants.GetConnectedParticipants()
}

func (s *TelehealthSessionService) GetPendingInvitations() []domain.Invitation {
	return s.participants.GetPendingInvitations()
}

func (s *TelehealthSessionService) ListInvitations(filter domain.InvitationFilter) []domain.Invitation {
	return s.participants.ListInvitations(filter)
}

func (s *TelehealthSessionService) GetMediaSettings() domain.MediaSettings {
	return s.sessions.GetMediaSettings()
}

func (s *TelehealthSessionService) GetLocalStream() *domain.MediaHandle {
	return s.sessions.GetLocalStream()
}

func (s *TelehealthSessionService) GetScreenShareStream() *domain.MediaHandle {
	return s.sessions.GetScreenShareStream()
}

func (s *TelehealthSessionService) GetSessionEvents() []domain.ComplianceEvent {
	return s.compliance.GetSessionEvents()
}

func (s *TelehealthSessionService) GetComplianceSummary() domain.ComplianceSummary {
	return s.compliance.GetComplianceSummary()
}

func (s *TelehealthSessionService) ExportComplianceData() domain.ComplianceExport {
	return s.compliance.ExportComplianceData()
}

// GetSessionAnalytics derives analytics from the current state.
func (s *TelehealthSessionService) GetSessionAnalytics() domain.SessionAnalytics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session := s.sessions.Snapshot()
	summary := s.compliance.GetComplianceSummary()
	duration := session.Elapsed(s.now())
	return domain.SessionAnalytics{
		SessionID:                s.id,
		TotalDuration:            duration,
		ParticipantCount:         len(s.participants.GetParticipants()),
		AverageConnectionQuality: s.participants.AverageConnectionQuality(),
		TechnicalIssuesCount:     summary.TechnicalIssues,
		RecordingDuration:        s.sessions.RecordingDuration(),
		ComplianceScore:          ComplianceScore(summary, duration, session.Configuration.RecordingEnabled),
	}
}
