package http

import (
	"fmt"
	"net/http"
	"time"

	"telecare/internal/core/domain"
	"telecare/internal/core/ports"
	"telecare/internal/core/services"
	"telecare/pkg/errors"
	"telecare/pkg/validation"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type CreateSessionRequest struct {
	SessionID            domain.SessionID           `json:"sessionId"`
	MaxParticipants      *int                       `json:"maxParticipants"`
	RecordingEnabled     *bool                      `json:"recordingEnabled"`
	ScreenShareEnabled   *bool                      `json:"screenShareEnabled"`
	TranscriptionEnabled *bool                      `json:"transcriptionEnabled"`
	InvitationTTL        string                     `json:"invitationTtl"`
	Compliance           *domain.ComplianceSettings `json:"compliance"`
	Media                *domain.MediaSettingsPatch `json:"media"`
}

// configuration merges the request over the configured defaults.
func (r CreateSessionRequest) configuration(defaults domain.SessionConfiguration) (domain.SessionConfiguration, error) {
	cfg := defaults
	cfg.SessionID = r.SessionID
	if cfg.SessionID == "" {
		cfg.SessionID = domain.SessionID(uuid.New().String())
	}
	if err := validation.ValidateIdentifier(string(cfg.SessionID), "sessionId"); err != nil {
		return cfg, err
	}

	if r.MaxParticipants != nil {
		if err := validation.ValidateMaxParticipants(*r.MaxParticipants); err != nil {
			return cfg, err
		}
		cfg.MaxParticipants = *r.MaxParticipants
	}
	if r.RecordingEnabled != nil {
		cfg.RecordingEnabled = *r.RecordingEnabled
	}
	if r.ScreenShareEnabled != nil {
		cfg.ScreenShareEnabled = *r.ScreenShareEnabled
	}
	if r.TranscriptionEnabled != nil {
		cfg.TranscriptionEnabled = *r.TranscriptionEnabled
	}
	if r.InvitationTTL != "" {
		ttl, err := time.ParseDuration(r.InvitationTTL)
		if err != nil {
			return cfg, fmt.Errorf("invalid invitationTtl: %w", err)
		}
		cfg.InvitationTTL = ttl
	}
	if r.Compliance != nil {
		cfg.Compliance = *r.Compliance
	}
	if r.Media != nil {
		cfg.Media, _ = cfg.Media.Apply(*r.Media)
	}
	return cfg, cfg.Validate()
}

func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if !bindOptional(c, &req) {
		return
	}
	cfg, err := req.configuration(h.deps.Defaults)
	if err != nil {
		_ = c.Error(errors.NewInvalidInputError(err.Error()))
		return
	}

	ctx := c.Request.Context()
	if h.deps.Ownership != nil {
		if err := h.deps.Ownership.Claim(ctx, cfg.SessionID); err != nil {
			_ = c.Error(err)
			return
		}
	}
	sess, err := h.deps.Sessions.Create(ctx, cfg)
	if err != nil {
		if h.deps.Ownership != nil && !errors.IsCode(err, errors.ErrCodeSessionExists) {
			h.deps.Ownership.Release(ctx, cfg.SessionID)
		}
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, sess.GetSessionState())
}

func (h *SessionHandler) ListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": h.deps.Sessions.List()})
}

// RemoveSession drops an ended or never-started session from this instance.
func (h *SessionHandler) RemoveSession(c *gin.Context) {
	id := domain.SessionID(c.Param("id"))
	if err := h.deps.Sessions.Remove(id); err != nil {
		_ = c.Error(err)
		return
	}
	if h.deps.Ownership != nil {
		h.deps.Ownership.Release(c.Request.Context(), id)
	}
	c.Status(http.StatusNoContent)
}

type IssueTokenRequest struct {
	ParticipantID domain.ParticipantID `json:"participantId" binding:"required"`
	Role          domain.Role          `json:"role"`
}

// IssueToken mints a participant token. A participant already on the roster
// always gets its roster role.
func (h *SessionHandler) IssueToken(c *gin.Context) {
	sess, ok := h.lookup(c)
	if !ok {
		return
	}
	var req IssueTokenRequest
	if !bind(c, &req) {
		return
	}
	if err := validation.ValidateIdentifier(string(req.ParticipantID), "participantId"); err != nil {
		_ = c.Error(errors.NewInvalidInputError(err.Error()))
		return
	}

	role := req.Role
	if p, err := sess.GetParticipant(req.ParticipantID); err == nil {
		role = p.Role
	}
	if !role.Valid() {
		_ = c.Error(errors.NewInvalidInputError(fmt.Sprintf("unknown role %q", role)))
		return
	}

	token, expiresAt, err := h.deps.Auth.IssueToken(sess.ID(), req.ParticipantID, role)
	if err != nil {
		_ = c.Error(errors.Wrap(err, errors.ErrCodeInternal, "failed to issue token", false))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":         token,
		"expiresAt":     expiresAt,
		"sessionId":     sess.ID(),
		"participantId": req.ParticipantID,
		"role":          role,
	})
}

func (h *SessionHandler) GetSession(c *gin.Context) {
	sess, _, ok := h.authorized(c, services.ActionViewState, "")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"state":                 sess.GetSessionState(),
		"mediaSettings":         sess.GetMediaSettings(),
		"localStream":           sess.GetLocalStream(),
		"screenShareStream":     sess.GetScreenShareStream(),
		"pendingInvitations":    len(sess.GetPendingInvitations()),
		"connectedParticipants": len(sess.GetConnectedParticipants()),
	})
}

func (h *SessionHandler) StartSession(c *gin.Context) {
	sess, _, ok := h.authorized(c, services.ActionStartSession, "")
	if !ok {
		return
	}
	ch, err := sess.StartSession(c.Request.Context())
	respond(c, ch, err)
}

type EndSessionRequest struct {
	Reason domain.EndReason `json:"reason"`
}

func (h *SessionHandler) EndSession(c *gin.Context) {
	var req EndSessionRequest
	if !bindOptional(c, &req) {
		return
	}
	if req.Reason != "" && !req.Reason.Valid() {
		_ = c.Error(errors.NewInvalidInputError(fmt.Sprintf("unknown end reason %q", req.Reason)))
		return
	}
	sess, _, ok := h.authorized(c, services.ActionEndSession, "")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	result, err := sess.EndSession(ctx, req.Reason)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if h.deps.Publisher != nil {
		if err := h.deps.Publisher.PublishSessionEnded(ctx, result); err != nil {
			h.logger.Warnw("Failed to publish session end", "session_id", sess.ID(), "error", err)
		}
	}
	c.JSON(http.StatusOK, result)
}

func (h *SessionHandler) lifecycle(c *gin.Context, action services.Action, op func(ports.TelehealthSession) (*domain.Change, error)) {
	sess, _, ok := h.authorized(c, action, "")
	if !ok {
		return
	}
	ch, err := op(sess)
	respond(c, ch, err)
}

func (h *SessionHandler) PauseSession(c *gin.Context) {
	h.lifecycle(c, services.ActionPauseSession, func(s ports.TelehealthSession) (*domain.Change, error) {
		return s.PauseSession(c.Request.Context())
	})
}

func (h *SessionHandler) ResumeSession(c *gin.Context) {
	h.lifecycle(c, services.ActionResumeSession, func(s ports.TelehealthSession) (*domain.Change, error) {
		return s.ResumeSession(c.Request.Context())
	})
}

func (h *SessionHandler) MinimizeSession(c *gin.Context) {
	h.lifecycle(c, services.ActionMinimizeSession, func(s ports.TelehealthSession) (*domain.Change, error) {
		return s.MinimizeSession(c.Request.Context())
	})
}

func (h *SessionHandler) MaximizeSession(c *gin.Context) {
	h.lifecycle(c, services.ActionMaximizeSession, func(s ports.TelehealthSession) (*domain.Change, error) {
		return s.MaximizeSession(c.Request.Context())
	})
}

func (h *SessionHandler) UpdateMediaSettings(c *gin.Context) {
	var patch domain.MediaSettingsPatch
	if !bind(c, &patch) {
		return
	}
	h.lifecycle(c, services.ActionUpdateMedia, func(s ports.TelehealthSession) (*domain.Change, error) {
		return s.UpdateMediaSettings(c.Request.Context(), patch)
	})
}

func (h *SessionHandler) StartScreenShare(c *gin.Context) {
	sess, caller, ok := h.caller(c)
	if !ok {
		return
	}
	ch, err := sess.StartScreenShare(c.Request.Context(), caller)
	respond(c, ch, err)
}

func (h *SessionHandler) StopScreenShare(c *gin.Context) {
	h.lifecycle(c, services.ActionStopScreenShare, func(s ports.TelehealthSession) (*domain.Change, error) {
		return s.StopScreenShare(c.Request.Context())
	})
}

func (h *SessionHandler) StartRecording(c *gin.Context) {
	sess, caller, ok := h.caller(c)
	if !ok {
		return
	}
	ch, err := sess.StartRecording(c.Request.Context(), caller)
	respond(c, ch, err)
}

func (h *SessionHandler) StopRecording(c *gin.Context) {
	h.lifecycle(c, services.ActionStopRecording, func(s ports.TelehealthSession) (*domain.Change, error) {
		return s.StopRecording(c.Request.Context())
	})
}

func (h *SessionHandler) GetComplianceEvents(c *gin.Context) {
	sess, _, ok := h.authorized(c, services.ActionViewCompliance, "")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": sess.GetSessionEvents()})
}

func (h *SessionHandler) GetComplianceSummary(c *gin.Context) {
	sess, _, ok := h.authorized(c, services.ActionViewCompliance, "")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sess.GetComplianceSummary())
}

func (h *SessionHandler) ExportCompliance(c *gin.Context) {
	sess, _, ok := h.authorized(c, services.ActionViewCompliance, "")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sess.ExportComplianceData())
}

func (h *SessionHandler) GetAnalytics(c *gin.Context) {
	sess, _, ok := h.authorized(c, services.ActionViewCompliance, "")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sess.GetSessionAnalytics())
}
