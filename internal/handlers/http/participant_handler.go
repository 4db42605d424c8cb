package http

import (
	"net/http"

	"telecare/internal/core/domain"
	"telecare/internal/core/services"
	"telecare/pkg/errors"

	"github.com/gin-gonic/gin"
)

func (h *SessionHandler) AddParticipant(c *gin.Context) {
	sess, ok := h.lookup(c)
	if !ok {
		return
	}
	var req domain.NewParticipant
	if !bind(c, &req) {
		return
	}
	ch, err := sess.AddParticipant(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, ch)
}

func (h *SessionHandler) RemoveParticipant(c *gin.Context) {
	target := domain.ParticipantID(c.Param("pid"))
	sess, _, ok := h.authorized(c, services.ActionRemoveParticipant, target)
	if !ok {
		return
	}
	ch, err := sess.RemoveParticipant(c.Request.Context(), target)
	respond(c, ch, err)
}

func (h *SessionHandler) UpdatePermissions(c *gin.Context) {
	var patch domain.PermissionsPatch
	if !bind(c, &patch) {
		return
	}
	sess, caller, ok := h.caller(c)
	if !ok {
		return
	}
	ch, err := sess.UpdateParticipantPermissions(c.Request.Context(), caller, domain.ParticipantID(c.Param("pid")), patch)
	respond(c, ch, err)
}

type MuteRequest struct {
	Muted *bool `json:"muted" binding:"required"`
}

func (h *SessionHandler) MuteParticipant(c *gin.Context) {
	var req MuteRequest
	if !bind(c, &req) {
		return
	}
	sess, caller, ok := h.caller(c)
	if !ok {
		return
	}
	ch, err := sess.MuteParticipant(c.Request.Context(), domain.ParticipantID(c.Param("pid")), *req.Muted, caller)
	respond(c, ch, err)
}

type InviteRequest struct {
	Email   string      `json:"email" binding:"required"`
	Name    string      `json:"name" binding:"required"`
	Role    domain.Role `json:"role" binding:"required"`
	Message string      `json:"message"`
}

func (h *SessionHandler) InviteParticipant(c *gin.Context) {
	var req InviteRequest
	if !bind(c, &req) {
		return
	}
	sess, caller, ok := h.caller(c)
	if !ok {
		return
	}
	ch, err := sess.InviteParticipant(c.Request.Context(), domain.InviteRequest{
		InvitedBy: caller,
		Email:     req.Email,
		Name:      req.Name,
		Role:      req.Role,
		Message:   req.Message,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, ch)
}

func (h *SessionHandler) ListInvitations(c *gin.Context) {
	status := domain.InvitationStatus(c.Query("status"))
	if status != "" && !status.Valid() {
		_ = c.Error(errors.NewInvalidInputError("unknown invitation status").WithDetail("status", status))
		return
	}
	sess, _, ok := h.authorized(c, services.ActionViewInvitations, "")
	if !ok {
		return
	}

	var invitations []domain.Invitation
	if status == domain.InvitationPending {
		invitations = sess.GetPendingInvitations()
	} else {
		invitations = sess.ListInvitations(domain.InvitationFilter{Status: status})
	}
	c.JSON(http.StatusOK, gin.H{"invitations": invitations})
}

type AcceptInvitationRequest struct {
	ParticipantID domain.ParticipantID `json:"participantId" binding:"required"`
}

func (h *SessionHandler) AcceptInvitation(c *gin.Context) {
	sess, ok := h.lookup(c)
	if !ok {
		return
	}
	var req AcceptInvitationRequest
	if !bind(c, &req) {
		return
	}
	ch, err := sess.AcceptInvitation(c.Request.Context(), domain.InvitationID(c.Param("iid")), req.ParticipantID)
	respond(c, ch, err)
}

func (h *SessionHandler) DeclineInvitation(c *gin.Context) {
	sess, ok := h.lookup(c)
	if !ok {
		return
	}
	ch, err := sess.DeclineInvitation(c.Request.Context(), domain.InvitationID(c.Param("iid")))
	respond(c, ch, err)
}

type ConsentRequest struct {
	ConsentType string `json:"consentType" binding:"required"`
	Granted     *bool  `json:"granted" binding:"required"`
}

func (h *SessionHandler) RecordConsent(c *gin.Context) {
	var req ConsentRequest
	if !bind(c, &req) {
		return
	}
	sess, caller, ok := h.caller(c)
	if !ok {
		return
	}
	ch, err := sess.RecordConsent(c.Request.Context(), caller, req.ConsentType, *req.Granted)
	respond(c, ch, err)
}

type TechnicalIssueRequest struct {
	Description string `json:"description" binding:"required"`
}

func (h *SessionHandler) ReportTechnicalIssue(c *gin.Context) {
	var req TechnicalIssueRequest
	if !bind(c, &req) {
		return
	}
	sess, caller, ok := h.caller(c)
	if !ok {
		return
	}
	ch, err := sess.ReportTechnicalIssue(c.Request.Context(), caller, req.Description)
	respond(c, ch, err)
}
