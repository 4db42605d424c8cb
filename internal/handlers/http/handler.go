package http

import (
	"context"
	"net/http"

	"telecare/internal/core/domain"
	"telecare/internal/core/ports"
	"telecare/internal/core/services"
	"telecare/internal/infrastructure/middleware"
	"telecare/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SessionClaimer records which instance owns a session id.
type SessionClaimer interface {
	Claim(ctx context.Context, id domain.SessionID) error
	Release(ctx context.Context, id domain.SessionID)
}

// Dependencies of the HTTP surface. Archive, Events, Ownership and Publisher
// are optional.
type Dependencies struct {
	Sessions  ports.SessionDirectory
	Auth      ports.AuthService
	Archive   ports.ComplianceArchive
	Events    ports.ComplianceEventReader
	Ownership SessionClaimer
	Publisher ports.SessionEventPublisher
	// Defaults fill the fields a create request leaves out.
	Defaults domain.SessionConfiguration
	APIKey   string
	Logger   *zap.SugaredLogger
}

type SessionHandler struct {
	deps   Dependencies
	logger *zap.SugaredLogger
}

func NewSessionHandler(deps Dependencies) *SessionHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &SessionHandler{deps: deps, logger: logger}
}

func (h *SessionHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")

	// Scheduling endpoints run before any participant holds a token.
	admin := api.Group("", middleware.APIKeyMiddleware(h.deps.APIKey))
	{
		admin.POST("/sessions", h.CreateSession)
		admin.GET("/sessions", h.ListSessions)
		admin.DELETE("/sessions/:id", h.RemoveSession)
		admin.POST("/sessions/:id/token", h.IssueToken)
		admin.POST("/sessions/:id/participants", h.AddParticipant)
		admin.POST("/sessions/:id/invitations/:iid/accept", h.AcceptInvitation)
		admin.POST("/sessions/:id/invitations/:iid/decline", h.DeclineInvitation)

		admin.GET("/archive/sessions", h.ListArchived)
		admin.GET("/archive/sessions/:id/export", h.GetArchivedExport)
		admin.GET("/archive/sessions/:id/events", h.GetMirroredEvents)
	}

	session := api.Group("/sessions/:id", middleware.AuthMiddleware(h.deps.Auth))
	{
		session.GET("", h.GetSession)
		session.POST("/start", h.StartSession)
		session.POST("/end", h.EndSession)
		session.POST("/pause", h.PauseSession)
		session.POST("/resume", h.ResumeSession)
		session.POST("/minimize", h.MinimizeSession)
		session.POST("/maximize", h.MaximizeSession)
		session.PATCH("/media", h.UpdateMediaSettings)

		session.POST("/screen-share", h.StartScreenShare)
		session.DELETE("/screen-share", h.StopScreenShare)
		session.POST("/recording", h.StartRecording)
		session.DELETE("/recording", h.StopRecording)

		session.DELETE("/participants/:pid", h.RemoveParticipant)
		session.PATCH("/participants/:pid/permissions", h.UpdatePermissions)
		session.POST("/participants/:pid/mute", h.MuteParticipant)

		session.POST("/invitations", h.InviteParticipant)
		session.GET("/invitations", h.ListInvitations)

		session.POST("/consent", h.RecordConsent)
		session.POST("/technical-issues", h.ReportTechnicalIssue)

		session.GET("/compliance/events", h.GetComplianceEvents)
		session.GET("/compliance/summary", h.GetComplianceSummary)
		session.GET("/compliance/export", h.ExportCompliance)
		session.GET("/analytics", h.GetAnalytics)
	}
}

// lookup resolves the :id session.
func (h *SessionHandler) lookup(c *gin.Context) (ports.TelehealthSession, bool) {
	sess, err := h.deps.Sessions.Get(domain.SessionID(c.Param("id")))
	if err != nil {
		_ = c.Error(err)
		return nil, false
	}
	return sess, true
}

// authorized resolves the session and the caller, then checks action.
func (h *SessionHandler) authorized(c *gin.Context, action services.Action, target domain.ParticipantID) (ports.TelehealthSession, *domain.ParticipantClaims, bool) {
	sess, ok := h.lookup(c)
	if !ok {
		return nil, nil, false
	}
	claims, ok := middleware.Claims(c)
	if !ok {
		_ = c.Error(errors.NewUnauthorizedError("missing caller identity"))
		return nil, nil, false
	}
	if action != "" {
		if err := services.Authorize(sess, claims, action, target); err != nil {
			_ = c.Error(err)
			return nil, nil, false
		}
	}
	return sess, claims, true
}

// caller resolves the session and caller for operations the session checks itself.
func (h *SessionHandler) caller(c *gin.Context) (ports.TelehealthSession, domain.ParticipantID, bool) {
	sess, claims, ok := h.authorized(c, "", "")
	if !ok {
		return nil, "", false
	}
	return sess, claims.ParticipantID, true
}

func bind(c *gin.Context, v interface{}) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		_ = c.Error(errors.NewInvalidInputError("invalid request format").WithDetail("cause", err.Error()))
		return false
	}
	return true
}

// bindOptional accepts an empty body.
func bindOptional(c *gin.Context, v interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	return bind(c, v)
}

func respond(c *gin.Context, v interface{}, err error) {
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, v)
}
