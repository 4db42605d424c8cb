package http

import (
	"net/http"

	"telecare/internal/core/domain"
	"telecare/pkg/errors"

	"github.com/gin-gonic/gin"
)

func (h *SessionHandler) ListArchived(c *gin.Context) {
	if h.deps.Archive == nil {
		_ = c.Error(archiveDisabled())
		return
	}
	ids, err := h.deps.Archive.List(c.Request.Context())
	if err != nil {
		_ = c.Error(errors.Wrap(err, errors.ErrCodeInternal, "failed to list archived sessions", true))
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": ids})
}

// GetArchivedExport returns the export stored when the session ended. It
// outlives the in-memory session.
func (h *SessionHandler) GetArchivedExport(c *gin.Context) {
	if h.deps.Archive == nil {
		_ = c.Error(archiveDisabled())
		return
	}
	export, err := h.deps.Archive.Get(c.Request.Context(), domain.SessionID(c.Param("id")))
	respond(c, export, err)
}

func (h *SessionHandler) GetMirroredEvents(c *gin.Context) {
	if h.deps.Events == nil {
		_ = c.Error(archiveDisabled())
		return
	}
	events, err := h.deps.Events.Events(c.Request.Context(), domain.SessionID(c.Param("id")))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func archiveDisabled() error {
	return errors.NewValidationError(errors.ErrCodeInvalidInput, "compliance archive is not configured")
}
