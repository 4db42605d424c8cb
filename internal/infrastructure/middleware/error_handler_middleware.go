package middleware

import (
	"net/http"

	"telecare/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorResponse is the body written for every failed request.
type ErrorResponse struct {
	Error     string                 `json:"error"`
	Message   string                 `json:"message"`
	Type      string                 `json:"type"`
	Retryable bool                   `json:"retryable"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// NewErrorResponse maps any error onto the wire shape and its HTTP status.
func NewErrorResponse(err error) (int, ErrorResponse) {
	te := errors.GetTelehealthError(err)
	if te == nil {
		te = errors.NewInternalError("internal server error")
	}
	status := te.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return status, ErrorResponse{
		Error:     string(te.Code),
		Message:   te.Message,
		Type:      string(te.Type),
		Retryable: te.Retryable,
		Details:   te.Details,
	}
}

// ErrorHandlerMiddleware renders the last error attached to the context.
func ErrorHandlerMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err
		status, body := NewErrorResponse(err)

		if status >= http.StatusInternalServerError {
			logger.Errorw("Request failed",
				"code", body.Error,
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
				"error", err,
			)
		} else {
			logger.Debugw("Request rejected",
				"code", body.Error,
				"status", status,
				"path", c.Request.URL.Path,
			)
		}
		c.JSON(status, body)
	}
}

// RecoveryMiddleware converts panics into INTERNAL_ERROR responses.
func RecoveryMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorw("Panic recovered",
					"error", r,
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
				)
				status, body := NewErrorResponse(nil)
				c.AbortWithStatusJSON(status, body)
			}
		}()
		c.Next()
	}
}
