package middleware

import (
	"time"

	"telecare/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

const RequestIDHeader = "X-Request-Id"

// RequestLoggerMiddleware tags each request with an id and logs it once the
// response status is known. Handlers can log through logger.ContextLogger and
// pick up the same request, trace and session fields.
func RequestLoggerMiddleware(cl *logger.ContextLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header(RequestIDHeader, requestID)

		ctx := logger.WithValue(c.Request.Context(), logger.RequestIDKey, requestID)
		if id := c.Param("id"); id != "" {
			ctx = logger.WithValue(ctx, logger.SessionIDKey, id)
		}
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		ctx = c.Request.Context()
		if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
			ctx = logger.WithValue(ctx, logger.TraceIDKey, sc.TraceID().String())
		}
		if pid := c.GetString("participant_id"); pid != "" {
			ctx = logger.WithValue(ctx, logger.UserIDKey, pid)
		}

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		cl.LogRequest(ctx, c.Request.Method, path, c.Writer.Status(), time.Since(start).Milliseconds())
	}
}
