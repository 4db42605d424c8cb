package middleware

import (
	"crypto/subtle"

	"telecare/pkg/errors"

	"github.com/gin-gonic/gin"
)

const APIKeyHeader = "X-Api-Key"

// APIKeyMiddleware guards the scheduling endpoints that run before any
// participant holds a token.
func APIKeyMiddleware(key string) gin.HandlerFunc {
	expected := []byte(key)
	return func(c *gin.Context) {
		got := []byte(c.GetHeader(APIKeyHeader))
		if len(got) == 0 || subtle.ConstantTimeCompare(got, expected) != 1 {
			abort(c, errors.NewUnauthorizedError("valid api key required"))
			return
		}
		c.Next()
	}
}
