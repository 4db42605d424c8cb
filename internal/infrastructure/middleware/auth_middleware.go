package middleware

import (
	"strings"

	"telecare/internal/core/domain"
	"telecare/internal/core/ports"
	"telecare/pkg/errors"

	"github.com/gin-gonic/gin"
)

const claimsKey = "participant_claims"

// AuthMiddleware requires a bearer token issued for the session named by the
// :id route parameter.
func AuthMiddleware(authService ports.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			abort(c, errors.NewUnauthorizedError("authorization header required"))
			return
		}

		claims, err := authService.ValidateToken(token)
		if err != nil {
			abort(c, errors.NewUnauthorizedError(err.Error()))
			return
		}

		if id := c.Param("id"); id != "" && domain.SessionID(id) != claims.SessionID {
			abort(c, errors.NewPermissionError(errors.ErrCodeInsufficientPermissions, "token was issued for another session").
				WithDetail("session_id", id))
			return
		}

		c.Set(claimsKey, claims)
		c.Set("participant_id", string(claims.ParticipantID))
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// Claims returns the caller identity set by AuthMiddleware.
func Claims(c *gin.Context) (*domain.ParticipantClaims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*domain.ParticipantClaims)
	return claims, ok
}

func abort(c *gin.Context, err *errors.TelehealthError) {
	_ = c.Error(err)
	c.Abort()
}
