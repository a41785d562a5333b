package middleware

import (
	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/activity-report-api/pkg/errors"
	"github.com/noah-isme/activity-report-api/pkg/response"
)

// RequireAdmin lets only administrators through.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := ActorFromContext(c)
		if actor == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if !actor.IsAdmin {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}
