package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/gleamops/fieldops-api/internal/models"
	appErrors "github.com/gleamops/fieldops-api/pkg/errors"
	"github.com/gleamops/fieldops-api/pkg/response"
)

// RequireMinRole rejects callers below the given role in the privilege
// hierarchy. Capability-level checks still live in the services.
func RequireMinRole(min models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := Claims(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if claims.Role.Rank() == 0 || claims.Role.Rank() < min.Rank() {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}
