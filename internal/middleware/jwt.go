package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/gleamops/fieldops-api/internal/models"
	appErrors "github.com/gleamops/fieldops-api/pkg/errors"
	"github.com/gleamops/fieldops-api/pkg/response"
)

const claimsContextKey = "auth_claims"

type tokenValidator interface {
	ValidateToken(token string) (*models.JWTClaims, error)
}

// JWT authenticates the request via a Bearer token and stores the verified
// claims in the Gin context.
func JWT(auth tokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		claims, err := auth.ValidateToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		c.Set(claimsContextKey, claims)
		c.Next()
	}
}

// Claims returns the verified claims stored by the JWT middleware.
func Claims(c *gin.Context) (*models.JWTClaims, bool) {
	value, exists := c.Get(claimsContextKey)
	if !exists {
		return nil, false
	}
	claims, ok := value.(*models.JWTClaims)
	return claims, ok
}
