package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/gleamops/fieldops-api/internal/middleware"
	"github.com/gleamops/fieldops-api/internal/models"
	appErrors "github.com/gleamops/fieldops-api/pkg/errors"
	"github.com/gleamops/fieldops-api/pkg/middleware/requestid"
	"github.com/gleamops/fieldops-api/pkg/response"
)

// mustClaims fetches the verified claims or writes a 401. Handlers bail out
// when the second return is false.
func mustClaims(c *gin.Context) (*models.JWTClaims, bool) {
	claims, ok := middleware.Claims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return nil, false
	}
	return claims, true
}

// auditContext collects the request-scoped metadata every mutation records.
func auditContext(c *gin.Context, claims *models.JWTClaims) models.AuditContext {
	return models.AuditContext{
		ActorID:   claims.UserID,
		Source:    "api",
		RequestID: requestid.Value(c),
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}

// bindJSON binds the request body and writes a 400 on failure.
func bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return false
	}
	return true
}

// bindQuery binds query parameters and writes a 400 on failure.
func bindQuery(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindQuery(dest); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return false
	}
	return true
}
