package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/adelinocpp/postgraduate-schedules/internal/middleware"
)

// actorFromContext names the caller for audit logs: email when present,
// otherwise the user id.
func actorFromContext(c *gin.Context) string {
	claims := middleware.CurrentUser(c)
	if claims == nil {
		return ""
	}
	if claims.Email != "" {
		return claims.Email
	}
	return claims.UserID
}
