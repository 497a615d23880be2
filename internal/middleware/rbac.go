package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/adelinocpp/postgraduate-schedules/internal/models"
	appErrors "github.com/adelinocpp/postgraduate-schedules/pkg/errors"
	"github.com/adelinocpp/postgraduate-schedules/pkg/response"
)

// RequireRoles lets through requests whose claims carry one of the roles.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		claims := CurrentUser(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}
