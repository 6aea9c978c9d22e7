package middleware

import (
	"strings"

	"advisor-marketplace/backend/pkg/errors"
	"advisor-marketplace/backend/pkg/jwt"
	"advisor-marketplace/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// JWTAuthMiddleware validates the Authorization bearer token and stores the
// authenticated user id and role in the request context.
func JWTAuthMiddleware(jwtService *jwt.Service, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.Error(errors.Unauthorized("Missing authorization header"))
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.Error(errors.Unauthorized("Invalid authorization header format"))
			c.Abort()
			return
		}

		claims, err := jwtService.ValidateToken(parts[1])
		if err != nil {
			log.Warn("Token validation failed", "error", err.Error())
			c.Error(errors.Unauthorized("Invalid or expired token"))
			c.Abort()
			return
		}

		c.Set("userId", claims.UserID)
		c.Set("userEmail", claims.Email)
		c.Set("userRole", claims.Role)

		c.Next()
	}
}

// RequireRole restricts a route to users with the given role.
func RequireRole(role jwt.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		userRole, exists := c.Get("userRole")
		if !exists || userRole.(string) != string(role) {
			c.Error(errors.Forbidden("Insufficient role for this operation"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// UserID extracts the authenticated user id set by JWTAuthMiddleware.
func UserID(c *gin.Context) uint {
	if v, exists := c.Get("userId"); exists {
		if id, ok := v.(uint); ok {
			return id
		}
	}
	return 0
}
