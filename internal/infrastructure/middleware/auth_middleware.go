package middleware

import (
	"net/http"
	"strings"

	"studiocast/internal/core/domain"
	"studiocast/internal/core/services"

	"github.com/gin-gonic/gin"
)

func AuthMiddleware(authService services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "authorization header required"})
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "invalid authorization header format"})
			c.Abort()
			return
		}

		claims, err := authService.ValidateToken(parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": err.Error()})
			c.Abort()
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("username", claims.Username)
		c.Request = c.Request.WithContext(services.ContextWithUserID(c.Request.Context(), claims.UserID))
		c.Next()
	}
}

// HostPermissionMiddleware requires the authenticated user to be the host of
// the room named in the route. Runs after AuthMiddleware.
func HostPermissionMiddleware(authService services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userIDVal, exists := c.Get("user_id")
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "authentication required"})
			c.Abort()
			return
		}

		userID, ok := userIDVal.(domain.UserID)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "invalid user context"})
			c.Abort()
			return
		}

		roomID := domain.RoomID(c.Param("id"))
		if roomID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "room id required"})
			c.Abort()
			return
		}

		if err := authService.CheckHostPermission(c.Request.Context(), userID, roomID); err != nil {
			c.JSON(http.StatusForbidden, gin.H{"success": false, "message": "insufficient permissions"})
			c.Abort()
			return
		}

		c.Set("room_id", roomID)
		c.Next()
	}
}
