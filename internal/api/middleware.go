package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/poiesis-tes/poiesis/internal/auth"
	"github.com/poiesis-tes/poiesis/internal/config"
)

// userIDKey is the gin context key the auth middleware stores the caller's
// identity under.
const userIDKey = "poiesis_user_id"

// jwtAuthMiddleware validates the bearer token when a JWT secret is
// configured; with no secret configured, auth is disabled and every request
// is treated as anonymous (empty user_id).
func jwtAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.JWTSecret == "" {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Bearer token required"})
			return
		}

		claims, err := auth.ValidateToken(tokenString, cfg.JWTSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token: " + err.Error()})
			return
		}

		c.Set(userIDKey, claims.UserID)
		c.Next()
	}
}

func userID(c *gin.Context) string {
	v, _ := c.Get(userIDKey)
	s, _ := v.(string)
	return s
}
