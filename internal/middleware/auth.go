package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Identity trusts the gateway-injected X-User-ID header. Token validation
// happens at the marketplace's API gateway; this service only needs the
// resolved identity.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader("X-User-ID")
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
			return
		}

		c.Set("userID", userID)
		c.Next()
	}
}
