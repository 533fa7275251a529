package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/transferguard/internal/logging"
)

// ContextKeyAccountID is the gin context key for the authenticated account.
const ContextKeyAccountID = "authAccountID"

// Middleware validates the bearer token when present and sets authAccountID.
// Requests without a valid token pass through; use RequireAuth to reject them.
func Middleware(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if header := c.GetHeader("Authorization"); header != "" {
			if id, err := m.Validate(header); err == nil {
				c.Set(ContextKeyAccountID, id)
				c.Request = c.Request.WithContext(logging.WithAccount(c.Request.Context(), id))
			}
		}
		c.Next()
	}
}

// RequireAuth rejects requests that Middleware did not authenticate.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := c.Get(ContextKeyAccountID); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Session token required. Include 'Authorization: Bearer <token>' header.",
			})
			return
		}
		c.Next()
	}
}

// AccountID returns the authenticated account ID, or "" if unauthenticated.
func AccountID(c *gin.Context) string {
	id, ok := c.Get(ContextKeyAccountID)
	if !ok {
		return ""
	}
	s, _ := id.(string)
	return s
}
