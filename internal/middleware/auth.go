package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"frigate-wa-bridge/internal/auth"
)

const subjectContextKey = "subject"

func SubjectFromContext(c *gin.Context) (string, bool) {
	subject, ok := c.Get(subjectContextKey)
	if !ok {
		return "", false
	}
	value, ok := subject.(string)
	return value, ok && value != ""
}

// TokenFromRequest reads a bearer token from the Authorization header, falling
// back to the token query parameter used by browser WebSocket clients.
func TokenFromRequest(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return r.URL.Query().Get("token")
}

// RequireAuth is a no-op when no secret is configured.
func RequireAuth(cfg auth.TokenConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.Enabled() {
			c.Next()
			return
		}

		tok := TokenFromRequest(c.Request)
		if tok == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Invalid authentication token"})
			c.Abort()
			return
		}
		claims, err := auth.VerifyToken(tok, cfg)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Invalid authentication token"})
			c.Abort()
			return
		}

		c.Set(subjectContextKey, claims.Subject)
		c.Next()
	}
}
