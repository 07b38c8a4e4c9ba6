package middleware

import (
	"github.com/gin-gonic/gin"
)

// SecurityHeadersMiddleware sets response headers for a JSON API. HSTS is only
// sent in production, where the service sits behind TLS.
func SecurityHeadersMiddleware(production bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if production {
			c.Header("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
		}
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "no-referrer")

		// The OAuth callback may answer with a redirect; nothing here is meant to be framed or scripted.
		c.Header("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

		// Tokens, meeting passcodes and stats are per-user.
		if c.GetHeader("Authorization") != "" {
			c.Header("Cache-Control", "no-store")
			c.Header("Pragma", "no-cache")
		}

		c.Next()
	}
}
