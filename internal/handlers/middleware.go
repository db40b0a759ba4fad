package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/unrolled/secure"
)

// SecureHeaders sets the standard security response headers. HSTS and the
// HTTPS redirect are skipped in development.
func SecureHeaders(isDevelopment bool) gin.HandlerFunc {
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "no-referrer",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		STSSeconds:            31536000,
		STSIncludeSubdomains:  true,
		IsDevelopment:         isDevelopment,
	})
	return func(c *gin.Context) {
		if err := secureMiddleware.Process(c.Writer, c.Request); err != nil {
			c.Abort()
			return
		}
		c.Next()
	}
}
