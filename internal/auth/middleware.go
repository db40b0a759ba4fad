package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/teamhub/assessment-engine/internal/utils"
)

const principalKey = "principal"

// Middleware rejects requests without a valid bearer token and stores the
// principal in the gin context.
func Middleware(verifier Verifier, logger utils.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := BearerToken(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Authentication required"})
			return
		}

		principal, err := verifier.Verify(c.Request.Context(), token)
		if err != nil {
			logger.Warn("Token verification failed", "error", err, "client_ip", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Invalid token"})
			return
		}

		c.Set(principalKey, principal)
		c.Next()
	}
}

// PrincipalFrom returns the principal stored by Middleware.
func PrincipalFrom(c *gin.Context) (*Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil, false
	}
	p, ok := v.(*Principal)
	return p, ok
}

// SetPrincipal stores p in the gin context.
func SetPrincipal(c *gin.Context, p *Principal) {
	c.Set(principalKey, p)
}
