package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/bluerise/auth-service/internal/token"
)

const accessClaimsKey = "accessClaims"

// Auth validates Authorization headers and attaches claims.
type Auth struct {
	Signer *token.Signer
}

// ValidateJWT ensures the request carries a valid bearer access token.
func (m *Auth) ValidateJWT(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if header == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "error_description": "Authorization header required."})
		return
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Bearer token required."})
		return
	}

	claims, err := m.Signer.VerifyAccess(parts[1])
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Invalid access token."})
		return
	}
	c.Set(accessClaimsKey, claims)
	c.Next()
}

// RequireRoles aborts with 403 unless the access token carries at least one
// of the given roles. Must run after ValidateJWT.
func RequireRoles(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := GetAccessClaims(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "error_description": "Authentication required."})
			return
		}
		for _, want := range roles {
			for _, have := range claims.Roles {
				if have == want {
					c.Next()
					return
				}
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden", "error_description": "Insufficient permissions."})
	}
}

// GetAccessClaims exposes verified access token claims to handlers.
func GetAccessClaims(c *gin.Context) (token.Claims, bool) {
	value, ok := c.Get(accessClaimsKey)
	if !ok {
		return token.Claims{}, false
	}
	claims, ok := value.(token.Claims)
	return claims, ok
}
