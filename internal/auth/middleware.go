package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ContextKeySubject holds the token subject on the gin context
const ContextKeySubject = "auth_subject"

// Middleware creates a JWT authentication middleware. Browsers cannot set
// headers on a websocket upgrade, so a token query parameter is accepted
// as well.
func Middleware(jwtManager *JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := extractToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   ErrUnauthorized.Code,
				"message": "missing or malformed authorization header",
			})
			return
		}

		claims, err := jwtManager.ValidateToken(tokenString)
		if err != nil {
			authErr, ok := err.(AuthError)
			if !ok {
				authErr = ErrInvalidToken
			}

			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   authErr.Code,
				"message": authErr.Message,
			})
			return
		}

		c.Set(ContextKeySubject, claims.Subject)
		c.Next()
	}
}

// GetSubject returns the authenticated subject, or "" when unauthenticated
func GetSubject(c *gin.Context) string {
	if v, ok := c.Get(ContextKeySubject); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func extractToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		if token := c.Query("token"); token != "" {
			return token, true
		}
		return "", false
	}

	// Check Bearer prefix
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
