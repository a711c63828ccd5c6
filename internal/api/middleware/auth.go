package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// ControlTokenKey is the gin context key holding the bearer control token
const ControlTokenKey = "controlToken"

// BearerToken extracts the token from an Authorization header value. The
// scheme is matched case-insensitively and surrounding space is dropped.
// Anything that is not a bearer credential yields "".
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// ControlToken stores the request's bearer token for handlers. It never
// rejects: a missing token is reported by the store as unauthorized after
// the body has been validated.
func ControlToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ControlTokenKey, BearerToken(c.GetHeader("Authorization")))
		c.Next()
	}
}

// GetControlToken returns the token stored by ControlToken
func GetControlToken(c *gin.Context) string {
	if v, ok := c.Get(ControlTokenKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return BearerToken(c.GetHeader("Authorization"))
}
