package auth

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/seanankenbruck/transactions-ai/internal/errors"
	"github.com/seanankenbruck/transactions-ai/internal/observability"
)

const sessionCookie = "session_id"

var skipPaths = []string{
	"/health",
	"/metrics",
	"/api/v1/auth/login",
	"/api/v1/auth/status",
}

// Middleware returns a Gin middleware for authentication
func (am *AuthManager) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if shouldSkipAuth(c.Request.URL.Path) {
			c.Next()
			return
		}

		if allowed, retryAfter := am.limiter.Allow(getClientID(c), am.config.RateLimit); !allowed {
			secs := int(math.Ceil(retryAfter.Seconds()))
			c.Header("Retry-After", strconv.Itoa(secs))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": errors.NewRateLimitedError(secs)})
			return
		}

		user, err := am.authenticateRequest(c)
		if err != nil {
			if am.config.AllowAnonymous {
				c.Next()
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errors.NewNotAuthenticatedError()})
			return
		}

		c.Set("user", user)
		c.Set("user_id", user.ID)
		c.Request = c.Request.WithContext(observability.WithUserID(c.Request.Context(), user.ID))
		c.Next()
	}
}

// RequireRole returns a middleware that checks if user has required role
func (am *AuthManager) RequireRole(requiredRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, exists := GetCurrentUser(c)
		if !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errors.NewNotAuthenticatedError()})
			return
		}
		for _, role := range requiredRoles {
			if user.HasRole(role) {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
	}
}

// authenticateRequest tries bearer token, then API key, then session cookie
func (am *AuthManager) authenticateRequest(c *gin.Context) (*User, error) {
	if header := c.GetHeader("Authorization"); header != "" {
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			return nil, errors.NewNotAuthenticatedError()
		}
		return am.ValidateJWTToken(strings.TrimSpace(token))
	}

	if key := c.GetHeader("X-API-Key"); key != "" {
		return am.ValidateAPIKey(key)
	}

	if sessionID, err := c.Cookie(sessionCookie); err == nil && sessionID != "" {
		return am.ValidateSession(c.Request.Context(), sessionID)
	}

	return nil, errors.NewNotAuthenticatedError()
}

func shouldSkipAuth(path string) bool {
	for _, skipPath := range skipPaths {
		if path == skipPath {
			return true
		}
	}
	return false
}

// getClientID keys rate limiting on the credential when present, else the IP
func getClientID(c *gin.Context) string {
	if key := c.GetHeader("X-API-Key"); key != "" {
		return "key:" + hashAPIKey(key)[:16]
	}
	return "ip:" + c.ClientIP()
}

// GetCurrentUser returns the current authenticated user from context
func GetCurrentUser(c *gin.Context) (*User, bool) {
	value, exists := c.Get("user")
	if !exists {
		return nil, false
	}
	user, ok := value.(*User)
	return user, ok
}
