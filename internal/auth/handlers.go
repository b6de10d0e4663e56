package auth

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/seanankenbruck/transactions-ai/internal/errors"
)

// AuthHandlers provides HTTP handlers for authentication endpoints
type AuthHandlers struct {
	authManager *AuthManager
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(authManager *AuthManager) *AuthHandlers {
	return &AuthHandlers{authManager: authManager}
}

// SetupRoutes mounts the auth endpoints on r
func (ah *AuthHandlers) SetupRoutes(r *gin.RouterGroup) {
	protected := ah.authManager.Middleware()

	r.POST("/auth/login", ah.Login)
	r.POST("/auth/logout", ah.Logout)
	r.GET("/auth/status", ah.GetAuthStatus)
	r.GET("/auth/me", protected, ah.GetCurrentUser)

	r.GET("/api-keys", protected, ah.ListAPIKeys)
	r.POST("/api-keys", protected, ah.CreateAPIKey)
	r.DELETE("/api-keys/:id", protected, ah.RevokeAPIKey)

	admin := r.Group("/admin")
	admin.Use(protected, ah.authManager.RequireRole("admin"))
	{
		admin.GET("/users", ah.ListUsers)
		admin.GET("/rate-limit-stats", ah.GetRateLimitStats)
	}
}

// LoginRequest represents a login request
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse represents a login response
type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
	User      *User  `json:"user"`
}

// Login exchanges a username and password for a JWT and, when sessions are
// enabled, a session cookie
func (ah *AuthHandlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errors.NewInvalidInputError("request body", err.Error())})
		return
	}

	user, err := ah.authManager.Authenticate(req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err})
		return
	}

	token, expiresAt, err := ah.authManager.CreateJWTToken(user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err})
		return
	}

	if ah.authManager.SessionsEnabled() {
		sess, err := ah.authManager.CreateSession(c.Request.Context(), user)
		if err != nil {
			ah.authManager.logger.Warn(c.Request.Context(), "Failed to create session", map[string]interface{}{"error": err.Error()})
		} else {
			c.SetCookie(sessionCookie, sess.ID, int(ah.authManager.config.SessionExpiry.Seconds()), "/", "", false, true)
		}
	}

	c.JSON(http.StatusOK, LoginResponse{
		Token:     token,
		ExpiresAt: expiresAt.Format(time.RFC3339),
		User:      user,
	})
}

// Logout ends the cookie session, if any
func (ah *AuthHandlers) Logout(c *gin.Context) {
	if sessionID, err := c.Cookie(sessionCookie); err == nil {
		if err := ah.authManager.RevokeSession(c.Request.Context(), sessionID); err != nil {
			ah.authManager.logger.Warn(c.Request.Context(), "Failed to revoke session", map[string]interface{}{"error": err.Error()})
		}
	}
	c.SetCookie(sessionCookie, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"message": "logged out successfully"})
}

// GetCurrentUser returns the current authenticated user
func (ah *AuthHandlers) GetCurrentUser(c *gin.Context) {
	user, exists := GetCurrentUser(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": errors.NewNotAuthenticatedError()})
		return
	}
	c.JSON(http.StatusOK, user)
}

// GetAuthStatus returns authentication settings
func (ah *AuthHandlers) GetAuthStatus(c *gin.Context) {
	cfg := ah.authManager.config
	c.JSON(http.StatusOK, gin.H{
		"authentication_enabled": true,
		"allow_anonymous":        cfg.AllowAnonymous,
		"rate_limit":             cfg.RateLimit,
		"jwt_expiry":             cfg.JWTExpiry.String(),
		"sessions_enabled":       ah.authManager.SessionsEnabled(),
	})
}

// CreateAPIKeyRequest represents a request to create an API key
type CreateAPIKeyRequest struct {
	Name      string `json:"name" binding:"required"`
	ExpiresIn string `json:"expires_in"` // e.g. "30d", "1w", "720h"; empty never expires
}

// CreateAPIKey creates a new API key for the current user
func (ah *AuthHandlers) CreateAPIKey(c *gin.Context) {
	user, exists := GetCurrentUser(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": errors.NewNotAuthenticatedError()})
		return
	}

	var req CreateAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errors.NewInvalidInputError("request body", err.Error())})
		return
	}
	expiresIn, err := parseDuration(req.ExpiresIn)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errors.NewInvalidInputError("expires_in", err.Error())})
		return
	}

	apiKey, err := ah.authManager.CreateAPIKey(user.ID, req.Name, expiresIn)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err})
		return
	}
	c.JSON(http.StatusCreated, apiKey)
}

// ListAPIKeys returns all API keys for the current user
func (ah *AuthHandlers) ListAPIKeys(c *gin.Context) {
	user, exists := GetCurrentUser(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": errors.NewNotAuthenticatedError()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"api_keys": ah.authManager.ListAPIKeys(user.ID)})
}

// RevokeAPIKey revokes one of the current user's API keys
func (ah *AuthHandlers) RevokeAPIKey(c *gin.Context) {
	user, exists := GetCurrentUser(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": errors.NewNotAuthenticatedError()})
		return
	}
	if err := ah.authManager.RevokeAPIKey(user.ID, c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "API key revoked successfully"})
}

// ListUsers returns all users (admin only)
func (ah *AuthHandlers) ListUsers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"users": ah.authManager.ListUsers()})
}

// GetRateLimitStats returns rate limiting statistics (admin only)
func (ah *AuthHandlers) GetRateLimitStats(c *gin.Context) {
	c.JSON(http.StatusOK, ah.authManager.limiter.Stats())
}

// parseDuration accepts day, week and year suffixes on top of time.ParseDuration
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}

	units := map[string]time.Duration{
		"d": 24 * time.Hour,
		"w": 7 * 24 * time.Hour,
		"y": 365 * 24 * time.Hour,
	}
	for suffix, unit := range units {
		if n, ok := strings.CutSuffix(s, suffix); ok {
			count, err := strconv.Atoi(n)
			if err != nil {
				return 0, err
			}
			return time.Duration(count) * unit, nil
		}
	}
	return time.ParseDuration(s)
}
