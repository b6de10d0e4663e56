package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/seanankenbruck/transactions-ai/internal/errors"
	"github.com/seanankenbruck/transactions-ai/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func newTestManager(t *testing.T, cfg AuthConfig) *AuthManager {
	t.Helper()
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "test-secret"
	}
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewAuthManager(cfg, session.NewManager(client, time.Hour))
}

// TestAuthenticate tests admin login against the configured bcrypt hash
func TestAuthenticate(t *testing.T) {
	am := newTestManager(t, AuthConfig{AdminPasswordHash: hashPassword(t, "s3cret")})

	tests := []struct {
		name     string
		username string
		password string
		wantErr  bool
	}{
		{name: "valid", username: "admin", password: "s3cret"},
		{name: "wrong password", username: "admin", password: "nope", wantErr: true},
		{name: "unknown user", username: "root", password: "s3cret", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := am.Authenticate(tt.username, tt.password)
			if tt.wantErr {
				assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidCredentials))
				return
			}
			require.NoError(t, err)
			assert.True(t, user.HasRole("admin"))
		})
	}
}

// TestAuthenticate_NoPasswordHash tests that login is closed without a hash
func TestAuthenticate_NoPasswordHash(t *testing.T) {
	am := newTestManager(t, AuthConfig{})
	_, err := am.Authenticate("admin", "")
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidCredentials))
	_, err = am.Authenticate("admin", "anything")
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidCredentials))
}

// TestJWT tests token creation, validation and expiry
func TestJWT(t *testing.T) {
	am := newTestManager(t, AuthConfig{JWTExpiry: time.Hour})
	admin, err := am.GetUser(adminID)
	require.NoError(t, err)

	token, expiresAt, err := am.CreateJWTToken(admin)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, time.Minute)

	user, err := am.ValidateJWTToken(token)
	require.NoError(t, err)
	assert.Equal(t, admin.ID, user.ID)

	other := NewAuthManager(AuthConfig{JWTSecret: "other-secret"}, nil)
	_, err = other.ValidateJWTToken(token)
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotAuthenticated))

	am.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = am.ValidateJWTToken(token)
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotAuthenticated))
}

// TestAPIKeys tests configured and created API keys
func TestAPIKeys(t *testing.T) {
	am := newTestManager(t, AuthConfig{APIKeys: []string{"configured-key"}})

	user, err := am.ValidateAPIKey("configured-key")
	require.NoError(t, err)
	assert.Equal(t, "api-client", user.Username)

	_, err = am.ValidateAPIKey("wrong-key")
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotAuthenticated))

	key, err := am.CreateAPIKey(adminID, "cli", time.Hour)
	require.NoError(t, err)
	assert.Contains(t, key.Key, apiKeyPrefix)

	user, err = am.ValidateAPIKey(key.Key)
	require.NoError(t, err)
	assert.Equal(t, adminID, user.ID)

	listed := am.ListAPIKeys(adminID)
	require.Len(t, listed, 1)
	assert.Empty(t, listed[0].Key)
	assert.False(t, listed[0].LastUsedAt.IsZero())

	assert.Error(t, am.RevokeAPIKey(serviceID, key.ID))
	require.NoError(t, am.RevokeAPIKey(adminID, key.ID))
	_, err = am.ValidateAPIKey(key.Key)
	assert.Error(t, err)
}

// TestAPIKeys_Expiry tests that expired keys are rejected
func TestAPIKeys_Expiry(t *testing.T) {
	am := newTestManager(t, AuthConfig{})
	key, err := am.CreateAPIKey(adminID, "short", time.Minute)
	require.NoError(t, err)

	am.now = func() time.Time { return time.Now().Add(time.Hour) }
	_, err = am.ValidateAPIKey(key.Key)
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotAuthenticated))
}

// TestSessions tests cookie session creation and validation
func TestSessions(t *testing.T) {
	ctx := context.Background()
	am := newTestManager(t, AuthConfig{})
	admin, err := am.GetUser(adminID)
	require.NoError(t, err)

	sess, err := am.CreateSession(ctx, admin)
	require.NoError(t, err)

	user, err := am.ValidateSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, admin.ID, user.ID)

	require.NoError(t, am.RevokeSession(ctx, sess.ID))
	_, err = am.ValidateSession(ctx, sess.ID)
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotAuthenticated))

	noSessions := NewAuthManager(AuthConfig{}, nil)
	assert.False(t, noSessions.SessionsEnabled())
	_, err = noSessions.CreateSession(ctx, admin)
	assert.True(t, errors.HasCode(err, errors.ErrCodeConfiguration))
}

// TestCreateUserWithPassword tests adding users
func TestCreateUserWithPassword(t *testing.T) {
	am := newTestManager(t, AuthConfig{})

	user, err := am.CreateUserWithPassword("analyst", "pw", []string{"user"})
	require.NoError(t, err)
	assert.NotEmpty(t, user.PasswordHash)

	_, err = am.Authenticate("analyst", "pw")
	assert.NoError(t, err)

	_, err = am.CreateUserWithPassword("analyst", "pw", nil)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidInput))
	assert.Len(t, am.ListUsers(), 2)
}

// TestRateLimiter tests the sliding window
func TestRateLimiter(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(time.Minute)
	rl.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		allowed, _ := rl.Allow("a", 3)
		assert.True(t, allowed)
	}
	allowed, retryAfter := rl.Allow("a", 3)
	assert.False(t, allowed)
	assert.Equal(t, time.Minute, retryAfter)

	allowed, _ = rl.Allow("b", 3)
	assert.True(t, allowed, "clients are limited independently")

	now = now.Add(61 * time.Second)
	allowed, _ = rl.Allow("a", 3)
	assert.True(t, allowed)

	now = now.Add(10 * time.Minute)
	_, _ = rl.Allow("c", 3)
	stats := rl.Stats()
	assert.Equal(t, 1, stats["total_clients"])
}
