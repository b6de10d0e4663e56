package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/seanankenbruck/transactions-ai/internal/config"
	"github.com/seanankenbruck/transactions-ai/internal/errors"
	"github.com/seanankenbruck/transactions-ai/internal/observability"
	"github.com/seanankenbruck/transactions-ai/internal/session"
	"golang.org/x/crypto/bcrypt"
)

const (
	issuer       = "transactions-ai"
	apiKeyPrefix = "txn_"

	// adminID is fixed so tokens stay valid across replicas
	adminID = "00000000-0000-0000-0000-000000000001"
	// serviceID owns the API keys that come from configuration
	serviceID = "00000000-0000-0000-0000-000000000002"
)

// User represents a principal that can call the API
type User struct {
	ID           string   `json:"id"`
	Username     string   `json:"username"`
	PasswordHash string   `json:"-"`
	Roles        []string `json:"roles"`
	Active       bool     `json:"active"`
}

// HasRole reports whether the user carries role
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// APIKey represents an API key for authentication
type APIKey struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Key        string    `json:"key,omitempty"` // plaintext, only returned on creation
	HashedKey  string    `json:"-"`
	UserID     string    `json:"user_id"`
	ExpiresAt  time.Time `json:"expires_at,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at,omitempty"`
	Active     bool      `json:"active"`
}

// Claims represents JWT claims
type Claims struct {
	UserID   string   `json:"user_id"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
	jwt.RegisteredClaims
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret         string
	JWTExpiry         time.Duration
	SessionExpiry     time.Duration
	RateLimit         int
	AllowAnonymous    bool
	AdminUsername     string
	AdminPasswordHash string
	APIKeys           []string
}

// ConfigFrom maps the service configuration onto AuthConfig
func ConfigFrom(c config.AuthConfig) AuthConfig {
	return AuthConfig{
		JWTSecret:         c.JWTSecret,
		JWTExpiry:         c.JWTExpiry,
		SessionExpiry:     c.SessionExpiry,
		RateLimit:         c.RateLimit,
		AllowAnonymous:    c.AllowAnonymous,
		AdminUsername:     c.AdminUsername,
		AdminPasswordHash: c.AdminPasswordHash,
		APIKeys:           c.APIKeys,
	}
}

// AuthManager authenticates users, API keys, JWTs and sessions
type AuthManager struct {
	config         AuthConfig
	users          map[string]*User   // userID -> User
	userByUsername map[string]*User   // username -> User
	apiKeys        map[string]*APIKey // hashedKey -> APIKey
	sessions       *session.Manager   // nil disables cookie sessions
	limiter        *RateLimiter
	logger         *observability.Logger
	now            func() time.Time
	mu             sync.RWMutex
}

// NewAuthManager creates an auth manager with the configured admin user
// and API keys. sessions may be nil.
func NewAuthManager(cfg AuthConfig, sessions *session.Manager) *AuthManager {
	if cfg.JWTExpiry == 0 {
		cfg.JWTExpiry = 24 * time.Hour
	}
	if cfg.SessionExpiry == 0 {
		cfg.SessionExpiry = 7 * 24 * time.Hour
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 60
	}
	if cfg.AdminUsername == "" {
		cfg.AdminUsername = "admin"
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = generateRandomString(32)
	}

	am := &AuthManager{
		config:         cfg,
		users:          make(map[string]*User),
		userByUsername: make(map[string]*User),
		apiKeys:        make(map[string]*APIKey),
		sessions:       sessions,
		limiter:        NewRateLimiter(time.Minute),
		logger:         observability.NewLogger("auth"),
		now:            time.Now,
	}

	am.addUser(&User{
		ID:           adminID,
		Username:     cfg.AdminUsername,
		PasswordHash: cfg.AdminPasswordHash,
		Roles:        []string{"admin", "user"},
		Active:       true,
	})
	if len(cfg.APIKeys) > 0 {
		am.addUser(&User{ID: serviceID, Username: "api-client", Roles: []string{"user"}, Active: true})
		for i, key := range cfg.APIKeys {
			hashed := hashAPIKey(key)
			am.apiKeys[hashed] = &APIKey{
				ID:        fmt.Sprintf("configured-%d", i+1),
				Name:      "configured",
				HashedKey: hashed,
				UserID:    serviceID,
				CreatedAt: am.now(),
				Active:    true,
			}
		}
	}

	return am
}

// WithLogger replaces the component logger
func (am *AuthManager) WithLogger(logger *observability.Logger) *AuthManager {
	am.logger = logger
	return am
}

// WithRateLimiter replaces the request limiter
func (am *AuthManager) WithRateLimiter(limiter *RateLimiter) *AuthManager {
	am.limiter = limiter
	return am
}

func (am *AuthManager) addUser(u *User) {
	am.users[u.ID] = u
	am.userByUsername[u.Username] = u
}

// CreateUserWithPassword creates a new user. An empty password creates a
// user that can only authenticate with API keys.
func (am *AuthManager) CreateUserWithPassword(username, password string, roles []string) (*User, error) {
	am.mu.Lock()
	defer am.mu.Unlock()

	if _, exists := am.userByUsername[username]; exists {
		return nil, errors.NewInvalidInputError("username", "already exists")
	}

	var passwordHash string
	if password != "" {
		hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		passwordHash = string(hashedBytes)
	}

	user := &User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: passwordHash,
		Roles:        roles,
		Active:       true,
	}
	am.addUser(user)
	return user, nil
}

// Authenticate checks a username and password. Users without a password
// hash cannot log in.
func (am *AuthManager) Authenticate(username, password string) (*User, error) {
	am.mu.RLock()
	user, exists := am.userByUsername[username]
	am.mu.RUnlock()

	if !exists || !user.Active || user.PasswordHash == "" {
		return nil, errors.NewInvalidCredentialsError()
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, errors.NewInvalidCredentialsError()
	}
	return user, nil
}

// GetUser retrieves a user by ID
func (am *AuthManager) GetUser(userID string) (*User, error) {
	am.mu.RLock()
	defer am.mu.RUnlock()

	user, exists := am.users[userID]
	if !exists || !user.Active {
		return nil, errors.NewNotAuthenticatedError()
	}
	return user, nil
}

// ListUsers returns all users
func (am *AuthManager) ListUsers() []*User {
	am.mu.RLock()
	defer am.mu.RUnlock()

	users := make([]*User, 0, len(am.users))
	for _, user := range am.users {
		users = append(users, user)
	}
	return users
}

// CreateAPIKey creates a new API key for a user. A zero expiresIn never expires.
func (am *AuthManager) CreateAPIKey(userID, name string, expiresIn time.Duration) (*APIKey, error) {
	am.mu.Lock()
	defer am.mu.Unlock()

	if _, exists := am.users[userID]; !exists {
		return nil, errors.NewNotAuthenticatedError()
	}

	key := apiKeyPrefix + generateRandomString(32)
	now := am.now()
	apiKey := &APIKey{
		ID:        uuid.New().String(),
		Name:      name,
		Key:       key,
		HashedKey: hashAPIKey(key),
		UserID:    userID,
		CreatedAt: now,
		Active:    true,
	}
	if expiresIn > 0 {
		apiKey.ExpiresAt = now.Add(expiresIn)
	}
	am.apiKeys[apiKey.HashedKey] = apiKey

	out := *apiKey
	apiKey.Key = ""
	return &out, nil
}

// ValidateAPIKey validates an API key and returns the associated user
func (am *AuthManager) ValidateAPIKey(key string) (*User, error) {
	am.mu.Lock()
	defer am.mu.Unlock()

	apiKey, exists := am.apiKeys[hashAPIKey(key)]
	if !exists || !apiKey.Active {
		return nil, errors.NewNotAuthenticatedError()
	}
	now := am.now()
	if !apiKey.ExpiresAt.IsZero() && now.After(apiKey.ExpiresAt) {
		return nil, errors.NewNotAuthenticatedError().WithDetails("API key has expired")
	}
	user, exists := am.users[apiKey.UserID]
	if !exists || !user.Active {
		return nil, errors.NewNotAuthenticatedError()
	}

	apiKey.LastUsedAt = now
	return user, nil
}

// ListAPIKeys returns the API keys of a user without their plaintext
func (am *AuthManager) ListAPIKeys(userID string) []*APIKey {
	am.mu.RLock()
	defer am.mu.RUnlock()

	keys := []*APIKey{}
	for _, apiKey := range am.apiKeys {
		if apiKey.UserID == userID {
			keyCopy := *apiKey
			keyCopy.Key = ""
			keys = append(keys, &keyCopy)
		}
	}
	return keys
}

// RevokeAPIKey deactivates an API key owned by userID
func (am *AuthManager) RevokeAPIKey(userID, keyID string) error {
	am.mu.Lock()
	defer am.mu.Unlock()

	for _, apiKey := range am.apiKeys {
		if apiKey.ID == keyID && apiKey.UserID == userID {
			apiKey.Active = false
			return nil
		}
	}
	return errors.NewInvalidInputError("id", "API key not found")
}

// CreateJWTToken signs an HS256 token for a user
func (am *AuthManager) CreateJWTToken(user *User) (string, time.Time, error) {
	now := am.now()
	expiresAt := now.Add(am.config.JWTExpiry)

	claims := &Claims{
		UserID:   user.ID,
		Username: user.Username,
		Roles:    user.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   user.ID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(am.config.JWTSecret))
	if err != nil {
		return "", time.Time{}, errors.NewTokenCreationError(err)
	}
	return tokenString, expiresAt, nil
}

// ValidateJWTToken validates a token and returns the user it names
func (am *AuthManager) ValidateJWTToken(tokenString string) (*User, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(am.config.JWTSecret), nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(am.now))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeNotAuthenticated, "Invalid token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.NewNotAuthenticatedError()
	}
	return am.GetUser(claims.UserID)
}

// SessionsEnabled reports whether cookie sessions are available
func (am *AuthManager) SessionsEnabled() bool {
	return am.sessions != nil
}

// CreateSession starts a cookie session for a user
func (am *AuthManager) CreateSession(ctx context.Context, user *User) (*session.Session, error) {
	if am.sessions == nil {
		return nil, errors.NewConfigurationError("REDIS_ENABLED", "sessions need redis")
	}
	return am.sessions.Create(ctx, user.ID, user.Username, user.Roles)
}

// ValidateSession resolves a session cookie to its user and slides its expiry
func (am *AuthManager) ValidateSession(ctx context.Context, sessionID string) (*User, error) {
	if am.sessions == nil {
		return nil, errors.NewNotAuthenticatedError()
	}
	sess, err := am.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeNotAuthenticated, "Invalid session")
	}
	user, err := am.GetUser(sess.UserID)
	if err != nil {
		return nil, err
	}
	if err := am.sessions.Refresh(ctx, sessionID); err != nil {
		am.logger.Warn(ctx, "Failed to refresh session", map[string]interface{}{"error": err.Error()})
	}
	return user, nil
}

// RevokeSession ends a cookie session
func (am *AuthManager) RevokeSession(ctx context.Context, sessionID string) error {
	if am.sessions == nil {
		return nil
	}
	return am.sessions.Delete(ctx, sessionID)
}

func generateRandomString(length int) string {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		panic(err)
	}
	return hex.EncodeToString(bytes)
}

func hashAPIKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}
