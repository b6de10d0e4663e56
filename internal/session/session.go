package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	defaultPrefix = "txnai:session:"
	sessionIDLen  = 32
)

// ErrNotFound is returned for unknown and expired sessions
var ErrNotFound = stderrors.New("session not found")

// Session is the server side state behind a session cookie
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Roles     []string  `json:"roles"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Manager keeps sessions in Redis under a key prefix, one key per session
type Manager struct {
	redis  *redis.Client
	expiry time.Duration
	prefix string
	now    func() time.Time
}

// NewManager creates a new session manager
func NewManager(redisClient *redis.Client, expiry time.Duration) *Manager {
	if expiry <= 0 {
		expiry = 7 * 24 * time.Hour
	}
	return &Manager{
		redis:  redisClient,
		expiry: expiry,
		prefix: defaultPrefix,
		now:    time.Now,
	}
}

// WithPrefix changes the key namespace
func (m *Manager) WithPrefix(prefix string) *Manager {
	m.prefix = prefix
	return m
}

// Expiry is the lifetime of new and refreshed sessions
func (m *Manager) Expiry() time.Duration {
	return m.expiry
}

// Create stores a new session and returns it
func (m *Manager) Create(ctx context.Context, userID, username string, roles []string) (*Session, error) {
	id, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := m.now()
	sess := &Session{
		ID:        id,
		UserID:    userID,
		Username:  username,
		Roles:     roles,
		CreatedAt: now,
		ExpiresAt: now.Add(m.expiry),
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := m.redis.Set(ctx, m.key(id), data, m.expiry).Err(); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}
	return sess, nil
}

// Get loads a session; expired ones are removed and reported as ErrNotFound
func (m *Manager) Get(ctx context.Context, sessionID string) (*Session, error) {
	data, err := m.redis.Get(ctx, m.key(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if m.now().After(sess.ExpiresAt) {
		_ = m.Delete(ctx, sessionID)
		return nil, ErrNotFound
	}
	return &sess, nil
}

// Delete removes a session
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	return m.redis.Del(ctx, m.key(sessionID)).Err()
}

// Refresh slides the expiry of an existing session forward
func (m *Manager) Refresh(ctx context.Context, sessionID string) error {
	sess, err := m.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	sess.ExpiresAt = m.now().Add(m.expiry)
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	return m.redis.Set(ctx, m.key(sessionID), data, m.expiry).Err()
}

func (m *Manager) key(sessionID string) string {
	return m.prefix + sessionID
}

func generateSessionID() (string, error) {
	b := make([]byte, sessionIDLen)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
