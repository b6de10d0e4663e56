package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, expiry time.Duration) (*Manager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewManager(client, expiry), mr
}

// TestManager_Lifecycle tests create, get, refresh and delete
func TestManager_Lifecycle(t *testing.T) {
	ctx := context.Background()
	m, mr := newTestManager(t, time.Hour)

	sess, err := m.Create(ctx, "u1", "admin", []string{"admin"})
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)
	assert.True(t, mr.Exists("txnai:session:"+sess.ID))
	assert.Equal(t, time.Hour, mr.TTL("txnai:session:"+sess.ID))

	got, err := m.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "admin", got.Username)
	assert.Equal(t, []string{"admin"}, got.Roles)

	mr.FastForward(30 * time.Minute)
	require.NoError(t, m.Refresh(ctx, sess.ID))
	assert.Equal(t, time.Hour, mr.TTL("txnai:session:"+sess.ID))

	require.NoError(t, m.Delete(ctx, sess.ID))
	_, err = m.Get(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestManager_Expiry tests that sessions past their expiry are not returned
func TestManager_Expiry(t *testing.T) {
	ctx := context.Background()
	m, mr := newTestManager(t, time.Minute)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	sess, err := m.Create(ctx, "u1", "admin", nil)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = m.Get(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, mr.Exists("txnai:session:"+sess.ID))

	assert.ErrorIs(t, m.Refresh(ctx, "missing"), ErrNotFound)
}

// TestManager_Prefix tests the key namespace option
func TestManager_Prefix(t *testing.T) {
	m, mr := newTestManager(t, 0)
	m.WithPrefix("test:")
	assert.Equal(t, 7*24*time.Hour, m.Expiry())

	sess, err := m.Create(context.Background(), "u1", "admin", nil)
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:"+sess.ID))
}
