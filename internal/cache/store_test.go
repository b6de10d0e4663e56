package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	SQL  string `json:"sql"`
	Rows int    `json:"rows"`
}

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, "txn:"), mr
}

// TestStores tests both implementations against the same contract
func TestStores(t *testing.T) {
	redisStore, _ := newRedisStore(t)
	stores := map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  redisStore,
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			var got entry
			found, err := store.Get(ctx, "sql:transactions:missing", &got)
			require.NoError(t, err)
			assert.False(t, found)

			want := entry{SQL: "SELECT 1 LIMIT 1000;", Rows: 1}
			require.NoError(t, store.Set(ctx, "sql:transactions:a", want, time.Minute))
			require.NoError(t, store.Set(ctx, "sql:transactions:b", want, time.Minute))
			require.NoError(t, store.Set(ctx, "sql:other:c", want, time.Minute))

			found, err = store.Get(ctx, "sql:transactions:a", &got)
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, want, got)

			removed, err := store.DeletePrefix(ctx, "sql:transactions:")
			require.NoError(t, err)
			assert.Equal(t, 2, removed)

			found, _ = store.Get(ctx, "sql:transactions:b", &got)
			assert.False(t, found)
			found, _ = store.Get(ctx, "sql:other:c", &got)
			assert.True(t, found)
		})
	}
}

// TestMemoryStore_Expiry tests TTL handling
func TestMemoryStore_Expiry(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "short", 1, time.Second))
	require.NoError(t, store.Set(ctx, "forever", 2, 0))

	now = now.Add(2 * time.Second)

	var v int
	found, err := store.Get(ctx, "short", &v)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 1, store.Len())

	found, _ = store.Get(ctx, "forever", &v)
	assert.True(t, found)
	assert.Equal(t, 2, v)
}

// TestRedisStore_Expiry tests that TTLs reach redis
func TestRedisStore_Expiry(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "chart:abc", entry{Rows: 3}, time.Hour))
	assert.True(t, mr.Exists("txn:chart:abc"))
	assert.Equal(t, time.Hour, mr.TTL("txn:chart:abc"))

	mr.FastForward(2 * time.Hour)

	var got entry
	found, err := store.Get(ctx, "chart:abc", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

// TestStores_DeletePrefixLiteral tests that wildcard characters in a prefix match only themselves
func TestStores_DeletePrefixLiteral(t *testing.T) {
	redisStore, _ := newRedisStore(t)
	stores := map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  redisStore,
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, k := range []string{"sql:ds*:a", "sql:ds?:b", "sql:ds[1]:c", "sql:dsx:d", "sql:ds1:e"} {
				require.NoError(t, store.Set(ctx, k, 1, time.Minute))
			}

			removed, err := store.DeletePrefix(ctx, "sql:ds*:")
			require.NoError(t, err)
			assert.Equal(t, 1, removed)

			removed, err = store.DeletePrefix(ctx, "sql:ds[1]:")
			require.NoError(t, err)
			assert.Equal(t, 1, removed)

			var v int
			for _, k := range []string{"sql:ds?:b", "sql:dsx:d", "sql:ds1:e"} {
				found, err := store.Get(ctx, k, &v)
				require.NoError(t, err)
				assert.True(t, found, k)
			}
		})
	}
}

// TestRedisStore_DeletePrefixManyKeys tests scanning past one batch
func TestRedisStore_DeletePrefixManyKeys(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	for i := 0; i < 250; i++ {
		require.NoError(t, store.Set(ctx, fmt.Sprintf("chart:%d", i), i, 0))
	}

	removed, err := store.DeletePrefix(ctx, "chart:")
	require.NoError(t, err)
	assert.Equal(t, 250, removed)
}

// TestRedisStore_Unavailable tests error reporting when redis is down
func TestRedisStore_Unavailable(t *testing.T) {
	store, mr := newRedisStore(t)
	mr.Close()

	var got entry
	_, err := store.Get(context.Background(), "x", &got)
	assert.Error(t, err)
	assert.Error(t, store.Set(context.Background(), "x", got, 0))
}

// TestKey tests key construction
func TestKey(t *testing.T) {
	assert.Equal(t, "sql", Key("sql"))

	k := Key("sql", "transactions", "total by bank")
	assert.Regexp(t, `^sql:transactions:[0-9a-f]{32}$`, k)
	assert.Equal(t, k, Key("sql", "transactions", "total by bank"))
	assert.NotEqual(t, k, Key("sql", "other", "total by bank"))
}
