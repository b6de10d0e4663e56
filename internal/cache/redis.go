package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

const scanBatch = 100

// globEscaper quotes the characters SCAN MATCH treats as wildcards
var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// RedisStore keeps values as JSON strings under a key prefix
type RedisStore struct {
	redis  *redis.Client
	prefix string
}

// NewRedisStore creates a store; prefix namespaces every key (e.g. "txn:")
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{redis: client, prefix: prefix}
}

// Client exposes the underlying client for health checks
func (r *RedisStore) Client() *redis.Client {
	return r.redis
}

func (r *RedisStore) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := r.redis.Get(ctx, r.prefix+key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get cache key: %w", err)
	}

	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal cached value: %w", err)
	}
	return true, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	if err := r.redis.Set(ctx, r.prefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store cache key: %w", err)
	}
	return nil
}

// DeletePrefix walks the keyspace with SCAN so large caches do not block Redis
func (r *RedisStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	var cursor uint64
	removed := 0
	for {
		keys, next, err := r.redis.Scan(ctx, cursor, globEscaper.Replace(r.prefix+prefix)+"*", scanBatch).Result()
		if err != nil {
			return removed, fmt.Errorf("failed to scan cache keys: %w", err)
		}
		if len(keys) > 0 {
			n, err := r.redis.Del(ctx, keys...).Result()
			if err != nil {
				return removed, fmt.Errorf("failed to delete cache keys: %w", err)
			}
			removed += int(n)
		}
		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}
