package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "search:cache:"

// Cache stores short-lived query results.
type Cache interface {
	// Get decodes the value under key into dst, reporting whether it was found.
	Get(ctx context.Context, key string, dst any) (bool, error)
	// Set stores v under key for ttl.
	Set(ctx context.Context, key string, v any, ttl time.Duration) error
}

// RedisCache implements Cache with JSON values in Redis.
type RedisCache struct {
	client redis.Cmdable
	prefix string
}

var _ Cache = (*RedisCache)(nil)

// NewRedisCache creates a Redis-backed cache. An empty prefix uses the default.
func NewRedisCache(client redis.Cmdable, prefix string) *RedisCache {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &RedisCache{client: client, prefix: prefix}
}

// Get reads and decodes a cached value.
func (c *RedisCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis get cache: %w", err)
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("unmarshal cached value: %w", err)
	}
	return true, nil
}

// Set encodes and stores a value with the given TTL.
func (c *RedisCache) Set(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}

	if err := c.client.Set(ctx, c.prefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set cache: %w", err)
	}
	return nil
}

// Noop is a Cache that never stores anything.
type Noop struct{}

var _ Cache = Noop{}

func (Noop) Get(context.Context, string, any) (bool, error) { return false, nil }

func (Noop) Set(context.Context, string, any, time.Duration) error { return nil }

// Key derives a fixed-length cache key from a query kind and its parameters.
func Key(kind string, parts ...any) string {
	var b strings.Builder
	for _, p := range parts {
		fmt.Fprintf(&b, "%v\x1f", p)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return kind + ":" + hex.EncodeToString(sum[:16])
}
