package history

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "search:history:"

	// DefaultMaxEntries is how many recent keywords are kept per user.
	DefaultMaxEntries = 20
	// DefaultTTL expires a user's history after inactivity.
	DefaultTTL = 30 * 24 * time.Hour
)

// Store keeps each user's most recent distinct search keywords, newest first.
type Store interface {
	Record(ctx context.Context, userID, keyword string) error
	Recent(ctx context.Context, userID string, limit int) ([]string, error)
}

// RedisStore implements Store with one Redis list per user.
type RedisStore struct {
	client     redis.Cmdable
	maxEntries int
	ttl        time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a Redis-backed history store.
func NewRedisStore(client redis.Cmdable, maxEntries int, ttl time.Duration) *RedisStore {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, maxEntries: maxEntries, ttl: ttl}
}

// Record moves keyword to the front of the user's list, trimming the tail.
func (s *RedisStore) Record(ctx context.Context, userID, keyword string) error {
	keyword = strings.TrimSpace(keyword)
	if userID == "" || keyword == "" {
		return nil
	}
	key := keyPrefix + userID

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, key, 0, keyword)
		pipe.LPush(ctx, key, keyword)
		pipe.LTrim(ctx, key, 0, int64(s.maxEntries-1))
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis record history: %w", err)
	}
	return nil
}

// Recent returns up to limit keywords, newest first.
func (s *RedisStore) Recent(ctx context.Context, userID string, limit int) ([]string, error) {
	if limit <= 0 || limit > s.maxEntries {
		limit = s.maxEntries
	}

	keywords, err := s.client.LRange(ctx, keyPrefix+userID, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis read history: %w", err)
	}
	if keywords == nil {
		keywords = []string{}
	}
	return keywords, nil
}

// MemoryStore is an in-process Store for tests and single-instance setups.
type MemoryStore struct {
	mu         sync.Mutex
	entries    map[string][]string
	maxEntries int
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(maxEntries int) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &MemoryStore{entries: make(map[string][]string), maxEntries: maxEntries}
}

func (s *MemoryStore) Record(_ context.Context, userID, keyword string) error {
	keyword = strings.TrimSpace(keyword)
	if userID == "" || keyword == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list := []string{keyword}
	for _, k := range s.entries[userID] {
		if k != keyword {
			list = append(list, k)
		}
	}
	if len(list) > s.maxEntries {
		list = list[:s.maxEntries]
	}
	s.entries[userID] = list
	return nil
}

func (s *MemoryStore) Recent(_ context.Context, userID string, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.entries[userID]
	if limit <= 0 || limit > len(list) {
		limit = len(list)
	}
	out := make([]string, limit)
	copy(out, list[:limit])
	return out, nil
}
