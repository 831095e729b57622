package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.primary.Set(ctx, key, value); err != nil {
		return err
	}
	// Invalidate cache; next read will re-populate.
	s.rdb.Del(ctx, cacheKey(key))
	return nil
}

func (s *CachedStore) Delete(ctx context.Context, key string) error {
	if err := s.primary.Delete(ctx, key); err != nil {
		return err
	}
	s.rdb.Del(ctx, cacheKey(key))
	return nil
}

// CompareAndSwap always consults the primary. The cache entry is dropped
// whether or not the swap succeeded: a failed swap means the cached
// version was stale.
func (s *CachedStore) CompareAndSwap(ctx context.Context, key string, version int64, value []byte) (bool, error) {
	ok, err := s.primary.CompareAndSwap(ctx, key, version, value)
	s.rdb.Del(ctx, cacheKey(key))
	return ok, err
}

// --- Read-through (check cache first) ---

func (s *CachedStore) Get(ctx context.Context, key string) (Item, error) {
	// Try cache.
	data, err := s.rdb.Get(ctx, cacheKey(key)).Bytes()
	if err == nil {
		var it Item
		if json.Unmarshal(data, &it) == nil {
			return it, nil
		}
	}

	// Cache miss: read from primary.
	it, err := s.primary.Get(ctx, key)
	if err != nil {
		return Item{}, err
	}

	if data, err := json.Marshal(it); err == nil {
		s.rdb.Set(ctx, cacheKey(key), data, s.ttl)
	}
	return it, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	return s.primary.Keys(ctx, prefix)
}

func cacheKey(key string) string { return fmt.Sprintf("cache:%s", key) }
