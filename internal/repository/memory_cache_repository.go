package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	appErrors "github.com/noah-isme/taxfiling-tracker/pkg/errors"
)

type memoryEntry struct {
	payload   []byte
	expiresAt time.Time
}

// MemoryCacheRepository is a per-process cache backed by an expirable LRU.
// Values are stored JSON encoded so callers never share mutable state.
type MemoryCacheRepository struct {
	cache *expirable.LRU[string, memoryEntry]
	now   func() time.Time
}

// NewMemoryCacheRepository builds an LRU holding at most size entries. ttl is
// the upper bound on entry lifetime; shorter per-call TTLs are honoured on read.
func NewMemoryCacheRepository(size int, ttl time.Duration) *MemoryCacheRepository {
	if size <= 0 {
		size = 1024
	}
	return &MemoryCacheRepository{
		cache: expirable.NewLRU[string, memoryEntry](size, nil, ttl),
		now:   time.Now,
	}
}

// Get decodes the cached value into dest.
func (r *MemoryCacheRepository) Get(_ context.Context, key string, dest interface{}) error {
	entry, ok := r.cache.Get(key)
	if !ok {
		return appErrors.ErrCacheMiss
	}
	if !entry.expiresAt.IsZero() && r.now().After(entry.expiresAt) {
		r.cache.Remove(key)
		return appErrors.ErrCacheMiss
	}
	if err := json.Unmarshal(entry.payload, dest); err != nil {
		return fmt.Errorf("unmarshal cache value for %s: %w", key, err)
	}
	return nil
}

// Set stores value under key.
func (r *MemoryCacheRepository) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value for %s: %w", key, err)
	}
	entry := memoryEntry{payload: payload}
	if ttl > 0 {
		entry.expiresAt = r.now().Add(ttl)
	}
	r.cache.Add(key, entry)
	return nil
}

// Delete removes the given keys.
func (r *MemoryCacheRepository) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		r.cache.Remove(key)
	}
	return nil
}

// Len reports the number of cached entries.
func (r *MemoryCacheRepository) Len() int {
	return r.cache.Len()
}
