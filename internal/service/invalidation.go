package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/taxfiling-tracker/internal/models"
)

// RecordKey is the cache key of a single request.
func RecordKey(id string) string {
	return "record:" + id
}

// UserRecordsKey is the cache key of a user's request listing.
func UserRecordsKey(userID string) string {
	return "records-by-user:" + userID
}

// CacheKeysFor returns the keys a mutation of req must purge.
func CacheKeysFor(req *models.TaxRequest) []string {
	if req == nil {
		return nil
	}
	return []string{RecordKey(req.ID), UserRecordsKey(req.UserID)}
}

type cacheInvalidator interface {
	Invalidate(ctx context.Context, keys ...string) error
}

// Invalidator purges cached views after a committed mutation. Failures are
// logged and swallowed; entries left behind expire on their TTL.
type Invalidator struct {
	cache  cacheInvalidator
	logger *zap.Logger
}

// NewInvalidator constructs an invalidator. A nil cache makes it a no-op.
func NewInvalidator(cache cacheInvalidator, logger *zap.Logger) *Invalidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Invalidator{cache: cache, logger: logger}
}

// Invalidate purges the keys for req.
func (i *Invalidator) Invalidate(ctx context.Context, req *models.TaxRequest) {
	i.InvalidateKeys(ctx, CacheKeysFor(req)...)
}

// InvalidateKeys purges arbitrary keys.
func (i *Invalidator) InvalidateKeys(ctx context.Context, keys ...string) {
	if i == nil || i.cache == nil || len(keys) == 0 {
		return
	}
	if err := i.cache.Invalidate(ctx, keys...); err != nil {
		i.logger.Warn("cache invalidation failed", zap.Strings("keys", keys), zap.Error(err))
	}
}
