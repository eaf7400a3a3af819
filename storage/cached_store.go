package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"clasutil/models"
	"clasutil/utils"
)

const recentBatchKeyPrefix = "clasutil:observations:recent:"

// CachedStore is a read-through cache in front of an ObservationReader.
// Only successful fetches are cached; a failing backend is never masked
// by a stale or empty batch.
type CachedStore struct {
	next   ObservationReader
	kv     KVStore
	ttl    time.Duration
	logger *utils.Logger
}

// NewCachedStore wraps next with a batch cache of the given TTL.
func NewCachedStore(next ObservationReader, kv KVStore, ttl time.Duration, logger *utils.Logger) *CachedStore {
	return &CachedStore{next: next, kv: kv, ttl: ttl, logger: logger}
}

// FetchRecentObservations serves the batch from cache when fresh, otherwise
// fetches it from the wrapped reader and caches it.
func (c *CachedStore) FetchRecentObservations(ctx context.Context, limit int) ([]*models.Observation, error) {
	key := fmt.Sprintf("%s%d", recentBatchKeyPrefix, limit)

	raw, err := c.kv.Get(ctx, key)
	switch {
	case err == nil:
		var batch []*models.Observation
		jsonErr := json.Unmarshal([]byte(raw), &batch)
		if jsonErr == nil {
			c.logger.Debug("[cache] Hit %s (%d observations)", key, len(batch))
			return batch, nil
		}
		c.logger.Warn("[cache] Discarding undecodable entry %s: %v", key, jsonErr)
	case errors.Is(err, ErrCacheMiss):
		c.logger.Debug("[cache] Miss %s", key)
	default:
		c.logger.Warn("[cache] Get %s failed, reading through: %v", key, err)
	}

	batch, err := c.next.FetchRecentObservations(ctx, limit)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(batch)
	if err != nil {
		c.logger.Warn("[cache] Encode batch failed: %v", err)
		return batch, nil
	}
	if err := c.kv.Set(ctx, key, string(data), c.ttl); err != nil {
		c.logger.Warn("[cache] Set %s failed: %v", key, err)
	}
	return batch, nil
}
