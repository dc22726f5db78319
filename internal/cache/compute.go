package cache

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// GetOrCompute returns the cached value for key, or calls compute and stores
// its JSON encoding for ttl. Errors from compute are returned and never
// stored. Cache failures are logged and the cache is bypassed.
//
// Concurrent misses on one key may both call compute; the last write wins.
func GetOrCompute[T any](ctx context.Context, c Cache, logger *zap.Logger, key string, ttl time.Duration, compute func(context.Context) (T, error)) (T, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if c != nil {
		raw, ok, err := c.Get(ctx, key)
		switch {
		case err != nil:
			logger.Warn("cache read failed", zap.Error(err))
		case ok:
			var v T
			err := json.Unmarshal(raw, &v)
			if err == nil {
				logger.Debug("cache hit", zap.Int("key_len", len(key)))
				return v, nil
			}
			logger.Warn("discarding undecodable cache entry", zap.Error(err))
		}
	}

	v, err := compute(ctx)
	if err != nil {
		return v, err
	}
	if c == nil {
		return v, nil
	}

	raw, err := json.Marshal(v)
	if err != nil {
		logger.Warn("cache encode failed", zap.Error(err))
		return v, nil
	}
	if err := c.Set(ctx, key, raw, ttl); err != nil {
		logger.Warn("cache write failed", zap.Error(err))
	}
	return v, nil
}
