package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"ads-sync/infrastructure/logger"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

const scanBatch = 200

// AggregateCache stores query results under {prefix}:{account}:{hash} and
// tracks every key of an account in the set {prefix}:idx:{account}.
type AggregateCache struct {
	client redis.Cmdable
	prefix string
}

func NewAggregateCache(client redis.Cmdable, prefix string) *AggregateCache {
	if prefix == "" {
		prefix = "adsync:agg"
	}
	return &AggregateCache{client: client, prefix: prefix}
}

func (c *AggregateCache) entryKey(adAccountID, key string) string {
	sum := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%s:%s:%s", c.prefix, adAccountID, hex.EncodeToString(sum[:8]))
}

func (c *AggregateCache) indexKey(adAccountID string) string {
	return fmt.Sprintf("%s:idx:%s", c.prefix, adAccountID)
}

func (c *AggregateCache) Get(ctx context.Context, adAccountID, key string, dest interface{}) (bool, error) {
	raw, err := c.client.Get(ctx, c.entryKey(adAccountID, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("decode cached aggregate: %w", err)
	}
	return true, nil
}

func (c *AggregateCache) Set(ctx context.Context, adAccountID, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode aggregate: %w", err)
	}
	entry := c.entryKey(adAccountID, key)
	idx := c.indexKey(adAccountID)
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, entry, raw, ttl)
		pipe.SAdd(ctx, idx, entry)
		pipe.Expire(ctx, idx, ttl)
		return nil
	})
	return err
}

// InvalidateAccount drops the tracked keys of an account, then scans for keys
// written without being tracked. Other accounts are never touched.
func (c *AggregateCache) InvalidateAccount(ctx context.Context, adAccountID string) (int64, error) {
	idx := c.indexKey(adAccountID)
	tracked, err := c.client.SMembers(ctx, idx).Result()
	if err != nil {
		return 0, err
	}

	var removed int64
	if len(tracked) > 0 {
		n, err := c.client.Del(ctx, tracked...).Result()
		if err != nil {
			return 0, err
		}
		removed += n
	}
	if err := c.client.Del(ctx, idx).Err(); err != nil {
		return removed, err
	}

	pattern := fmt.Sprintf("%s:%s:*", c.prefix, adAccountID)
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return removed, err
		}
		if len(keys) > 0 {
			n, err := c.client.Del(ctx, keys...).Result()
			if err != nil {
				return removed, err
			}
			removed += n
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	logger.GetLogger().
		WithField("account_id", adAccountID).
		WithField("removed", removed).
		Debug("Aggregate cache invalidated")
	return removed, nil
}
