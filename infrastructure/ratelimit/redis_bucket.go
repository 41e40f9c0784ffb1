package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

// KEYS[1] bucket hash; ARGV capacity, refill per second, now ms, cost, ttl ms.
// Nothing is written when the request is denied.
var acquireScript = redis.NewScript(`
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])
local state = redis.call('HMGET', KEYS[1], 'tokens', 'ts')
local tokens = tonumber(state[1])
local ts = tonumber(state[2])
if tokens == nil or ts == nil then
  tokens = capacity
  ts = now
end
local elapsed = now - ts
if elapsed < 0 then elapsed = 0 end
tokens = math.min(capacity, tokens + elapsed * rate / 1000)
if tokens < cost then
  return 0
end
tokens = tokens - cost
redis.call('HSET', KEYS[1], 'tokens', tostring(tokens), 'ts', tostring(now))
redis.call('PEXPIRE', KEYS[1], tonumber(ARGV[5]))
return 1
`)

// RedisTokenBucket keeps bucket state in Redis so every worker process draws from one bucket
type RedisTokenBucket struct {
	client redis.Cmdable
	opts   Options
}

func NewRedisTokenBucket(client redis.Cmdable, opts Options) *RedisTokenBucket {
	opts.normalize()
	if opts.Key == "" {
		opts.Key = "adsync:ratelimit"
	}
	return &RedisTokenBucket{client: client, opts: opts}
}

func (b *RedisTokenBucket) TryAcquire(ctx context.Context, cost int) (bool, error) {
	if cost > b.opts.Capacity {
		return false, fmt.Errorf("cost %d exceeds bucket capacity %d", cost, b.opts.Capacity)
	}
	// idle keys expire after twice the time to refill an empty bucket
	ttl := int64(math.Ceil(2 * float64(b.opts.Capacity) / b.opts.RefillPerSecond * 1000))
	res, err := acquireScript.Run(ctx, b.client, []string{b.opts.Key},
		b.opts.Capacity, b.opts.RefillPerSecond, b.opts.Now().UnixMilli(), cost, ttl).Int()
	if err != nil {
		return false, fmt.Errorf("rate limiter script: %w", err)
	}
	return res == 1, nil
}

func (b *RedisTokenBucket) WaitForToken(ctx context.Context, cost int, maxWait time.Duration) (bool, error) {
	return waitForToken(ctx, b.TryAcquire, cost, maxWait, b.opts.PollInterval)
}
