package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// LocalTokenBucket is the in-process variant used in tests and single-process runs
type LocalTokenBucket struct {
	mu     sync.Mutex
	opts   Options
	tokens float64
	lastMs int64
	init   bool
}

func NewLocalTokenBucket(opts Options) *LocalTokenBucket {
	opts.normalize()
	return &LocalTokenBucket{opts: opts}
}

func (b *LocalTokenBucket) TryAcquire(_ context.Context, cost int) (bool, error) {
	if cost > b.opts.Capacity {
		return false, fmt.Errorf("cost %d exceeds bucket capacity %d", cost, b.opts.Capacity)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.opts.Now().UnixMilli()
	if !b.init {
		b.tokens = float64(b.opts.Capacity)
		b.lastMs = now
		b.init = true
	}
	tokens := refill(b.tokens, b.lastMs, now, b.opts.Capacity, b.opts.RefillPerSecond)
	if tokens < float64(cost) {
		return false, nil
	}
	b.tokens = tokens - float64(cost)
	b.lastMs = now
	return true, nil
}

func (b *LocalTokenBucket) WaitForToken(ctx context.Context, cost int, maxWait time.Duration) (bool, error) {
	return waitForToken(ctx, b.TryAcquire, cost, maxWait, b.opts.PollInterval)
}
