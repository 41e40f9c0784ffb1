package ratelimit

import (
	"context"
	"math"
	"time"
)

// Options configures a token bucket
type Options struct {
	Key             string
	Capacity        int
	RefillPerSecond float64
	PollInterval    time.Duration
	Now             func() time.Time
}

func (o *Options) normalize() {
	if o.Capacity <= 0 {
		o.Capacity = 1
	}
	if o.RefillPerSecond <= 0 {
		o.RefillPerSecond = 1
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 250 * time.Millisecond
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// refill returns the token count after elapsed time, clamped to capacity
func refill(tokens float64, lastMs, nowMs int64, capacity int, perSecond float64) float64 {
	elapsed := nowMs - lastMs
	if elapsed < 0 {
		elapsed = 0
	}
	return math.Min(float64(capacity), tokens+float64(elapsed)*perSecond/1000)
}

type acquirer func(ctx context.Context, cost int) (bool, error)

// waitForToken polls try at a fixed interval until it succeeds, maxWait passes or ctx ends
func waitForToken(ctx context.Context, try acquirer, cost int, maxWait, interval time.Duration) (bool, error) {
	deadline := time.Now().Add(maxWait)
	for {
		ok, err := try(ctx, cost)
		if err != nil || ok {
			return ok, err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false, nil
		}
		wait := interval
		if remaining < wait {
			wait = remaining
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false, ctx.Err()
		case <-timer.C:
		}
	}
}
