package repository

import (
	"context"
	"time"

	"ads-sync/domain/model"
)

// IJobQueue is a durable priority queue keyed by queue name
type IJobQueue interface {
	// Enqueue returns false when a job with the same ID already exists.
	Enqueue(ctx context.Context, queue string, opts model.JobOptions) (bool, error)
	// Dequeue returns nil, nil when no job is ready.
	Dequeue(ctx context.Context, queue string, lease time.Duration) (*model.QueueJob, error)
	Complete(ctx context.Context, queue string, jobID string, result interface{}) error
	// Fail reports whether the job was scheduled for another attempt.
	Fail(ctx context.Context, queue string, jobID string, cause error, retryable bool) (bool, error)
	// UpdateProgress also renews the lease of an active job.
	UpdateProgress(ctx context.Context, queue string, jobID string, progress int) error
	// ExtendLease returns false when the job is no longer active.
	ExtendLease(ctx context.Context, queue string, jobID string) (bool, error)
	Remove(ctx context.Context, queue string, jobID string) (bool, error)
	RecoverStalled(ctx context.Context, queue string) (int64, error)
	Prune(ctx context.Context, queue string) (int64, error)
	Stats(ctx context.Context, queue string) (model.QueueCounts, error)
}

// IRateLimiter is a token bucket shared by every caller of the provider API
type IRateLimiter interface {
	TryAcquire(ctx context.Context, cost int) (bool, error)
	WaitForToken(ctx context.Context, cost int, maxWait time.Duration) (bool, error)
}
