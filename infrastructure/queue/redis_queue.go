package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"ads-sync/domain/model"
	"ads-sync/infrastructure/logger"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// Options holds retry defaults and retention of finished jobs
type Options struct {
	Prefix           string
	Attempts         int
	BackoffBase      time.Duration
	KeepCompleted    int
	KeepCompletedAge time.Duration
	KeepFailed       int
	KeepFailedAge    time.Duration
	Now              func() time.Time
}

// RedisQueue is a durable priority queue on Redis sorted sets.
// Every state transition runs as one Lua script, so any number of
// processes can produce and consume concurrently.
type RedisQueue struct {
	client redis.Cmdable
	opts   Options
}

func NewRedisQueue(client redis.Cmdable, opts Options) *RedisQueue {
	if opts.Prefix == "" {
		opts.Prefix = "adsync:queue"
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &RedisQueue{client: client, opts: opts}
}

type keys struct {
	wait, delayed, active, completed, failed, jobPrefix string
}

func (q *RedisQueue) keys(queue string) keys {
	base := fmt.Sprintf("%s:%s", q.opts.Prefix, queue)
	return keys{
		wait:      base + ":wait",
		delayed:   base + ":delayed",
		active:    base + ":active",
		completed: base + ":completed",
		failed:    base + ":failed",
		jobPrefix: base + ":job:",
	}
}

func (q *RedisQueue) Enqueue(ctx context.Context, queue string, opts model.JobOptions) (bool, error) {
	if opts.ID == "" {
		return false, errors.New("job id is required")
	}
	data, err := json.Marshal(opts.Payload)
	if err != nil {
		return false, fmt.Errorf("marshal payload: %w", err)
	}
	attempts := opts.Attempts
	if attempts <= 0 {
		attempts = q.opts.Attempts
	}
	backoff := opts.BackoffBase
	if backoff <= 0 {
		backoff = q.opts.BackoffBase
	}
	now := q.opts.Now().UnixMilli()
	score := float64(opts.Priority)*priorityWeight + float64(now)
	k := q.keys(queue)

	res, err := enqueueScript.Run(ctx, q.client, []string{k.jobPrefix + opts.ID, k.wait, k.delayed},
		opts.ID, opts.Name, string(data), opts.Priority, attempts, backoff.Milliseconds(), now,
		opts.Delay.Milliseconds(), strconv.FormatFloat(score, 'f', 0, 64)).Int()
	if err != nil {
		return false, fmt.Errorf("enqueue %s/%s: %w", queue, opts.ID, err)
	}
	return res == 1, nil
}

func (q *RedisQueue) Dequeue(ctx context.Context, queue string, lease time.Duration) (*model.QueueJob, error) {
	k := q.keys(queue)
	res, err := dequeueScript.Run(ctx, q.client, []string{k.wait, k.delayed, k.active},
		q.opts.Now().UnixMilli(), lease.Milliseconds(), k.jobPrefix).StringSlice()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("dequeue %s: %w", queue, err)
	}
	return parseJob(queue, pairs(res))
}

func (q *RedisQueue) Complete(ctx context.Context, queue string, jobID string, result interface{}) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	k := q.keys(queue)
	res, err := completeScript.Run(ctx, q.client, []string{k.active, k.completed, k.jobPrefix + jobID},
		jobID, q.opts.Now().UnixMilli(), string(raw), q.opts.KeepCompleted, k.jobPrefix).Int()
	if err != nil {
		return fmt.Errorf("complete %s/%s: %w", queue, jobID, err)
	}
	if res == 0 {
		logger.GetLogger().WithField("queue", queue).WithField("job_id", jobID).Warn("completed job was no longer active")
	}
	return nil
}

func (q *RedisQueue) Fail(ctx context.Context, queue string, jobID string, cause error, retryable bool) (bool, error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	flag := "0"
	if retryable {
		flag = "1"
	}
	k := q.keys(queue)
	res, err := failScript.Run(ctx, q.client, []string{k.active, k.delayed, k.failed, k.jobPrefix + jobID},
		jobID, q.opts.Now().UnixMilli(), msg, flag, q.opts.KeepFailed, k.jobPrefix).Int()
	if err != nil {
		return false, fmt.Errorf("fail %s/%s: %w", queue, jobID, err)
	}
	if res < 0 {
		logger.GetLogger().WithField("queue", queue).WithField("job_id", jobID).Warn("failed job was no longer active")
	}
	return res == 1, nil
}

func (q *RedisQueue) UpdateProgress(ctx context.Context, queue string, jobID string, progress int) error {
	k := q.keys(queue)
	err := progressScript.Run(ctx, q.client, []string{k.jobPrefix + jobID, k.active}, progress, q.opts.Now().UnixMilli(), jobID).Err()
	if err != nil {
		return fmt.Errorf("progress %s/%s: %w", queue, jobID, err)
	}
	return nil
}

// ExtendLease pushes the lease of an active job out by the lease it was dequeued with
func (q *RedisQueue) ExtendLease(ctx context.Context, queue string, jobID string) (bool, error) {
	k := q.keys(queue)
	res, err := extendLeaseScript.Run(ctx, q.client, []string{k.active, k.jobPrefix + jobID}, jobID, q.opts.Now().UnixMilli()).Int()
	if err != nil {
		return false, fmt.Errorf("extend lease %s/%s: %w", queue, jobID, err)
	}
	return res == 1, nil
}

// Remove drops a job that has not started yet
func (q *RedisQueue) Remove(ctx context.Context, queue string, jobID string) (bool, error) {
	k := q.keys(queue)
	res, err := removeScript.Run(ctx, q.client, []string{k.wait, k.delayed, k.jobPrefix + jobID}, jobID).Int()
	if err != nil {
		return false, fmt.Errorf("remove %s/%s: %w", queue, jobID, err)
	}
	return res > 0, nil
}

// RecoverStalled returns jobs whose lease expired to the wait set
func (q *RedisQueue) RecoverStalled(ctx context.Context, queue string) (int64, error) {
	k := q.keys(queue)
	n, err := recoverStalledScript.Run(ctx, q.client, []string{k.active, k.wait}, q.opts.Now().UnixMilli(), k.jobPrefix).Int64()
	if err != nil {
		return 0, fmt.Errorf("recover stalled %s: %w", queue, err)
	}
	return n, nil
}

// Prune deletes finished jobs older than the retention age
func (q *RedisQueue) Prune(ctx context.Context, queue string) (int64, error) {
	k := q.keys(queue)
	now := q.opts.Now()
	var total int64
	for set, age := range map[string]time.Duration{k.completed: q.opts.KeepCompletedAge, k.failed: q.opts.KeepFailedAge} {
		if age <= 0 {
			continue
		}
		n, err := pruneScript.Run(ctx, q.client, []string{set}, now.Add(-age).UnixMilli(), k.jobPrefix).Int64()
		if err != nil {
			return total, fmt.Errorf("prune %s: %w", set, err)
		}
		total += n
	}
	return total, nil
}

func (q *RedisQueue) Stats(ctx context.Context, queue string) (model.QueueCounts, error) {
	k := q.keys(queue)
	pipe := q.client.Pipeline()
	wait := pipe.ZCard(ctx, k.wait)
	delayed := pipe.ZCard(ctx, k.delayed)
	active := pipe.ZCard(ctx, k.active)
	completed := pipe.ZCard(ctx, k.completed)
	failed := pipe.ZCard(ctx, k.failed)
	if _, err := pipe.Exec(ctx); err != nil {
		return model.QueueCounts{}, fmt.Errorf("stats %s: %w", queue, err)
	}
	return model.QueueCounts{
		Queue:     queue,
		Waiting:   wait.Val(),
		Delayed:   delayed.Val(),
		Active:    active.Val(),
		Completed: completed.Val(),
		Failed:    failed.Val(),
	}, nil
}

// GetJob reads a job in any state; nil when unknown or pruned
func (q *RedisQueue) GetJob(ctx context.Context, queue string, jobID string) (*model.QueueJob, error) {
	fields, err := q.client.HGetAll(ctx, q.keys(queue).jobPrefix+jobID).Result()
	if err != nil {
		return nil, fmt.Errorf("get job %s/%s: %w", queue, jobID, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return parseJob(queue, fields)
}

func pairs(flat []string) map[string]string {
	out := make(map[string]string, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		out[flat[i]] = flat[i+1]
	}
	return out
}

func parseJob(queue string, f map[string]string) (*model.QueueJob, error) {
	job := &model.QueueJob{
		ID:      f["id"],
		Queue:   queue,
		Name:    f["name"],
		Payload: []byte(f["data"]),
		State:   model.QueueJobState(f["state"]),
		Error:   f["error"],
	}
	var err error
	if job.Priority, err = atoi(f["priority"]); err != nil {
		return nil, err
	}
	if job.AttemptsMade, err = atoi(f["attempts_made"]); err != nil {
		return nil, err
	}
	if job.MaxAttempts, err = atoi(f["max_attempts"]); err != nil {
		return nil, err
	}
	if job.Progress, err = atoi(f["progress"]); err != nil {
		return nil, err
	}
	backoff, err := atoi(f["backoff_ms"])
	if err != nil {
		return nil, err
	}
	job.BackoffMs = int64(backoff)
	if ms, ok := millis(f["created_at"]); ok {
		job.CreatedAt = ms
	}
	if ms, ok := millis(f["processed_at"]); ok {
		job.ProcessedAt = &ms
	}
	if ms, ok := millis(f["finished_at"]); ok {
		job.FinishedAt = &ms
	}
	return job, nil
}

func atoi(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("parse job field %q: %w", s, err)
	}
	return n, nil
}

func millis(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms).UTC(), true
}
