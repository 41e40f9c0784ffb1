package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"ads-sync/domain/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testQueue = "metrics-sync"

type clock struct{ now time.Time }

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestQueue(t *testing.T, opts Options) (*RedisQueue, *clock) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	c := &clock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	opts.Now = c.Now
	if opts.Prefix == "" {
		opts.Prefix = "test:queue"
	}
	return NewRedisQueue(client, opts), c
}

func TestRedisQueue_EnqueueIsIdempotent(t *testing.T) {
	q, _ := newTestQueue(t, Options{Attempts: 3, BackoffBase: time.Second})
	ctx := context.Background()

	ok, err := q.Enqueue(ctx, testQueue, model.JobOptions{ID: "daily:acc-1:2024-01-01", Name: "DAILY", Payload: map[string]string{"a": "1"}, Priority: 3})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = q.Enqueue(ctx, testQueue, model.JobOptions{ID: "daily:acc-1:2024-01-01", Name: "DAILY", Payload: map[string]string{"a": "2"}, Priority: 3})
	require.NoError(t, err)
	assert.False(t, ok)

	stats, err := q.Stats(ctx, testQueue)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Waiting)

	job, err := q.Dequeue(ctx, testQueue, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.JSONEq(t, `{"a":"1"}`, string(job.Payload))
	assert.Equal(t, 3, job.MaxAttempts)
	assert.Equal(t, 1, job.AttemptsMade)
	assert.Equal(t, model.QueueJobActive, job.State)
}

func TestRedisQueue_EnqueueRequiresID(t *testing.T) {
	q, _ := newTestQueue(t, Options{})
	_, err := q.Enqueue(context.Background(), testQueue, model.JobOptions{Name: "x"})
	assert.Error(t, err)
}

func TestRedisQueue_PriorityThenFIFO(t *testing.T) {
	q, c := newTestQueue(t, Options{})
	ctx := context.Background()

	for _, j := range []struct {
		id       string
		priority int
	}{{"daily-1", 3}, {"daily-2", 3}, {"manual-1", 1}, {"intraday-1", 4}} {
		_, err := q.Enqueue(ctx, testQueue, model.JobOptions{ID: j.id, Priority: j.priority, Payload: j.id})
		require.NoError(t, err)
		c.Advance(time.Millisecond)
	}

	var order []string
	for {
		job, err := q.Dequeue(ctx, testQueue, time.Minute)
		require.NoError(t, err)
		if job == nil {
			break
		}
		order = append(order, job.ID)
	}
	assert.Equal(t, []string{"manual-1", "daily-1", "daily-2", "intraday-1"}, order)
}

func TestRedisQueue_RetryWithExponentialBackoff(t *testing.T) {
	q, c := newTestQueue(t, Options{Attempts: 3, BackoffBase: time.Second, KeepFailed: 10})
	ctx := context.Background()

	_, err := q.Enqueue(ctx, testQueue, model.JobOptions{ID: "job-1", Payload: "p"})
	require.NoError(t, err)

	job, err := q.Dequeue(ctx, testQueue, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, job)

	retried, err := q.Fail(ctx, testQueue, job.ID, errors.New("503 from provider"), true)
	require.NoError(t, err)
	assert.True(t, retried)

	job, err = q.Dequeue(ctx, testQueue, time.Minute)
	require.NoError(t, err)
	assert.Nil(t, job, "job is delayed by the first backoff")

	c.Advance(time.Second)
	job, err = q.Dequeue(ctx, testQueue, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, 2, job.AttemptsMade)
	assert.Equal(t, "503 from provider", job.Error)

	retried, err = q.Fail(ctx, testQueue, job.ID, errors.New("503 again"), true)
	require.NoError(t, err)
	assert.True(t, retried)

	c.Advance(time.Second)
	job, err = q.Dequeue(ctx, testQueue, time.Minute)
	require.NoError(t, err)
	assert.Nil(t, job, "second backoff is twice the base")

	c.Advance(time.Second)
	job, err = q.Dequeue(ctx, testQueue, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, 3, job.AttemptsMade)

	retried, err = q.Fail(ctx, testQueue, job.ID, errors.New("503 final"), true)
	require.NoError(t, err)
	assert.False(t, retried, "attempts are exhausted")

	stats, err := q.Stats(ctx, testQueue)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(0), stats.Delayed)

	stored, err := q.GetJob(ctx, testQueue, "job-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, model.QueueJobFailed, stored.State)
	assert.Equal(t, "503 final", stored.Error)
}

func TestRedisQueue_PermanentFailureSkipsRetry(t *testing.T) {
	q, _ := newTestQueue(t, Options{Attempts: 5, BackoffBase: time.Second, KeepFailed: 10})
	ctx := context.Background()

	_, err := q.Enqueue(ctx, testQueue, model.JobOptions{ID: "job-1", Payload: "p"})
	require.NoError(t, err)
	job, err := q.Dequeue(ctx, testQueue, time.Minute)
	require.NoError(t, err)

	retried, err := q.Fail(ctx, testQueue, job.ID, errors.New("invalid_grant"), false)
	require.NoError(t, err)
	assert.False(t, retried)

	stats, err := q.Stats(ctx, testQueue)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Failed)
}

func TestRedisQueue_CompleteKeepsBoundedHistory(t *testing.T) {
	q, c := newTestQueue(t, Options{KeepCompleted: 2})
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		_, err := q.Enqueue(ctx, testQueue, model.JobOptions{ID: id, Payload: id})
		require.NoError(t, err)
		job, err := q.Dequeue(ctx, testQueue, time.Minute)
		require.NoError(t, err)
		require.NoError(t, q.Complete(ctx, testQueue, job.ID, map[string]int{"rows": 1}))
		c.Advance(time.Second)
	}

	stats, err := q.Stats(ctx, testQueue)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Completed)

	oldest, err := q.GetJob(ctx, testQueue, "a")
	require.NoError(t, err)
	assert.Nil(t, oldest, "oldest completed job is pruned")

	newest, err := q.GetJob(ctx, testQueue, "c")
	require.NoError(t, err)
	require.NotNil(t, newest)
	assert.Equal(t, model.QueueJobCompleted, newest.State)
	assert.Equal(t, 100, newest.Progress)
}

func TestRedisQueue_PruneByAge(t *testing.T) {
	q, c := newTestQueue(t, Options{KeepCompleted: 100, KeepCompletedAge: time.Hour})
	ctx := context.Background()

	_, err := q.Enqueue(ctx, testQueue, model.JobOptions{ID: "old", Payload: "p"})
	require.NoError(t, err)
	job, err := q.Dequeue(ctx, testQueue, time.Minute)
	require.NoError(t, err)
	require.NoError(t, q.Complete(ctx, testQueue, job.ID, nil))

	c.Advance(2 * time.Hour)
	_, err = q.Enqueue(ctx, testQueue, model.JobOptions{ID: "new", Payload: "p"})
	require.NoError(t, err)
	job, err = q.Dequeue(ctx, testQueue, time.Minute)
	require.NoError(t, err)
	require.NoError(t, q.Complete(ctx, testQueue, job.ID, nil))

	n, err := q.Prune(ctx, testQueue)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	stats, err := q.Stats(ctx, testQueue)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Completed)
}

func TestRedisQueue_RecoverStalled(t *testing.T) {
	q, c := newTestQueue(t, Options{})
	ctx := context.Background()

	_, err := q.Enqueue(ctx, testQueue, model.JobOptions{ID: "job-1", Payload: "p"})
	require.NoError(t, err)
	_, err = q.Dequeue(ctx, testQueue, time.Minute)
	require.NoError(t, err)

	n, err := q.RecoverStalled(ctx, testQueue)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "lease still valid")

	c.Advance(2 * time.Minute)
	n, err = q.RecoverStalled(ctx, testQueue)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	job, err := q.Dequeue(ctx, testQueue, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, 2, job.AttemptsMade)
}

func TestRedisQueue_ProgressAndHeartbeatRenewLease(t *testing.T) {
	q, c := newTestQueue(t, Options{})
	ctx := context.Background()

	_, err := q.Enqueue(ctx, testQueue, model.JobOptions{ID: "job-1", Payload: "p"})
	require.NoError(t, err)
	job, err := q.Dequeue(ctx, testQueue, time.Minute)
	require.NoError(t, err)

	c.Advance(50 * time.Second)
	require.NoError(t, q.UpdateProgress(ctx, testQueue, job.ID, 30))
	c.Advance(50 * time.Second)
	n, err := q.RecoverStalled(ctx, testQueue)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "progress renewed the lease")

	ok, err := q.ExtendLease(ctx, testQueue, job.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	c.Advance(50 * time.Second)
	n, err = q.RecoverStalled(ctx, testQueue)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "heartbeat renewed the lease")

	c.Advance(20 * time.Second)
	n, err = q.RecoverStalled(ctx, testQueue)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	ok, err = q.ExtendLease(ctx, testQueue, job.ID)
	require.NoError(t, err)
	assert.False(t, ok, "a recovered job is no longer leased")
}

func TestRedisQueue_RemoveAndProgress(t *testing.T) {
	q, _ := newTestQueue(t, Options{})
	ctx := context.Background()

	_, err := q.Enqueue(ctx, testQueue, model.JobOptions{ID: "job-1", Payload: "p"})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, testQueue, model.JobOptions{ID: "job-2", Payload: "p", Delay: time.Hour})
	require.NoError(t, err)

	removed, err := q.Remove(ctx, testQueue, "job-2")
	require.NoError(t, err)
	assert.True(t, removed)

	job, err := q.Dequeue(ctx, testQueue, time.Minute)
	require.NoError(t, err)
	require.NoError(t, q.UpdateProgress(ctx, testQueue, job.ID, 40))

	removed, err = q.Remove(ctx, testQueue, "job-1")
	require.NoError(t, err)
	assert.False(t, removed, "active jobs cannot be removed")

	stored, err := q.GetJob(ctx, testQueue, "job-1")
	require.NoError(t, err)
	assert.Equal(t, 40, stored.Progress)

	require.NoError(t, q.UpdateProgress(ctx, testQueue, "missing", 10))
	missing, err := q.GetJob(ctx, testQueue, "missing")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRedisQueue_PayloadRoundTrip(t *testing.T) {
	q, _ := newTestQueue(t, Options{})
	ctx := context.Background()
	payload := model.SyncPayload{SyncJobID: "sj-1", AdAccountID: "acc-1", JobType: model.SyncJobManual, StartDate: "2024-01-01", EndDate: "2024-01-01"}

	_, err := q.Enqueue(ctx, testQueue, model.JobOptions{ID: "sj-1", Name: string(model.SyncJobManual), Payload: payload, Priority: 1})
	require.NoError(t, err)
	job, err := q.Dequeue(ctx, testQueue, time.Minute)
	require.NoError(t, err)

	var got model.SyncPayload
	require.NoError(t, json.Unmarshal(job.Payload, &got))
	assert.Equal(t, payload, got)
	assert.Equal(t, "MANUAL", job.Name)
	assert.Equal(t, 1, job.Priority)
}
