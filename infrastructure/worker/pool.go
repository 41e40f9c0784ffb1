package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"ads-sync/domain/apperror"
	"ads-sync/domain/model"
	"ads-sync/domain/repository"
	"ads-sync/infrastructure/logger"
	"ads-sync/infrastructure/metrics"

	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	OutcomeCompleted = "completed"
	OutcomeRetrying  = "retrying"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
	OutcomeSkipped   = "skipped"
)

// ProgressFunc reports completion percentage of the running job
type ProgressFunc func(ctx context.Context, percent int)

// Handler executes one queue job. A nil result is allowed.
type Handler func(ctx context.Context, job *model.QueueJob, progress ProgressFunc) (*model.SyncResult, error)

// Tracker mirrors queue transitions onto a durable job record.
type Tracker interface {
	// Start returns false when the record is already terminal and the job must be skipped,
	// and apperror.ErrJobInProgress when another worker still holds it.
	Start(ctx context.Context, job *model.QueueJob) (bool, error)
	Progress(ctx context.Context, job *model.QueueJob, percent int) error
	Succeed(ctx context.Context, job *model.QueueJob, result *model.SyncResult) error
	Fail(ctx context.Context, job *model.QueueJob, cause error, willRetry bool) error
}

type Options struct {
	Queue            string
	Concurrency      int
	MaxJobsPerWindow int
	Window           time.Duration
	PollInterval     time.Duration
	Lease            time.Duration
	Heartbeat        time.Duration
}

// Pool runs Concurrency consumers of one queue.
type Pool struct {
	opts    Options
	queue   repository.IJobQueue
	handler Handler
	tracker Tracker
	syncLog repository.ISyncLog
	limiter *rate.Limiter
}

// NewPool accepts a nil tracker and a nil sync log.
func NewPool(opts Options, queue repository.IJobQueue, handler Handler, tracker Tracker, syncLog repository.ISyncLog) *Pool {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.Lease <= 0 {
		opts.Lease = 10 * time.Minute
	}
	// a running job renews its lease every Heartbeat
	if opts.Heartbeat <= 0 || opts.Heartbeat >= opts.Lease {
		opts.Heartbeat = opts.Lease / 3
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.MaxJobsPerWindow > 0 && opts.Window > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(opts.MaxJobsPerWindow)/opts.Window.Seconds()), opts.MaxJobsPerWindow)
	}
	return &Pool{
		opts:    opts,
		queue:   queue,
		handler: handler,
		tracker: tracker,
		syncLog: syncLog,
		limiter: limiter,
	}
}

// Run blocks until ctx is cancelled and every consumer has finished its current job.
func (p *Pool) Run(ctx context.Context) error {
	logger.GetLogger().
		WithField("queue", p.opts.Queue).
		WithField("concurrency", p.opts.Concurrency).
		Info("Starting worker pool")

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.opts.Concurrency; i++ {
		g.Go(func() error {
			p.consume(ctx)
			return nil
		})
	}
	err := g.Wait()
	logger.GetLogger().WithField("queue", p.opts.Queue).Info("Worker pool stopped")
	return err
}

func (p *Pool) consume(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		processed, err := p.ProcessNext(ctx)
		if err != nil && ctx.Err() == nil {
			logger.GetLogger().WithField("queue", p.opts.Queue).WithField("error", err).Error("Error while dequeuing job")
		}
		if processed {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.opts.PollInterval):
		}
	}
}

// ProcessNext runs at most one job and reports whether a job was dequeued.
// The lease is renewed while the job waits for a throughput slot and while
// it runs; on shutdown renewal stops, the lease lapses and stalled recovery
// requeues it.
func (p *Pool) ProcessNext(ctx context.Context) (bool, error) {
	job, err := p.queue.Dequeue(ctx, p.opts.Queue, p.opts.Lease)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	stop := p.heartbeat(ctx, job)
	defer stop()
	if err := p.limiter.Wait(ctx); err != nil {
		return true, err
	}
	p.process(ctx, job)
	return true, nil
}

func (p *Pool) heartbeat(ctx context.Context, job *model.QueueJob) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(p.opts.Heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ok, err := p.queue.ExtendLease(ctx, p.opts.Queue, job.ID)
				if err != nil {
					if ctx.Err() == nil {
						logger.GetLogger().WithField("job_id", job.ID).WithField("error", err).Warn("Error while renewing job lease")
					}
					continue
				}
				if !ok {
					logger.GetLogger().WithField("job_id", job.ID).Warn("Job lease lost")
					return
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func (p *Pool) process(ctx context.Context, job *model.QueueJob) {
	started := time.Now()
	entry := model.SyncLogEntry{
		QueueJobID: job.ID,
		Queue:      p.opts.Queue,
		Attempt:    job.AttemptsMade,
		StartedAt:  started.UTC(),
	}
	fillEntryFromPayload(&entry, job)
	log := logger.GetLogger().
		WithField("queue", p.opts.Queue).
		WithField("job_id", job.ID).
		WithField("attempt", job.AttemptsMade)

	outcome, result, cause := p.execute(ctx, job)

	elapsed := time.Since(started)
	metrics.RecordJob(p.opts.Queue, outcome, elapsed)
	entry.Outcome = outcome
	entry.Result = result
	entry.FinishedAt = time.Now().UTC()
	if cause != nil {
		entry.Error = cause.Error()
		log.WithField("outcome", outcome).WithField("error", cause).Warn("Job finished with error")
	} else {
		log.WithField("outcome", outcome).WithField("duration_ms", elapsed.Milliseconds()).Info("Job finished")
	}
	if p.syncLog != nil {
		if err := p.syncLog.Append(context.WithoutCancel(ctx), entry); err != nil {
			log.WithField("error", err).Warn("Error while appending sync run log")
		}
	}
}

// execute runs the handler under ctx; bookkeeping outlives a shutdown so a
// finished job is never left leased.
func (p *Pool) execute(ctx context.Context, job *model.QueueJob) (string, *model.SyncResult, error) {
	bookCtx := context.WithoutCancel(ctx)
	if p.tracker != nil {
		ok, err := p.tracker.Start(ctx, job)
		if errors.Is(err, apperror.ErrJobInProgress) {
			// the queue entry belongs to the worker that still runs it
			return OutcomeSkipped, nil, err
		}
		if err != nil {
			return p.fail(bookCtx, job, fmt.Errorf("start job: %w", err), true)
		}
		if !ok {
			p.ack(bookCtx, job, map[string]interface{}{"skipped": true})
			return OutcomeSkipped, nil, nil
		}
	}

	result, err := p.safeHandle(ctx, job)
	if err == nil {
		if p.tracker != nil {
			if terr := p.tracker.Succeed(bookCtx, job, result); terr != nil {
				logger.GetLogger().WithField("job_id", job.ID).WithField("error", terr).Error("Error while recording job success")
			}
		}
		p.ack(bookCtx, job, result)
		return OutcomeCompleted, result, nil
	}

	if errors.Is(err, apperror.ErrJobCancelled) {
		p.ack(bookCtx, job, map[string]interface{}{"cancelled": true})
		return OutcomeCancelled, result, err
	}
	return p.fail(bookCtx, job, err, !apperror.IsPermanent(err))
}

func (p *Pool) fail(ctx context.Context, job *model.QueueJob, cause error, retryable bool) (string, *model.SyncResult, error) {
	willRetry, err := p.queue.Fail(ctx, p.opts.Queue, job.ID, cause, retryable)
	if err != nil {
		logger.GetLogger().WithField("job_id", job.ID).WithField("error", err).Error("Error while failing job in queue")
	}
	if p.tracker != nil {
		if terr := p.tracker.Fail(ctx, job, cause, willRetry); terr != nil {
			logger.GetLogger().WithField("job_id", job.ID).WithField("error", terr).Error("Error while recording job failure")
		}
	}
	if willRetry {
		return OutcomeRetrying, nil, cause
	}
	return OutcomeFailed, nil, cause
}

func (p *Pool) ack(ctx context.Context, job *model.QueueJob, result interface{}) {
	if err := p.queue.Complete(ctx, p.opts.Queue, job.ID, result); err != nil {
		logger.GetLogger().WithField("job_id", job.ID).WithField("error", err).Error("Error while completing job in queue")
	}
}

// safeHandle turns a handler panic into a retryable error.
func (p *Pool) safeHandle(ctx context.Context, job *model.QueueJob) (result *model.SyncResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.GetLogger().
				WithField("job_id", job.ID).
				WithField("stack", string(debug.Stack())).
				Error("Recovered from panic in job handler")
			result = nil
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	progress := func(ctx context.Context, percent int) {
		if err := p.queue.UpdateProgress(ctx, p.opts.Queue, job.ID, percent); err != nil {
			logger.GetLogger().WithField("job_id", job.ID).WithField("error", err).Warn("Error while updating queue progress")
		}
		if p.tracker != nil {
			if err := p.tracker.Progress(ctx, job, percent); err != nil {
				logger.GetLogger().WithField("job_id", job.ID).WithField("error", err).Warn("Error while updating job progress")
			}
		}
	}
	return p.handler(ctx, job, progress)
}

func fillEntryFromPayload(entry *model.SyncLogEntry, job *model.QueueJob) {
	var payload model.SyncPayload
	if len(job.Payload) == 0 || json.Unmarshal(job.Payload, &payload) != nil {
		return
	}
	entry.SyncJobID = payload.SyncJobID
	entry.AdAccountID = payload.AdAccountID
}
