package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ads-sync/domain/apperror"
	"ads-sync/domain/dto"
	"ads-sync/domain/model"
	"ads-sync/domain/repository"
	"ads-sync/infrastructure/logger"
	"ads-sync/infrastructure/metrics"

	"github.com/google/uuid"
)

const recentRunsLimit = 20

type ISyncOrchestrator interface {
	TriggerInitialSync(ctx context.Context, adAccountID string) ([]string, error)
	TriggerDailySync(ctx context.Context) (int, error)
	TriggerIntradaySync(ctx context.Context) (int, error)
	EnqueueManualSync(ctx context.Context, adAccountID string, start, end time.Time) ([]string, error)
	GetQueueStats(ctx context.Context) (*dto.QueueStatsResponse, error)
	GetJob(ctx context.Context, syncJobID string) (*dto.SyncJobDetail, error)
	CancelJob(ctx context.Context, syncJobID string) (bool, error)
}

type OrchestratorOptions struct {
	InitialBackfillDays int
	ChunkDays           int
	StaleAfter          time.Duration
	IntradayEnabled     bool
	EnqueueTimeout      time.Duration
	Attempts            int
	Backoff             time.Duration
	Now                 func() time.Time
}

type syncOrchestrator struct {
	accounts    repository.IAdAccount
	connections repository.IConnection
	syncJobs    repository.ISyncJob
	queue       repository.IJobQueue
	syncLog     repository.ISyncLog
	opts        OrchestratorOptions
}

// NewSyncOrchestrator accepts a nil sync log.
func NewSyncOrchestrator(accounts repository.IAdAccount, connections repository.IConnection, syncJobs repository.ISyncJob,
	queue repository.IJobQueue, syncLog repository.ISyncLog, opts OrchestratorOptions) ISyncOrchestrator {
	if opts.InitialBackfillDays <= 0 {
		opts.InitialBackfillDays = 90
	}
	if opts.ChunkDays <= 0 {
		opts.ChunkDays = 30
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = time.Hour
	}
	if opts.EnqueueTimeout <= 0 {
		opts.EnqueueTimeout = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &syncOrchestrator{
		accounts:    accounts,
		connections: connections,
		syncJobs:    syncJobs,
		queue:       queue,
		syncLog:     syncLog,
		opts:        opts,
	}
}

func (o *syncOrchestrator) today() time.Time {
	return model.Day(o.opts.Now())
}

func (o *syncOrchestrator) TriggerInitialSync(ctx context.Context, adAccountID string) ([]string, error) {
	account, err := o.syncableAccount(ctx, adAccountID)
	if err != nil {
		return nil, err
	}
	today := o.today()
	start := today.AddDate(0, 0, -o.opts.InitialBackfillDays)
	return o.enqueueChunks(ctx, account, model.SyncJobInitial, SplitDateRange(start, today, o.opts.ChunkDays))
}

func (o *syncOrchestrator) EnqueueManualSync(ctx context.Context, adAccountID string, start, end time.Time) ([]string, error) {
	dr := model.NewDateRange(start, end)
	if !dr.Valid() {
		return nil, fmt.Errorf("%w: start %s is after end %s", apperror.ErrInvalidRange, dr.Start.Format(model.DateLayout), dr.End.Format(model.DateLayout))
	}
	if dr.End.After(o.today()) {
		return nil, fmt.Errorf("%w: end %s is in the future", apperror.ErrInvalidRange, dr.End.Format(model.DateLayout))
	}
	account, err := o.syncableAccount(ctx, adAccountID)
	if err != nil {
		return nil, err
	}
	return o.enqueueChunks(ctx, account, model.SyncJobManual, SplitDateRange(dr.Start, dr.End, o.opts.ChunkDays))
}

func (o *syncOrchestrator) TriggerDailySync(ctx context.Context) (int, error) {
	today := o.today()
	dr := model.DateRange{Start: today.AddDate(0, 0, -1), End: today}
	return o.triggerScheduled(ctx, model.SyncJobDaily, dr, func(accountID string) string {
		return fmt.Sprintf("daily:%s:%s", accountID, today.Format(model.DateLayout))
	})
}

func (o *syncOrchestrator) TriggerIntradaySync(ctx context.Context) (int, error) {
	if !o.opts.IntradayEnabled {
		return 0, nil
	}
	now := o.opts.Now().UTC()
	today := model.Day(now)
	return o.triggerScheduled(ctx, model.SyncJobIntraday, model.DateRange{Start: today, End: today}, func(accountID string) string {
		return fmt.Sprintf("intraday:%s:%s", accountID, now.Format("2006-01-02T15"))
	})
}

// triggerScheduled enqueues one job per syncable account; accounts with an
// overlapping fresh job are skipped.
func (o *syncOrchestrator) triggerScheduled(ctx context.Context, jobType model.SyncJobType, dr model.DateRange, queueID func(string) string) (int, error) {
	accounts, err := o.accounts.ListSyncable(ctx)
	if err != nil {
		return 0, fmt.Errorf("list syncable accounts: %w", err)
	}

	enqueued := 0
	for i := range accounts {
		account := &accounts[i]
		log := logger.GetLogger().WithField("account_id", account.ID).WithField("job_type", jobType)
		id, err := o.enqueueSync(ctx, account, jobType, dr, queueID(account.ID))
		switch {
		case errors.Is(err, apperror.ErrOverlappingSync):
			log.Info("Skipping account with an overlapping sync in progress")
		case err != nil:
			log.WithField("error", err).Error("Error while enqueuing scheduled sync")
		case id != "":
			enqueued++
		}
	}
	logger.GetLogger().
		WithField("job_type", jobType).
		WithField("accounts", len(accounts)).
		WithField("enqueued", enqueued).
		Info("Scheduled sync triggered")
	return enqueued, nil
}

func (o *syncOrchestrator) syncableAccount(ctx context.Context, adAccountID string) (*model.AdAccount, error) {
	account, err := o.accounts.GetByID(ctx, adAccountID)
	if err != nil {
		return nil, err
	}
	if account.Disabled {
		return nil, apperror.ErrAccountDisabled
	}
	conn, err := o.connections.GetByID(ctx, account.ConnectionID)
	if err != nil {
		return nil, err
	}
	if conn.Status != model.ConnectionActive {
		return nil, fmt.Errorf("%w: connection %s is %s", apperror.ErrConnectionInactive, conn.ID, conn.Status)
	}
	return account, nil
}

// enqueueChunks is all-or-nothing: a failing chunk cancels the chunks enqueued before it.
func (o *syncOrchestrator) enqueueChunks(ctx context.Context, account *model.AdAccount, jobType model.SyncJobType, chunks []model.DateRange) ([]string, error) {
	ids := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		id, err := o.enqueueSync(ctx, account, jobType, chunk, "")
		if err != nil {
			o.rollback(ctx, ids)
			return nil, err
		}
		if id != "" {
			ids = append(ids, id)
		}
	}
	logger.GetLogger().
		WithField("account_id", account.ID).
		WithField("job_type", jobType).
		WithField("chunks", len(ids)).
		Info("Sync enqueued")
	return ids, nil
}

func (o *syncOrchestrator) rollback(ctx context.Context, syncJobIDs []string) {
	for _, id := range syncJobIDs {
		if _, err := o.CancelJob(context.WithoutCancel(ctx), id); err != nil {
			logger.GetLogger().WithField("sync_job_id", id).WithField("error", err).Error("Error while rolling back sync job")
		}
	}
}

// enqueueSync creates the durable record, then the queue task. It returns an
// empty id when the queue already holds a task with the same id.
func (o *syncOrchestrator) enqueueSync(ctx context.Context, account *model.AdAccount, jobType model.SyncJobType, dr model.DateRange, queueJobID string) (string, error) {
	job := &model.SyncJob{
		ID:             uuid.NewString(),
		AdAccountID:    account.ID,
		ConnectionID:   account.ConnectionID,
		OrganizationID: account.OrganizationID,
		Provider:       account.Provider,
		JobType:        jobType,
		Status:         model.SyncJobPending,
		StartDate:      dr.Start,
		EndDate:        dr.End,
		Priority:       jobType.Priority(),
	}
	if queueJobID == "" {
		queueJobID = job.ID
	}
	job.QueueJobID = queueJobID

	staleBefore := o.opts.Now().Add(-o.opts.StaleAfter)
	if err := o.syncJobs.CreateIfNoOverlap(ctx, job, staleBefore); err != nil {
		return "", err
	}

	payload := model.SyncPayload{
		SyncJobID:      job.ID,
		AdAccountID:    account.ID,
		ConnectionID:   account.ConnectionID,
		OrganizationID: account.OrganizationID,
		Provider:       account.Provider,
		JobType:        jobType,
		StartDate:      dr.Start.Format(model.DateLayout),
		EndDate:        dr.End.Format(model.DateLayout),
	}
	enqCtx, cancel := context.WithTimeout(ctx, o.opts.EnqueueTimeout)
	defer cancel()
	enqueued, err := o.queue.Enqueue(enqCtx, model.QueueMetricsSync, model.JobOptions{
		ID:          queueJobID,
		Name:        string(jobType),
		Payload:     payload,
		Priority:    jobType.Priority(),
		Attempts:    o.opts.Attempts,
		BackoffBase: o.opts.Backoff,
	})
	if err != nil {
		bookCtx := context.WithoutCancel(ctx)
		if merr := o.syncJobs.MarkFailed(bookCtx, job.ID, "enqueue failed: "+err.Error()); merr != nil {
			logger.GetLogger().WithField("sync_job_id", job.ID).WithField("error", merr).Error("Error while failing unqueued sync job")
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return "", &apperror.QueueTimeoutError{Err: err}
		}
		return "", fmt.Errorf("enqueue sync job: %w", err)
	}
	if !enqueued {
		// the queue id was already used today
		if _, err := o.syncJobs.Cancel(context.WithoutCancel(ctx), job.ID); err != nil {
			logger.GetLogger().WithField("sync_job_id", job.ID).WithField("error", err).Error("Error while cancelling duplicate sync job")
		}
		return "", nil
	}
	return job.ID, nil
}

func (o *syncOrchestrator) GetQueueStats(ctx context.Context) (*dto.QueueStatsResponse, error) {
	res := &dto.QueueStatsResponse{}
	for _, name := range []string{model.QueueMetricsSync, model.QueueAccountDiscovery} {
		counts, err := o.queue.Stats(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("stats of %s: %w", name, err)
		}
		metrics.SetQueueDepth(name, counts.Waiting, counts.Delayed, counts.Active, counts.Completed, counts.Failed)
		res.Queues = append(res.Queues, counts)
	}
	return res, nil
}

func (o *syncOrchestrator) GetJob(ctx context.Context, syncJobID string) (*dto.SyncJobDetail, error) {
	job, err := o.syncJobs.GetByID(ctx, syncJobID)
	if err != nil {
		return nil, err
	}
	detail := &dto.SyncJobDetail{Job: job, Runs: []model.SyncLogEntry{}}
	if o.syncLog != nil {
		runs, err := o.syncLog.Recent(ctx, syncJobID, recentRunsLimit)
		if err != nil {
			logger.GetLogger().WithField("sync_job_id", syncJobID).WithField("error", err).Warn("Error while reading sync runs")
		} else if runs != nil {
			detail.Runs = runs
		}
	}
	return detail, nil
}

// CancelJob marks the record CANCELLED and drops a task that has not started.
// A running task stops at its next checkpoint.
func (o *syncOrchestrator) CancelJob(ctx context.Context, syncJobID string) (bool, error) {
	job, err := o.syncJobs.GetByID(ctx, syncJobID)
	if err != nil {
		return false, err
	}
	cancelled, err := o.syncJobs.Cancel(ctx, syncJobID)
	if err != nil || !cancelled {
		return cancelled, err
	}
	if _, err := o.queue.Remove(ctx, model.QueueMetricsSync, job.QueueJobID); err != nil {
		logger.GetLogger().WithField("sync_job_id", syncJobID).WithField("error", err).Warn("Error while removing cancelled job from queue")
	}
	return true, nil
}
