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
	"ads-sync/infrastructure/worker"

	"github.com/goccy/go-json"
)

// ISyncJobHandler executes metrics-sync queue jobs
type ISyncJobHandler interface {
	Handle(ctx context.Context, job *model.QueueJob, progress worker.ProgressFunc) (*model.SyncResult, error)
}

type syncJobHandler struct {
	accounts       repository.IAdAccount
	syncJobs       repository.ISyncJob
	provider       repository.IAdsProvider
	reconciler     IReconciler
	cache          repository.IAggregateCache
	publisher      repository.ISyncEventPublisher
	includeAdLevel bool
	now            func() time.Time
}

// NewSyncJobHandler accepts a nil cache and a nil publisher.
func NewSyncJobHandler(accounts repository.IAdAccount, syncJobs repository.ISyncJob, provider repository.IAdsProvider,
	reconciler IReconciler, cache repository.IAggregateCache, publisher repository.ISyncEventPublisher, includeAdLevel bool) ISyncJobHandler {
	return &syncJobHandler{
		accounts:       accounts,
		syncJobs:       syncJobs,
		provider:       provider,
		reconciler:     reconciler,
		cache:          cache,
		publisher:      publisher,
		includeAdLevel: includeAdLevel,
		now:            time.Now,
	}
}

func decodeSyncPayload(job *model.QueueJob) (*model.SyncPayload, model.DateRange, error) {
	var payload model.SyncPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, model.DateRange{}, fmt.Errorf("%w: decode sync payload: %v", apperror.ErrInvalidRange, err)
	}
	start, err := model.ParseDate(payload.StartDate)
	if err != nil {
		return nil, model.DateRange{}, fmt.Errorf("%w: %v", apperror.ErrInvalidRange, err)
	}
	end, err := model.ParseDate(payload.EndDate)
	if err != nil {
		return nil, model.DateRange{}, fmt.Errorf("%w: %v", apperror.ErrInvalidRange, err)
	}
	return &payload, model.NewDateRange(start, end), nil
}

func (h *syncJobHandler) Handle(ctx context.Context, job *model.QueueJob, progress worker.ProgressFunc) (*model.SyncResult, error) {
	started := h.now()
	payload, dr, err := decodeSyncPayload(job)
	if err != nil {
		return nil, err
	}
	log := logger.GetLogger().
		WithField("job_id", job.ID).
		WithField("sync_job_id", payload.SyncJobID).
		WithField("account_id", payload.AdAccountID).
		WithField("range", dr.String())

	account, err := h.accounts.GetByID(ctx, payload.AdAccountID)
	if err != nil {
		return nil, err
	}
	if account.Disabled {
		return nil, apperror.ErrAccountDisabled
	}
	if err := h.accounts.UpdateSyncStatus(ctx, account.ID, model.AccountSyncing, nil, nil); err != nil {
		return nil, fmt.Errorf("mark account syncing: %w", err)
	}

	result, err := h.run(ctx, account, payload, dr, progress)
	if err != nil {
		h.settleFailedAccount(context.WithoutCancel(ctx), account, job, err)
		return nil, err
	}
	result.DurationMs = h.now().Sub(started).Milliseconds()

	h.invalidate(ctx, account.ID)

	finished := h.now().UTC()
	if err := h.accounts.UpdateSyncStatus(ctx, account.ID, model.AccountSynced, nil, &finished); err != nil {
		return nil, fmt.Errorf("mark account synced: %w", err)
	}
	h.publish(ctx, payload, result, finished)

	log.WithField("rows_processed", result.RowsProcessed).
		WithField("rows_skipped", result.RowsSkipped).
		WithField("duration_ms", result.DurationMs).
		Info("Sync job finished")
	return result, nil
}

// settleFailedAccount flips the account to ERROR only when the job will not
// run again; otherwise it restores the status the account had before the job.
func (h *syncJobHandler) settleFailedAccount(ctx context.Context, account *model.AdAccount, job *model.QueueJob, cause error) {
	log := logger.GetLogger().WithField("account_id", account.ID).WithField("job_id", job.ID)
	final := !errors.Is(cause, apperror.ErrJobCancelled) &&
		(apperror.IsPermanent(cause) || (job.MaxAttempts > 0 && job.AttemptsMade >= job.MaxAttempts))
	if final {
		msg := cause.Error()
		if err := h.accounts.UpdateSyncStatus(ctx, account.ID, model.AccountSyncError, &msg, nil); err != nil {
			log.WithField("error", err).Error("Error while marking account sync error")
		}
		return
	}
	previous := account.SyncStatus
	if previous == "" || previous == model.AccountSyncing {
		previous = model.AccountSyncPending
		if account.LastSyncedAt != nil {
			previous = model.AccountSynced
		}
	}
	if err := h.accounts.UpdateSyncStatus(ctx, account.ID, previous, account.LastSyncError, nil); err != nil {
		log.WithField("error", err).Error("Error while restoring account sync status")
	}
}

func (h *syncJobHandler) run(ctx context.Context, account *model.AdAccount, payload *model.SyncPayload, dr model.DateRange, progress worker.ProgressFunc) (*model.SyncResult, error) {
	dims, err := h.provider.FetchDimensions(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("fetch dimensions: %w", err)
	}
	index, err := h.reconciler.ReconcileDimensions(ctx, account, dims)
	if err != nil {
		return nil, err
	}
	if err := h.checkCancelled(ctx, payload.SyncJobID); err != nil {
		return nil, err
	}
	progress(ctx, 10)

	levels := []dto.ReportLevel{dto.LevelCampaign, dto.LevelAdGroup}
	if h.includeAdLevel {
		levels = append(levels, dto.LevelAd)
	}

	result := &model.SyncResult{}
	for i, level := range levels {
		fetchedAt := h.now()
		rows, err := h.provider.FetchMetrics(ctx, account, level, dr)
		if err != nil {
			return nil, fmt.Errorf("fetch %s metrics: %w", level, err)
		}
		stats, err := h.reconciler.ReconcileFacts(ctx, account, level, rows, index, fetchedAt)
		if err != nil {
			return nil, err
		}
		result.RowsProcessed += stats.Processed
		result.RowsSkipped += stats.Skipped
		if err := h.checkCancelled(ctx, payload.SyncJobID); err != nil {
			return nil, err
		}
		progress(ctx, 10+90*(i+1)/len(levels))
	}
	return result, nil
}

func (h *syncJobHandler) checkCancelled(ctx context.Context, syncJobID string) error {
	if syncJobID == "" {
		return nil
	}
	job, err := h.syncJobs.GetByID(ctx, syncJobID)
	if err != nil {
		return fmt.Errorf("check sync job status: %w", err)
	}
	if job.Status == model.SyncJobCancelled {
		return apperror.ErrJobCancelled
	}
	return nil
}

func (h *syncJobHandler) invalidate(ctx context.Context, adAccountID string) {
	if h.cache == nil {
		return
	}
	removed, err := h.cache.InvalidateAccount(ctx, adAccountID)
	if err != nil {
		logger.GetLogger().WithField("account_id", adAccountID).WithField("error", err).Error("Error while invalidating aggregate cache")
		return
	}
	metrics.RecordCacheInvalidation(removed)
}

func (h *syncJobHandler) publish(ctx context.Context, payload *model.SyncPayload, result *model.SyncResult, finished time.Time) {
	if h.publisher == nil {
		return
	}
	event := dto.SyncCompletedEvent{
		SyncJobID:      payload.SyncJobID,
		AdAccountID:    payload.AdAccountID,
		OrganizationID: payload.OrganizationID,
		JobType:        string(payload.JobType),
		StartDate:      payload.StartDate,
		EndDate:        payload.EndDate,
		RowsProcessed:  result.RowsProcessed,
		FinishedAt:     finished.Format(time.RFC3339),
	}
	if err := h.publisher.PublishSyncCompleted(ctx, event); err != nil {
		logger.GetLogger().WithField("sync_job_id", payload.SyncJobID).WithField("error", err).Warn("Error while publishing sync completed event")
	}
}

// syncJobTracker mirrors metrics-sync queue transitions onto sync_jobs rows
// and forwards each transition to the status notifier.
type syncJobTracker struct {
	syncJobs   repository.ISyncJob
	notifier   repository.ISyncStatusNotifier
	staleAfter time.Duration
	now        func() time.Time
}

// NewSyncJobTracker accepts a nil notifier. A RUNNING record updated within
// staleAfter is treated as still held by another worker; pass the queue lease.
func NewSyncJobTracker(syncJobs repository.ISyncJob, notifier repository.ISyncStatusNotifier, staleAfter time.Duration) worker.Tracker {
	return &syncJobTracker{syncJobs: syncJobs, notifier: notifier, staleAfter: staleAfter, now: time.Now}
}

func trackedPayload(job *model.QueueJob) *model.SyncPayload {
	var payload model.SyncPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil || payload.SyncJobID == "" {
		return nil
	}
	return &payload
}

func (t *syncJobTracker) notify(p *model.SyncPayload, status model.SyncJobStatus, progress int, apply func(e *dto.SyncStatusEvent)) {
	if t.notifier == nil {
		return
	}
	event := dto.SyncStatusEvent{
		Type:           dto.SyncStatusEventType,
		SyncJobID:      p.SyncJobID,
		AdAccountID:    p.AdAccountID,
		OrganizationID: p.OrganizationID,
		JobType:        string(p.JobType),
		Status:         string(status),
		Progress:       progress,
	}
	if apply != nil {
		apply(&event)
	}
	t.notifier.NotifySyncStatus(event)
}

func (t *syncJobTracker) Start(ctx context.Context, job *model.QueueJob) (bool, error) {
	p := trackedPayload(job)
	if p == nil {
		return true, nil
	}
	ok, err := t.syncJobs.MarkRunning(ctx, p.SyncJobID, t.now().UTC().Add(-t.staleAfter))
	if err != nil {
		return false, err
	}
	if ok {
		t.notify(p, model.SyncJobRunning, 0, nil)
		return true, nil
	}
	current, err := t.syncJobs.GetByID(ctx, p.SyncJobID)
	if err != nil {
		return false, err
	}
	if current.Status == model.SyncJobRunning {
		return false, apperror.ErrJobInProgress
	}
	return false, nil
}

func (t *syncJobTracker) Progress(ctx context.Context, job *model.QueueJob, percent int) error {
	p := trackedPayload(job)
	if p == nil {
		return nil
	}
	if err := t.syncJobs.UpdateProgress(ctx, p.SyncJobID, percent); err != nil {
		return err
	}
	t.notify(p, model.SyncJobRunning, percent, nil)
	return nil
}

func (t *syncJobTracker) Succeed(ctx context.Context, job *model.QueueJob, result *model.SyncResult) error {
	p := trackedPayload(job)
	if p == nil {
		return nil
	}
	if result == nil {
		result = &model.SyncResult{}
	}
	if err := t.syncJobs.MarkCompleted(ctx, p.SyncJobID, *result); err != nil {
		return err
	}
	t.notify(p, model.SyncJobCompleted, 100, func(e *dto.SyncStatusEvent) {
		e.RowsProcessed = result.RowsProcessed
	})
	return nil
}

func (t *syncJobTracker) Fail(ctx context.Context, job *model.QueueJob, cause error, willRetry bool) error {
	p := trackedPayload(job)
	if p == nil {
		return nil
	}
	msg := cause.Error()
	status := model.SyncJobFailed
	if willRetry {
		msg = fmt.Sprintf("attempt %d failed, retrying: %s", job.AttemptsMade, msg)
		status = model.SyncJobPending
		if err := t.syncJobs.MarkRetrying(ctx, p.SyncJobID, msg); err != nil {
			return err
		}
	} else if err := t.syncJobs.MarkFailed(ctx, p.SyncJobID, msg); err != nil {
		return err
	}
	t.notify(p, status, 0, func(e *dto.SyncStatusEvent) {
		e.Error = &msg
		e.Retrying = willRetry
	})
	return nil
}
