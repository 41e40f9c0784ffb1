package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ads-sync/domain/apperror"
	"ads-sync/domain/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var activeJobStatuses = []string{string(model.SyncJobPending), string(model.SyncJobRunning)}

type SyncJobRepository struct{ db *gorm.DB }

func NewSyncJobRepository(db *gorm.DB) *SyncJobRepository { return &SyncJobRepository{db: db} }

// CreateIfNoOverlap serializes creators per account with a transaction-scoped advisory lock.
// Non-terminal jobs not updated since staleBefore are treated as abandoned.
func (r *SyncJobRepository) CreateIfNoOverlap(ctx context.Context, job *model.SyncJob, staleBefore time.Time) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = model.SyncJobPending
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", job.AdAccountID).Error; err != nil {
			return fmt.Errorf("lock account %s: %w", job.AdAccountID, err)
		}

		var overlapping int64
		err := tx.Model(&model.SyncJob{}).
			Where("ad_account_id = ? AND status IN ? AND updated_at >= ? AND start_date <= ? AND end_date >= ?",
				job.AdAccountID, activeJobStatuses, staleBefore, job.EndDate, job.StartDate).
			Count(&overlapping).Error
		if err != nil {
			return err
		}
		if overlapping > 0 {
			return apperror.ErrOverlappingSync
		}
		return tx.Create(job).Error
	})
}

func (r *SyncJobRepository) GetByID(ctx context.Context, id string) (*model.SyncJob, error) {
	var job model.SyncJob
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("sync job %s: %w", id, apperror.ErrNotFound)
		}
		return nil, err
	}
	return &job, nil
}

func (r *SyncJobRepository) MarkRunning(ctx context.Context, id string, staleBefore time.Time) (bool, error) {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&model.SyncJob{}).
		Where("id = ? AND (status = ? OR (status = ? AND updated_at < ?))",
			id, string(model.SyncJobPending), string(model.SyncJobRunning), staleBefore).
		Updates(map[string]interface{}{
			"status":        string(model.SyncJobRunning),
			"attempts":      gorm.Expr("attempts + 1"),
			"started_at":    gorm.Expr("COALESCE(started_at, ?)", now),
			"error_message": nil,
			"updated_at":    now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *SyncJobRepository) UpdateProgress(ctx context.Context, id string, progress int) error {
	return r.db.WithContext(ctx).Model(&model.SyncJob{}).
		Where("id = ? AND status = ?", id, string(model.SyncJobRunning)).
		Updates(map[string]interface{}{"progress": progress, "updated_at": time.Now().UTC()}).Error
}

func (r *SyncJobRepository) MarkCompleted(ctx context.Context, id string, result model.SyncResult) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Model(&model.SyncJob{}).
		Where("id = ? AND status <> ?", id, string(model.SyncJobCancelled)).
		Updates(map[string]interface{}{
			"status":         string(model.SyncJobCompleted),
			"progress":       100,
			"rows_processed": result.RowsProcessed,
			"rows_skipped":   result.RowsSkipped,
			"duration_ms":    result.DurationMs,
			"error_message":  nil,
			"completed_at":   now,
			"updated_at":     now,
		}).Error
}

func (r *SyncJobRepository) MarkFailed(ctx context.Context, id string, message string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Model(&model.SyncJob{}).
		Where("id = ? AND status IN ?", id, activeJobStatuses).
		Updates(map[string]interface{}{
			"status":        string(model.SyncJobFailed),
			"error_message": message,
			"completed_at":  now,
			"updated_at":    now,
		}).Error
}

// MarkRetrying puts a failed attempt back to PENDING while its retry waits in the queue,
// so the job still blocks overlapping syncs and can be cancelled.
func (r *SyncJobRepository) MarkRetrying(ctx context.Context, id string, message string) error {
	return r.db.WithContext(ctx).Model(&model.SyncJob{}).
		Where("id = ? AND status IN ?", id, activeJobStatuses).
		Updates(map[string]interface{}{
			"status":        string(model.SyncJobPending),
			"error_message": message,
			"progress":      0,
			"updated_at":    time.Now().UTC(),
		}).Error
}

// Cancel reports false when the job already reached a terminal status.
func (r *SyncJobRepository) Cancel(ctx context.Context, id string) (bool, error) {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&model.SyncJob{}).
		Where("id = ? AND status IN ?", id, activeJobStatuses).
		Updates(map[string]interface{}{
			"status":       string(model.SyncJobCancelled),
			"completed_at": now,
			"updated_at":   now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 1 {
		return true, nil
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (r *SyncJobRepository) CancelActiveByAccounts(ctx context.Context, accountIDs []string) (int64, error) {
	if len(accountIDs) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&model.SyncJob{}).
		Where("ad_account_id IN ? AND status IN ?", accountIDs, activeJobStatuses).
		Updates(map[string]interface{}{
			"status":       string(model.SyncJobCancelled),
			"completed_at": now,
			"updated_at":   now,
		})
	return res.RowsAffected, res.Error
}
