package repository

import (
	"context"
	"time"

	"ads-sync/domain/model"
)

type ISyncJob interface {
	// CreateIfNoOverlap inserts job unless a non-terminal job of the same account updated
	// after staleBefore overlaps its range, in which case it returns apperror.ErrOverlappingSync.
	CreateIfNoOverlap(ctx context.Context, job *model.SyncJob, staleBefore time.Time) error
	GetByID(ctx context.Context, id string) (*model.SyncJob, error)
	// MarkRunning moves a PENDING job, or a RUNNING one not updated since staleBefore, to RUNNING.
	MarkRunning(ctx context.Context, id string, staleBefore time.Time) (bool, error)
	UpdateProgress(ctx context.Context, id string, progress int) error
	MarkCompleted(ctx context.Context, id string, result model.SyncResult) error
	MarkFailed(ctx context.Context, id string, message string) error
	MarkRetrying(ctx context.Context, id string, message string) error
	Cancel(ctx context.Context, id string) (bool, error)
	CancelActiveByAccounts(ctx context.Context, accountIDs []string) (int64, error)
}
