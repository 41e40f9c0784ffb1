package repository

import (
	"context"
	"time"

	"ads-sync/domain/model"
)

type IAdAccount interface {
	GetByID(ctx context.Context, id string) (*model.AdAccount, error)
	// ListSyncable returns enabled accounts whose connection is ACTIVE.
	ListSyncable(ctx context.Context) ([]model.AdAccount, error)
	// UpsertDiscovered inserts a newly seen account or refreshes its metadata; created reports an insert.
	UpsertDiscovered(ctx context.Context, acct *model.AdAccount) (created bool, err error)
	UpdateSyncStatus(ctx context.Context, id string, status model.AccountSyncStatus, syncErr *string, syncedAt *time.Time) error
	DisableByConnection(ctx context.Context, connectionID string) ([]string, error)
}
