package repository

import (
	"context"
	"time"

	"ads-sync/domain/dto"
	"ads-sync/domain/model"
)

// IAggregateCache caches aggregate query results per ad account
type IAggregateCache interface {
	Get(ctx context.Context, adAccountID, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, adAccountID, key string, value interface{}, ttl time.Duration) error
	InvalidateAccount(ctx context.Context, adAccountID string) (int64, error)
}

type ISyncEventPublisher interface {
	PublishSyncCompleted(ctx context.Context, event dto.SyncCompletedEvent) error
}

// ISyncStatusNotifier fans sync job transitions out to live subscribers; it must not block
type ISyncStatusNotifier interface {
	NotifySyncStatus(event dto.SyncStatusEvent)
}

type ISyncLog interface {
	Append(ctx context.Context, entry model.SyncLogEntry) error
	Recent(ctx context.Context, syncJobID string, limit int64) ([]model.SyncLogEntry, error)
}

// IOAuthStateStore keeps the state parameter of an in-flight authorization redirect
type IOAuthStateStore interface {
	Save(ctx context.Context, state string, payload dto.OAuthState, ttl time.Duration) error
	// Consume returns ErrNotFound for unknown or expired states; a state can be consumed once.
	Consume(ctx context.Context, state string) (*dto.OAuthState, error)
}
