package repository

import (
	"context"

	"ads-sync/domain/model"
)

type IConnection interface {
	GetByID(ctx context.Context, id string) (*model.Connection, error)
	// Upsert creates or replaces the connection of (organization, provider) and fills in its ID.
	Upsert(ctx context.Context, conn *model.Connection) error
	// UpdateTokens applies a refresh only if the stored version still equals expectedVersion.
	UpdateTokens(ctx context.Context, id string, expectedVersion int64, upd model.TokenUpdate) (bool, error)
	// MarkExpired returns false when the version moved on, e.g. a concurrent refresh won.
	MarkExpired(ctx context.Context, id string, expectedVersion int64, reason string) (bool, error)
	MarkDisconnected(ctx context.Context, id string) error
}
