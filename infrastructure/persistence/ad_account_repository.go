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

type AdAccountRepository struct{ db *gorm.DB }

func NewAdAccountRepository(db *gorm.DB) *AdAccountRepository { return &AdAccountRepository{db: db} }

func (r *AdAccountRepository) GetByID(ctx context.Context, id string) (*model.AdAccount, error) {
	var acct model.AdAccount
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&acct).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("ad account %s: %w", id, apperror.ErrNotFound)
		}
		return nil, err
	}
	return &acct, nil
}

// ListSyncable skips manager accounts, which carry no metrics of their own.
func (r *AdAccountRepository) ListSyncable(ctx context.Context) ([]model.AdAccount, error) {
	var accounts []model.AdAccount
	err := r.db.WithContext(ctx).
		Joins("JOIN connections ON connections.id = ad_accounts.connection_id").
		Where("ad_accounts.disabled = ? AND ad_accounts.is_manager = ? AND connections.status = ?", false, false, string(model.ConnectionActive)).
		Order("ad_accounts.id").
		Find(&accounts).Error
	return accounts, err
}

func (r *AdAccountRepository) UpsertDiscovered(ctx context.Context, acct *model.AdAccount) (bool, error) {
	created := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.AdAccount
		err := tx.Where("organization_id = ? AND provider = ? AND external_id = ?", acct.OrganizationID, acct.Provider, acct.ExternalID).
			First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if acct.ID == "" {
				acct.ID = uuid.NewString()
			}
			if acct.SyncStatus == "" {
				acct.SyncStatus = model.AccountSyncPending
			}
			created = true
			return tx.Create(acct).Error
		}
		if err != nil {
			return err
		}

		err = tx.Model(&model.AdAccount{}).Where("id = ?", existing.ID).Updates(map[string]interface{}{
			"connection_id": acct.ConnectionID,
			"name":          acct.Name,
			"currency_code": acct.CurrencyCode,
			"time_zone":     acct.TimeZone,
			"is_manager":    acct.IsManager,
			"disabled":      false,
			"updated_at":    time.Now().UTC(),
		}).Error
		if err != nil {
			return err
		}
		acct.ID = existing.ID
		acct.SyncStatus = existing.SyncStatus
		acct.LastSyncedAt = existing.LastSyncedAt
		acct.CreatedAt = existing.CreatedAt
		return nil
	})
	return created, err
}

func (r *AdAccountRepository) UpdateSyncStatus(ctx context.Context, id string, status model.AccountSyncStatus, syncErr *string, syncedAt *time.Time) error {
	updates := map[string]interface{}{
		"sync_status":     string(status),
		"last_sync_error": syncErr,
		"updated_at":      time.Now().UTC(),
	}
	if syncedAt != nil {
		updates["last_synced_at"] = *syncedAt
	}
	return r.db.WithContext(ctx).Model(&model.AdAccount{}).Where("id = ?", id).Updates(updates).Error
}

// DisableByConnection returns the ids of the accounts it disabled.
func (r *AdAccountRepository) DisableByConnection(ctx context.Context, connectionID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.AdAccount{}).
			Where("connection_id = ? AND disabled = ?", connectionID, false).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		return tx.Model(&model.AdAccount{}).Where("id IN ?", ids).Updates(map[string]interface{}{
			"disabled":   true,
			"updated_at": time.Now().UTC(),
		}).Error
	})
	return ids, err
}
