package model

import "time"

type AccountSyncStatus string

const (
	AccountSyncPending AccountSyncStatus = "PENDING"
	AccountSyncing     AccountSyncStatus = "SYNCING"
	AccountSynced      AccountSyncStatus = "SYNCED"
	AccountSyncError   AccountSyncStatus = "ERROR"
)

// AdAccount is an advertiser account reachable through a Connection
type AdAccount struct {
	ID             string            `gorm:"column:id;primaryKey" json:"id"`
	OrganizationID string            `gorm:"column:organization_id" json:"organization_id"`
	ConnectionID   string            `gorm:"column:connection_id;index" json:"connection_id"`
	Provider       string            `gorm:"column:provider" json:"provider"`
	ExternalID     string            `gorm:"column:external_id" json:"external_id"`
	Name           string            `gorm:"column:name" json:"name"`
	CurrencyCode   string            `gorm:"column:currency_code" json:"currency_code"`
	TimeZone       string            `gorm:"column:time_zone" json:"time_zone"`
	IsManager      bool              `gorm:"column:is_manager" json:"is_manager"`
	SyncStatus     AccountSyncStatus `gorm:"column:sync_status" json:"sync_status"`
	LastSyncedAt   *time.Time        `gorm:"column:last_synced_at" json:"last_synced_at,omitempty"`
	LastSyncError  *string           `gorm:"column:last_sync_error" json:"last_sync_error,omitempty"`
	Disabled       bool              `gorm:"column:disabled" json:"disabled"`
	CreatedAt      time.Time         `gorm:"column:created_at" json:"created_at"`
	UpdatedAt      time.Time         `gorm:"column:updated_at" json:"updated_at"`
}

func (AdAccount) TableName() string {
	return "ad_accounts"
}
