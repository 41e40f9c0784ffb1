package model

import "time"

type EntityStatus string

const (
	EntityEnabled EntityStatus = "ENABLED"
	EntityPaused  EntityStatus = "PAUSED"
	EntityRemoved EntityStatus = "REMOVED"
	EntityUnknown EntityStatus = "UNKNOWN"
)

// ParseEntityStatus maps a provider status onto the warehouse enum
func ParseEntityStatus(s string) EntityStatus {
	switch EntityStatus(s) {
	case EntityEnabled, EntityPaused, EntityRemoved:
		return EntityStatus(s)
	default:
		return EntityUnknown
	}
}

type Campaign struct {
	ID          string       `json:"id"`
	AdAccountID string       `json:"ad_account_id"`
	ExternalID  string       `json:"external_id"`
	Name        string       `json:"name"`
	Status      EntityStatus `json:"status"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

type AdGroup struct {
	ID          string       `json:"id"`
	AdAccountID string       `json:"ad_account_id"`
	CampaignID  string       `json:"campaign_id"`
	ExternalID  string       `json:"external_id"`
	Name        string       `json:"name"`
	Status      EntityStatus `json:"status"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

type Ad struct {
	ID          string       `json:"id"`
	AdAccountID string       `json:"ad_account_id"`
	AdGroupID   string       `json:"ad_group_id"`
	ExternalID  string       `json:"external_id"`
	Name        string       `json:"name"`
	Status      EntityStatus `json:"status"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// DimensionIndex maps provider ids to warehouse ids for one account
type DimensionIndex struct {
	Campaigns map[string]string
	AdGroups  map[string]string
	Ads       map[string]string
}

func NewDimensionIndex() *DimensionIndex {
	return &DimensionIndex{
		Campaigns: map[string]string{},
		AdGroups:  map[string]string{},
		Ads:       map[string]string{},
	}
}
