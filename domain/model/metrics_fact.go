package model

import "time"

// SourceGranularity ranks how complete the measures of a fact row are.
// A PARTIAL row was fetched while its day was still open.
type SourceGranularity string

const (
	GranularityPartial SourceGranularity = "PARTIAL"
	GranularityFinal   SourceGranularity = "FINAL"
)

// MetricsFact is one row of the daily performance fact table.
// The grain key is (Date, Provider, AdAccountID, CampaignID, AdGroupID, AdID).
type MetricsFact struct {
	Date              time.Time         `json:"date"`
	Provider          string            `json:"provider"`
	AdAccountID       string            `json:"ad_account_id"`
	CampaignID        string            `json:"campaign_id"`
	AdGroupID         *string           `json:"ad_group_id,omitempty"`
	AdID              *string           `json:"ad_id,omitempty"`
	Impressions       int64             `json:"impressions"`
	Clicks            int64             `json:"clicks"`
	Spend             float64           `json:"spend"`
	Conversions       float64           `json:"conversions"`
	ConversionValue   float64           `json:"conversion_value"`
	SourceGranularity SourceGranularity `json:"source_granularity"`
	SyncedAt          time.Time         `json:"synced_at"`
}

// FactKey identifies a fact row by its grain
type FactKey struct {
	Date        time.Time
	Provider    string
	AdAccountID string
	CampaignID  string
	AdGroupID   *string
	AdID        *string
}

func (f *MetricsFact) Key() FactKey {
	return FactKey{
		Date:        f.Date,
		Provider:    f.Provider,
		AdAccountID: f.AdAccountID,
		CampaignID:  f.CampaignID,
		AdGroupID:   f.AdGroupID,
		AdID:        f.AdID,
	}
}

// MetricsTotals is an aggregate over a set of fact rows
type MetricsTotals struct {
	Impressions     int64   `json:"impressions"`
	Clicks          int64   `json:"clicks"`
	Spend           float64 `json:"spend"`
	Conversions     float64 `json:"conversions"`
	ConversionValue float64 `json:"conversion_value"`
}
