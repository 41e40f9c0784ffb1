package dto

import "time"

type ReportLevel string

const (
	LevelCampaign ReportLevel = "campaign"
	LevelAdGroup  ReportLevel = "ad_group"
	LevelAd       ReportLevel = "ad"
)

// ReportRow is a provider metrics row normalized across aggregation levels
type ReportRow struct {
	Date            time.Time `json:"date"`
	CampaignID      string    `json:"campaign_id"`
	CampaignName    string    `json:"campaign_name"`
	AdGroupID       *string   `json:"ad_group_id,omitempty"`
	AdGroupName     *string   `json:"ad_group_name,omitempty"`
	AdID            *string   `json:"ad_id,omitempty"`
	AdName          *string   `json:"ad_name,omitempty"`
	Impressions     int64     `json:"impressions"`
	Clicks          int64     `json:"clicks"`
	Cost            float64   `json:"cost"`
	Conversions     float64   `json:"conversions"`
	ConversionValue float64   `json:"conversion_value"`
}

type CampaignDimension struct {
	ExternalID string `json:"external_id"`
	Name       string `json:"name"`
	Status     string `json:"status"`
}

type AdGroupDimension struct {
	ExternalID         string `json:"external_id"`
	CampaignExternalID string `json:"campaign_external_id"`
	Name               string `json:"name"`
	Status             string `json:"status"`
}

type AdDimension struct {
	ExternalID        string `json:"external_id"`
	AdGroupExternalID string `json:"ad_group_external_id"`
	Name              string `json:"name"`
	Status            string `json:"status"`
}

// DimensionSet is everything a dimension pass fetched for one account
type DimensionSet struct {
	Campaigns []CampaignDimension
	AdGroups  []AdGroupDimension
	Ads       []AdDimension
}

// AccessibleAccount is an account the connection's user can read
type AccessibleAccount struct {
	ExternalID   string `json:"external_id"`
	Name         string `json:"name"`
	CurrencyCode string `json:"currency_code"`
	TimeZone     string `json:"time_zone"`
	IsManager    bool   `json:"is_manager"`
}

// OAuthTokenResult is what the OAuth provider returns on exchange or refresh
type OAuthTokenResult struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
	Email        string
	Scopes       string
}

// OAuthState binds an authorization redirect to the organization that started it
type OAuthState struct {
	OrganizationID string `json:"organization_id"`
	RedirectTo     string `json:"redirect_to,omitempty"`
	CreatedAt      int64  `json:"created_at"`
}
