package model

import "time"

type ConnectionStatus string

const (
	ConnectionActive       ConnectionStatus = "ACTIVE"
	ConnectionExpired      ConnectionStatus = "EXPIRED"
	ConnectionDisconnected ConnectionStatus = "DISCONNECTED"
)

const ProviderGoogleAds = "GOOGLE_ADS"

// Connection stores the encrypted OAuth credentials of one organization for one provider
type Connection struct {
	ID              string           `json:"id"`
	OrganizationID  string           `json:"organization_id"`
	Provider        string           `json:"provider"`
	AccessTokenEnc  string           `json:"-"`
	RefreshTokenEnc string           `json:"-"`
	ExpiresAt       time.Time        `json:"expires_at"`
	Status          ConnectionStatus `json:"status"`
	LastError       *string          `json:"last_error,omitempty"`
	AccountEmail    string           `json:"account_email"`
	Scopes          string           `json:"scopes"`
	Version         int64            `json:"version"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// TokenUpdate is the result of a refresh, applied with compare-and-swap on Version
type TokenUpdate struct {
	AccessTokenEnc  string
	RefreshTokenEnc *string
	ExpiresAt       time.Time
}
