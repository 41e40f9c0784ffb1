package repository

import (
	"context"

	"ads-sync/domain/dto"
	"ads-sync/domain/model"
)

// IAdsProvider reads reporting data from the ads platform
type IAdsProvider interface {
	ListAccessibleAccounts(ctx context.Context, conn *model.Connection) ([]dto.AccessibleAccount, error)
	FetchDimensions(ctx context.Context, account *model.AdAccount) (*dto.DimensionSet, error)
	FetchMetrics(ctx context.Context, account *model.AdAccount, level dto.ReportLevel, r model.DateRange) ([]dto.ReportRow, error)
}

// IOAuthProvider performs the authorization-code and refresh-token exchanges
type IOAuthProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*dto.OAuthTokenResult, error)
	Refresh(ctx context.Context, refreshToken string) (*dto.OAuthTokenResult, error)
	Revoke(ctx context.Context, token string) error
}

// ICredentialVault hands out access tokens that are valid for at least the refresh buffer
type ICredentialVault interface {
	GetValidAccessToken(ctx context.Context, connectionID string) (string, error)
}

type ICipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}
