package repository

import (
	"context"

	"ads-sync/domain/dto"
	"ads-sync/domain/model"
)

// IDimension upserts campaign, ad group and ad metadata keyed by (ad_account_id, external_id)
type IDimension interface {
	UpsertCampaigns(ctx context.Context, campaigns []model.Campaign) error
	UpsertAdGroups(ctx context.Context, adGroups []model.AdGroup) error
	UpsertAds(ctx context.Context, ads []model.Ad) error
	LoadIndex(ctx context.Context, adAccountID string) (*model.DimensionIndex, error)
}

// IMetricsFact stores daily facts by their full grain key
type IMetricsFact interface {
	// UpsertFacts overwrites measures of existing rows; returns the number of rows written.
	UpsertFacts(ctx context.Context, facts []model.MetricsFact) (int64, error)
	FindByKey(ctx context.Context, key model.FactKey) (*model.MetricsFact, error)
	Aggregate(ctx context.Context, adAccountID string, r model.DateRange) (model.MetricsTotals, []dto.CampaignSummary, error)
}
