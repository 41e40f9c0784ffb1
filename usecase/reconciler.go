package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ads-sync/domain/apperror"
	"ads-sync/domain/dto"
	"ads-sync/domain/model"
	"ads-sync/domain/repository"
	"ads-sync/infrastructure/logger"
	"ads-sync/infrastructure/metrics"
)

const factBatchSize = 500

// FactStats counts the outcome of one ReconcileFacts call.
// Skipped covers rows with a missing parent and PARTIAL rows that met a FINAL one.
type FactStats struct {
	Processed int
	Written   int
	Skipped   int
}

type IReconciler interface {
	ReconcileDimensions(ctx context.Context, account *model.AdAccount, set *dto.DimensionSet) (*model.DimensionIndex, error)
	ReconcileFacts(ctx context.Context, account *model.AdAccount, level dto.ReportLevel, rows []dto.ReportRow, index *model.DimensionIndex, fetchedAt time.Time) (FactStats, error)
}

type reconciler struct {
	dimensions repository.IDimension
	facts      repository.IMetricsFact
	now        func() time.Time
	batchSize  int
}

func NewReconciler(dimensions repository.IDimension, facts repository.IMetricsFact) IReconciler {
	return &reconciler{
		dimensions: dimensions,
		facts:      facts,
		now:        time.Now,
		batchSize:  factBatchSize,
	}
}

func (r *reconciler) ReconcileDimensions(ctx context.Context, account *model.AdAccount, set *dto.DimensionSet) (*model.DimensionIndex, error) {
	log := logger.GetLogger().WithField("account_id", account.ID)

	index, err := r.dimensions.LoadIndex(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("load dimension index: %w", err)
	}
	if set == nil {
		return index, nil
	}
	now := r.now().UTC()

	campaigns := make([]model.Campaign, 0, len(set.Campaigns))
	for _, c := range set.Campaigns {
		campaigns = append(campaigns, model.Campaign{
			AdAccountID: account.ID,
			ExternalID:  c.ExternalID,
			Name:        c.Name,
			Status:      model.ParseEntityStatus(c.Status),
			UpdatedAt:   now,
		})
	}
	if err := r.dimensions.UpsertCampaigns(ctx, campaigns); err != nil {
		return nil, fmt.Errorf("upsert campaigns: %w", err)
	}
	for _, c := range campaigns {
		index.Campaigns[c.ExternalID] = c.ID
	}

	adGroups := make([]model.AdGroup, 0, len(set.AdGroups))
	for _, g := range set.AdGroups {
		campaignID, ok := index.Campaigns[g.CampaignExternalID]
		if !ok {
			log.WithField("error", &apperror.DimensionMissingError{Kind: "campaign", ExternalID: g.CampaignExternalID}).
				WithField("ad_group", g.ExternalID).
				Warn("Skipping ad group without campaign")
			continue
		}
		adGroups = append(adGroups, model.AdGroup{
			AdAccountID: account.ID,
			CampaignID:  campaignID,
			ExternalID:  g.ExternalID,
			Name:        g.Name,
			Status:      model.ParseEntityStatus(g.Status),
			UpdatedAt:   now,
		})
	}
	if err := r.dimensions.UpsertAdGroups(ctx, adGroups); err != nil {
		return nil, fmt.Errorf("upsert ad groups: %w", err)
	}
	for _, g := range adGroups {
		index.AdGroups[g.ExternalID] = g.ID
	}

	ads := make([]model.Ad, 0, len(set.Ads))
	for _, a := range set.Ads {
		adGroupID, ok := index.AdGroups[a.AdGroupExternalID]
		if !ok {
			log.WithField("error", &apperror.DimensionMissingError{Kind: "ad_group", ExternalID: a.AdGroupExternalID}).
				WithField("ad", a.ExternalID).
				Warn("Skipping ad without ad group")
			continue
		}
		ads = append(ads, model.Ad{
			AdAccountID: account.ID,
			AdGroupID:   adGroupID,
			ExternalID:  a.ExternalID,
			Name:        a.Name,
			Status:      model.ParseEntityStatus(a.Status),
			UpdatedAt:   now,
		})
	}
	if err := r.dimensions.UpsertAds(ctx, ads); err != nil {
		return nil, fmt.Errorf("upsert ads: %w", err)
	}
	for _, a := range ads {
		index.Ads[a.ExternalID] = a.ID
	}

	log.WithField("campaigns", len(campaigns)).
		WithField("ad_groups", len(adGroups)).
		WithField("ads", len(ads)).
		Debug("Dimensions reconciled")
	return index, nil
}

// Granularity returns FINAL for a day that had closed when the row was fetched.
func Granularity(date, fetchedAt time.Time) model.SourceGranularity {
	if model.Day(date).Before(model.Day(fetchedAt)) {
		return model.GranularityFinal
	}
	return model.GranularityPartial
}

func (r *reconciler) ReconcileFacts(ctx context.Context, account *model.AdAccount, level dto.ReportLevel, rows []dto.ReportRow, index *model.DimensionIndex, fetchedAt time.Time) (FactStats, error) {
	stats := FactStats{Processed: len(rows)}
	if index == nil {
		index = model.NewDimensionIndex()
	}
	log := logger.GetLogger().WithField("account_id", account.ID).WithField("level", level)

	facts := make([]model.MetricsFact, 0, len(rows))
	for _, row := range rows {
		fact, err := r.resolve(account, level, row, index)
		if err != nil {
			var missing *apperror.DimensionMissingError
			if errors.As(err, &missing) {
				log.WithField("error", err).WithField("date", row.Date.Format(model.DateLayout)).Warn("Skipping fact row")
				stats.Skipped++
				continue
			}
			return stats, err
		}
		fact.SourceGranularity = Granularity(row.Date, fetchedAt)
		fact.SyncedAt = fetchedAt.UTC()
		facts = append(facts, *fact)
	}

	for start := 0; start < len(facts); start += r.batchSize {
		end := min(start+r.batchSize, len(facts))
		written, err := r.facts.UpsertFacts(ctx, facts[start:end])
		if err != nil {
			return stats, fmt.Errorf("upsert %s facts: %w", level, err)
		}
		stats.Written += int(written)
		stats.Skipped += (end - start) - int(written)
	}

	metrics.RecordFacts(string(level), stats.Written, stats.Skipped)
	return stats, nil
}

func (r *reconciler) resolve(account *model.AdAccount, level dto.ReportLevel, row dto.ReportRow, index *model.DimensionIndex) (*model.MetricsFact, error) {
	campaignID, ok := index.Campaigns[row.CampaignID]
	if !ok {
		return nil, &apperror.DimensionMissingError{Kind: "campaign", ExternalID: row.CampaignID}
	}
	fact := &model.MetricsFact{
		Date:            model.Day(row.Date),
		Provider:        account.Provider,
		AdAccountID:     account.ID,
		CampaignID:      campaignID,
		Impressions:     row.Impressions,
		Clicks:          row.Clicks,
		Spend:           row.Cost,
		Conversions:     row.Conversions,
		ConversionValue: row.ConversionValue,
	}

	switch level {
	case dto.LevelCampaign:
	case dto.LevelAdGroup, dto.LevelAd:
		if row.AdGroupID == nil {
			return nil, &apperror.DimensionMissingError{Kind: "ad_group", ExternalID: ""}
		}
		adGroupID, ok := index.AdGroups[*row.AdGroupID]
		if !ok {
			return nil, &apperror.DimensionMissingError{Kind: "ad_group", ExternalID: *row.AdGroupID}
		}
		fact.AdGroupID = &adGroupID
		if level == dto.LevelAd {
			if row.AdID == nil {
				return nil, &apperror.DimensionMissingError{Kind: "ad", ExternalID: ""}
			}
			adID, ok := index.Ads[*row.AdID]
			if !ok {
				return nil, &apperror.DimensionMissingError{Kind: "ad", ExternalID: *row.AdID}
			}
			fact.AdID = &adID
		}
	default:
		return nil, fmt.Errorf("unknown report level %q", level)
	}
	return fact, nil
}
