package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ads-sync/domain/apperror"
	"ads-sync/domain/dto"
	"ads-sync/domain/model"
)

type MetricsFactRepository struct{ db *sql.DB }

func NewMetricsFactRepository(db *sql.DB) *MetricsFactRepository {
	return &MetricsFactRepository{db: db}
}

// A PARTIAL row never replaces a FINAL one; the guarded update affects zero rows instead.
const upsertFactSQL = `INSERT INTO metrics_facts (date, provider, ad_account_id, campaign_id, ad_group_id, ad_id,
		impressions, clicks, spend, conversions, conversion_value, source_granularity, synced_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	ON CONFLICT (date, provider, ad_account_id, campaign_id, COALESCE(ad_group_id, ''), COALESCE(ad_id, '')) DO UPDATE SET
		impressions=EXCLUDED.impressions,
		clicks=EXCLUDED.clicks,
		spend=EXCLUDED.spend,
		conversions=EXCLUDED.conversions,
		conversion_value=EXCLUDED.conversion_value,
		source_granularity=EXCLUDED.source_granularity,
		synced_at=EXCLUDED.synced_at
	WHERE NOT (metrics_facts.source_granularity = 'FINAL' AND EXCLUDED.source_granularity = 'PARTIAL')`

func (r *MetricsFactRepository) UpsertFacts(ctx context.Context, facts []model.MetricsFact) (int64, error) {
	if len(facts) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	stmt, err := tx.PrepareContext(ctx, upsertFactSQL)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	defer stmt.Close()

	var written int64
	for _, f := range facts {
		res, err := stmt.ExecContext(ctx, f.Date, f.Provider, f.AdAccountID, f.CampaignID, nullString(f.AdGroupID), nullString(f.AdID),
			f.Impressions, f.Clicks, f.Spend, f.Conversions, f.ConversionValue, string(f.SourceGranularity), f.SyncedAt)
		if err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("upsert fact %s/%s: %w", f.CampaignID, f.Date.Format(model.DateLayout), err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			_ = tx.Rollback()
			return 0, err
		}
		written += n
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return written, nil
}

func (r *MetricsFactRepository) FindByKey(ctx context.Context, key model.FactKey) (*model.MetricsFact, error) {
	row := r.db.QueryRowContext(ctx, `SELECT date, provider, ad_account_id, campaign_id, ad_group_id, ad_id,
			impressions, clicks, spend, conversions, conversion_value, source_granularity, synced_at
		FROM metrics_facts
		WHERE date=$1 AND provider=$2 AND ad_account_id=$3 AND campaign_id=$4
			AND COALESCE(ad_group_id, '')=COALESCE($5::text, '') AND COALESCE(ad_id, '')=COALESCE($6::text, '')`,
		key.Date, key.Provider, key.AdAccountID, key.CampaignID, nullString(key.AdGroupID), nullString(key.AdID))

	f := &model.MetricsFact{}
	var adGroupID, adID sql.NullString
	var granularity string
	if err := row.Scan(&f.Date, &f.Provider, &f.AdAccountID, &f.CampaignID, &adGroupID, &adID,
		&f.Impressions, &f.Clicks, &f.Spend, &f.Conversions, &f.ConversionValue, &granularity, &f.SyncedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.ErrNotFound
		}
		return nil, err
	}
	f.AdGroupID = stringPtr(adGroupID)
	f.AdID = stringPtr(adID)
	f.SourceGranularity = model.SourceGranularity(granularity)
	return f, nil
}

// Aggregate sums campaign-grain rows only, so ad group and ad rows are not counted twice.
func (r *MetricsFactRepository) Aggregate(ctx context.Context, adAccountID string, dr model.DateRange) (model.MetricsTotals, []dto.CampaignSummary, error) {
	var totals model.MetricsTotals
	rows, err := r.db.QueryContext(ctx, `SELECT f.campaign_id, c.name,
			COALESCE(SUM(f.impressions), 0), COALESCE(SUM(f.clicks), 0), COALESCE(SUM(f.spend), 0),
			COALESCE(SUM(f.conversions), 0), COALESCE(SUM(f.conversion_value), 0)
		FROM metrics_facts f
		JOIN campaigns c ON c.id = f.campaign_id
		WHERE f.ad_account_id=$1 AND f.date BETWEEN $2 AND $3 AND f.ad_group_id IS NULL AND f.ad_id IS NULL
		GROUP BY f.campaign_id, c.name
		ORDER BY SUM(f.spend) DESC, f.campaign_id`, adAccountID, dr.Start, dr.End)
	if err != nil {
		return totals, nil, err
	}
	defer rows.Close()

	campaigns := make([]dto.CampaignSummary, 0)
	for rows.Next() {
		var s dto.CampaignSummary
		if err := rows.Scan(&s.CampaignID, &s.Name, &s.Impressions, &s.Clicks, &s.Spend, &s.Conversions, &s.ConversionValue); err != nil {
			return totals, nil, err
		}
		totals.Impressions += s.Impressions
		totals.Clicks += s.Clicks
		totals.Spend += s.Spend
		totals.Conversions += s.Conversions
		totals.ConversionValue += s.ConversionValue
		campaigns = append(campaigns, s)
	}
	return totals, campaigns, rows.Err()
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
