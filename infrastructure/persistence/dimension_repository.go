package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ads-sync/domain/model"

	"github.com/google/uuid"
)

type DimensionRepository struct{ db *sql.DB }

func NewDimensionRepository(db *sql.DB) *DimensionRepository { return &DimensionRepository{db: db} }

const (
	upsertCampaignSQL = `INSERT INTO campaigns (id, ad_account_id, external_id, name, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$6)
		ON CONFLICT (ad_account_id, external_id) DO UPDATE SET
			name=EXCLUDED.name,
			status=EXCLUDED.status,
			updated_at=EXCLUDED.updated_at
		RETURNING id`
	upsertAdGroupSQL = `INSERT INTO ad_groups (id, ad_account_id, campaign_id, external_id, name, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$7)
		ON CONFLICT (ad_account_id, external_id) DO UPDATE SET
			campaign_id=EXCLUDED.campaign_id,
			name=EXCLUDED.name,
			status=EXCLUDED.status,
			updated_at=EXCLUDED.updated_at
		RETURNING id`
	upsertAdSQL = `INSERT INTO ads (id, ad_account_id, ad_group_id, external_id, name, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$7)
		ON CONFLICT (ad_account_id, external_id) DO UPDATE SET
			ad_group_id=EXCLUDED.ad_group_id,
			name=EXCLUDED.name,
			status=EXCLUDED.status,
			updated_at=EXCLUDED.updated_at
		RETURNING id`
)

// UpsertCampaigns writes every campaign in one transaction and sets the warehouse ID on each element.
func (r *DimensionRepository) UpsertCampaigns(ctx context.Context, campaigns []model.Campaign) error {
	if len(campaigns) == 0 {
		return nil
	}
	now := time.Now().UTC()
	return r.withPrepared(ctx, upsertCampaignSQL, func(stmt *sql.Stmt) error {
		for i := range campaigns {
			c := &campaigns[i]
			if c.ID == "" {
				c.ID = uuid.NewString()
			}
			c.UpdatedAt = now
			if err := stmt.QueryRowContext(ctx, c.ID, c.AdAccountID, c.ExternalID, c.Name, string(c.Status), now).Scan(&c.ID); err != nil {
				return fmt.Errorf("upsert campaign %s: %w", c.ExternalID, err)
			}
		}
		return nil
	})
}

func (r *DimensionRepository) UpsertAdGroups(ctx context.Context, adGroups []model.AdGroup) error {
	if len(adGroups) == 0 {
		return nil
	}
	now := time.Now().UTC()
	return r.withPrepared(ctx, upsertAdGroupSQL, func(stmt *sql.Stmt) error {
		for i := range adGroups {
			g := &adGroups[i]
			if g.ID == "" {
				g.ID = uuid.NewString()
			}
			g.UpdatedAt = now
			if err := stmt.QueryRowContext(ctx, g.ID, g.AdAccountID, g.CampaignID, g.ExternalID, g.Name, string(g.Status), now).Scan(&g.ID); err != nil {
				return fmt.Errorf("upsert ad group %s: %w", g.ExternalID, err)
			}
		}
		return nil
	})
}

func (r *DimensionRepository) UpsertAds(ctx context.Context, ads []model.Ad) error {
	if len(ads) == 0 {
		return nil
	}
	now := time.Now().UTC()
	return r.withPrepared(ctx, upsertAdSQL, func(stmt *sql.Stmt) error {
		for i := range ads {
			a := &ads[i]
			if a.ID == "" {
				a.ID = uuid.NewString()
			}
			a.UpdatedAt = now
			if err := stmt.QueryRowContext(ctx, a.ID, a.AdAccountID, a.AdGroupID, a.ExternalID, a.Name, string(a.Status), now).Scan(&a.ID); err != nil {
				return fmt.Errorf("upsert ad %s: %w", a.ExternalID, err)
			}
		}
		return nil
	})
}

// LoadIndex maps external ids of every dimension of the account to warehouse ids.
func (r *DimensionRepository) LoadIndex(ctx context.Context, adAccountID string) (*model.DimensionIndex, error) {
	idx := model.NewDimensionIndex()
	tables := []struct {
		name string
		dst  map[string]string
	}{
		{"campaigns", idx.Campaigns},
		{"ad_groups", idx.AdGroups},
		{"ads", idx.Ads},
	}
	for _, t := range tables {
		rows, err := r.db.QueryContext(ctx, `SELECT external_id, id FROM `+t.name+` WHERE ad_account_id=$1`, adAccountID)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", t.name, err)
		}
		for rows.Next() {
			var externalID, id string
			if err := rows.Scan(&externalID, &id); err != nil {
				rows.Close()
				return nil, err
			}
			t.dst[externalID] = id
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return idx, nil
}

func (r *DimensionRepository) withPrepared(ctx context.Context, query string, fn func(stmt *sql.Stmt) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := fn(stmt); err != nil {
		_ = stmt.Close()
		_ = tx.Rollback()
		return err
	}
	_ = stmt.Close()
	return tx.Commit()
}
