package usecase

import (
	"context"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	"ads-sync/domain/dto"
	"ads-sync/domain/model"
	"ads-sync/infrastructure/persistence"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captured records the value bound to one statement argument.
type captured struct{ value driver.Value }

func (c *captured) Match(v driver.Value) bool {
	c.value = v
	return true
}

func TestReconcile_CampaignRowRoundTripsThroughStore(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	ctx := context.Background()
	day := date("2024-01-01")
	fetched := time.Date(2024, 1, 2, 3, 0, 0, 0, time.UTC)

	for _, table := range []string{"campaigns", "ad_groups", "ads"} {
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT external_id, id FROM ` + table + ` WHERE ad_account_id=$1`)).
			WithArgs("acct-1").
			WillReturnRows(sqlmock.NewRows([]string{"external_id", "id"}))
	}
	mock.ExpectBegin()
	mock.ExpectPrepare(regexp.QuoteMeta(`INSERT INTO campaigns`)).
		ExpectQuery().
		WithArgs(sqlmock.AnyArg(), "acct-1", "c1", "Brand", "ENABLED", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("cid-1"))
	mock.ExpectCommit()

	written := make([]*captured, 13)
	args := make([]driver.Value, len(written))
	for i := range written {
		written[i] = &captured{}
		args[i] = written[i]
	}
	mock.ExpectBegin()
	mock.ExpectPrepare(regexp.QuoteMeta(`INSERT INTO metrics_facts`)).
		ExpectExec().
		WithArgs(args...).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	r := NewReconciler(persistence.NewDimensionRepository(db), persistence.NewMetricsFactRepository(db))
	index, err := r.ReconcileDimensions(ctx, testAccount, &dto.DimensionSet{
		Campaigns: []dto.CampaignDimension{{ExternalID: "c1", Name: "Brand", Status: "ENABLED"}},
	})
	require.NoError(t, err)
	stats, err := r.ReconcileFacts(ctx, testAccount, dto.LevelCampaign,
		[]dto.ReportRow{{Date: day, CampaignID: "c1", Impressions: 100, Clicks: 5}}, index, fetched)
	require.NoError(t, err)
	assert.Equal(t, FactStats{Processed: 1, Written: 1}, stats)

	// the lookup returns whatever the upsert stored
	stored := make([]driver.Value, len(written))
	for i, c := range written {
		stored[i] = c.value
	}
	mock.ExpectQuery(regexp.QuoteMeta(`FROM metrics_facts`)).
		WithArgs(day, model.ProviderGoogleAds, "acct-1", "cid-1", nil, nil).
		WillReturnRows(sqlmock.NewRows([]string{"date", "provider", "ad_account_id", "campaign_id", "ad_group_id", "ad_id",
			"impressions", "clicks", "spend", "conversions", "conversion_value", "source_granularity", "synced_at"}).
			AddRow(stored...))

	fact, err := persistence.NewMetricsFactRepository(db).FindByKey(ctx, model.FactKey{
		Date:        day,
		Provider:    model.ProviderGoogleAds,
		AdAccountID: "acct-1",
		CampaignID:  index.Campaigns["c1"],
	})
	require.NoError(t, err)
	assert.Equal(t, int64(100), fact.Impressions)
	assert.Equal(t, int64(5), fact.Clicks)
	assert.Equal(t, model.GranularityFinal, fact.SourceGranularity)
	assert.Nil(t, fact.AdGroupID)
	assert.Nil(t, fact.AdID)
	require.NoError(t, mock.ExpectationsWereMet())
}
