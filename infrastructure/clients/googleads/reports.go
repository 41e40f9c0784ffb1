package googleads

import (
	"context"
	"fmt"

	"ads-sync/domain/dto"
	"ads-sync/domain/model"
)

// Dimension queries include REMOVED entities so their status is carried into
// the warehouse and their historical facts still resolve.
const (
	customerQuery = `SELECT customer.id, customer.descriptive_name, customer.currency_code, customer.time_zone, customer.manager FROM customer LIMIT 1`
	campaignQuery = `SELECT campaign.id, campaign.name, campaign.status FROM campaign`
	adGroupQuery  = `SELECT ad_group.id, ad_group.name, ad_group.status, campaign.id FROM ad_group`
	adQuery       = `SELECT ad_group_ad.ad.id, ad_group_ad.ad.name, ad_group_ad.status, ad_group.id FROM ad_group_ad`

	metricFields = `segments.date, metrics.impressions, metrics.clicks, metrics.cost_micros, metrics.conversions, metrics.conversions_value`
)

const microsPerUnit = 1_000_000

func (c *Client) FetchCampaigns(ctx context.Context, account *model.AdAccount) ([]dto.CampaignDimension, error) {
	rows, err := c.Search(ctx, account.ConnectionID, account.ExternalID, campaignQuery)
	if err != nil {
		return nil, fmt.Errorf("fetch campaigns: %w", err)
	}
	campaigns := make([]dto.CampaignDimension, 0, len(rows))
	for _, r := range rows {
		if r.Campaign == nil {
			continue
		}
		campaigns = append(campaigns, dto.CampaignDimension{ExternalID: r.Campaign.ID, Name: r.Campaign.Name, Status: r.Campaign.Status})
	}
	return campaigns, nil
}

func (c *Client) FetchAdGroups(ctx context.Context, account *model.AdAccount) ([]dto.AdGroupDimension, error) {
	rows, err := c.Search(ctx, account.ConnectionID, account.ExternalID, adGroupQuery)
	if err != nil {
		return nil, fmt.Errorf("fetch ad groups: %w", err)
	}
	groups := make([]dto.AdGroupDimension, 0, len(rows))
	for _, r := range rows {
		if r.AdGroup == nil || r.Campaign == nil {
			continue
		}
		groups = append(groups, dto.AdGroupDimension{
			ExternalID:         r.AdGroup.ID,
			CampaignExternalID: r.Campaign.ID,
			Name:               r.AdGroup.Name,
			Status:             r.AdGroup.Status,
		})
	}
	return groups, nil
}

func (c *Client) FetchAds(ctx context.Context, account *model.AdAccount) ([]dto.AdDimension, error) {
	rows, err := c.Search(ctx, account.ConnectionID, account.ExternalID, adQuery)
	if err != nil {
		return nil, fmt.Errorf("fetch ads: %w", err)
	}
	ads := make([]dto.AdDimension, 0, len(rows))
	for _, r := range rows {
		if r.AdGroupAd == nil || r.AdGroup == nil {
			continue
		}
		ads = append(ads, dto.AdDimension{
			ExternalID:        r.AdGroupAd.Ad.ID,
			AdGroupExternalID: r.AdGroup.ID,
			Name:              r.AdGroupAd.Ad.Name,
			Status:            r.AdGroupAd.Status,
		})
	}
	return ads, nil
}

func (c *Client) FetchDimensions(ctx context.Context, account *model.AdAccount) (*dto.DimensionSet, error) {
	campaigns, err := c.FetchCampaigns(ctx, account)
	if err != nil {
		return nil, err
	}
	adGroups, err := c.FetchAdGroups(ctx, account)
	if err != nil {
		return nil, err
	}
	ads, err := c.FetchAds(ctx, account)
	if err != nil {
		return nil, err
	}
	return &dto.DimensionSet{Campaigns: campaigns, AdGroups: adGroups, Ads: ads}, nil
}

// FetchMetrics returns daily rows of the given level for the inclusive date range.
func (c *Client) FetchMetrics(ctx context.Context, account *model.AdAccount, level dto.ReportLevel, r model.DateRange) ([]dto.ReportRow, error) {
	query, err := metricsQuery(level, r)
	if err != nil {
		return nil, err
	}
	rows, err := c.Search(ctx, account.ConnectionID, account.ExternalID, query)
	if err != nil {
		return nil, fmt.Errorf("fetch %s metrics: %w", level, err)
	}

	out := make([]dto.ReportRow, 0, len(rows))
	for _, row := range rows {
		rr, ok := normalizeRow(level, row)
		if !ok {
			continue
		}
		out = append(out, rr)
	}
	return out, nil
}

func metricsQuery(level dto.ReportLevel, r model.DateRange) (string, error) {
	where := fmt.Sprintf("segments.date BETWEEN '%s' AND '%s'", r.Start.Format(model.DateLayout), r.End.Format(model.DateLayout))
	switch level {
	case dto.LevelCampaign:
		return fmt.Sprintf("SELECT campaign.id, campaign.name, %s FROM campaign WHERE %s", metricFields, where), nil
	case dto.LevelAdGroup:
		return fmt.Sprintf("SELECT campaign.id, campaign.name, ad_group.id, ad_group.name, %s FROM ad_group WHERE %s", metricFields, where), nil
	case dto.LevelAd:
		return fmt.Sprintf("SELECT campaign.id, campaign.name, ad_group.id, ad_group.name, ad_group_ad.ad.id, ad_group_ad.ad.name, %s FROM ad_group_ad WHERE %s", metricFields, where), nil
	default:
		return "", fmt.Errorf("unknown report level %q", level)
	}
}

func normalizeRow(level dto.ReportLevel, row searchRow) (dto.ReportRow, bool) {
	if row.Campaign == nil || row.Segments == nil {
		return dto.ReportRow{}, false
	}
	date, err := model.ParseDate(row.Segments.Date)
	if err != nil {
		return dto.ReportRow{}, false
	}
	rr := dto.ReportRow{
		Date:         date,
		CampaignID:   row.Campaign.ID,
		CampaignName: row.Campaign.Name,
	}
	if level == dto.LevelAdGroup || level == dto.LevelAd {
		if row.AdGroup == nil {
			return dto.ReportRow{}, false
		}
		rr.AdGroupID = strPtr(row.AdGroup.ID)
		rr.AdGroupName = strPtr(row.AdGroup.Name)
	}
	if level == dto.LevelAd {
		if row.AdGroupAd == nil {
			return dto.ReportRow{}, false
		}
		rr.AdID = strPtr(row.AdGroupAd.Ad.ID)
		rr.AdName = strPtr(row.AdGroupAd.Ad.Name)
	}
	if m := row.Metrics; m != nil {
		rr.Impressions = m.Impressions
		rr.Clicks = m.Clicks
		rr.Cost = float64(m.CostMicros) / microsPerUnit
		rr.Conversions = m.Conversions
		rr.ConversionValue = m.ConversionsValue
	}
	return rr, true
}

func strPtr(s string) *string { return &s }
