package usecase

import (
	"context"
	"fmt"
	"time"

	"ads-sync/domain/apperror"
	"ads-sync/domain/dto"
	"ads-sync/domain/model"
	"ads-sync/domain/repository"
	"ads-sync/infrastructure/logger"
)

type IReportingUsecase interface {
	GetAccountSummary(ctx context.Context, adAccountID string, start, end time.Time) (*dto.AccountSummary, error)
}

type reportingUsecase struct {
	accounts repository.IAdAccount
	facts    repository.IMetricsFact
	cache    repository.IAggregateCache
	ttl      time.Duration
}

// NewReportingUsecase accepts a nil cache.
func NewReportingUsecase(accounts repository.IAdAccount, facts repository.IMetricsFact, cache repository.IAggregateCache, ttl time.Duration) IReportingUsecase {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &reportingUsecase{accounts: accounts, facts: facts, cache: cache, ttl: ttl}
}

func (u *reportingUsecase) GetAccountSummary(ctx context.Context, adAccountID string, start, end time.Time) (*dto.AccountSummary, error) {
	dr := model.NewDateRange(start, end)
	if !dr.Valid() {
		return nil, fmt.Errorf("%w: %s", apperror.ErrInvalidRange, dr)
	}
	if _, err := u.accounts.GetByID(ctx, adAccountID); err != nil {
		return nil, err
	}
	log := logger.GetLogger().WithField("account_id", adAccountID).WithField("range", dr.String())
	key := "summary:" + dr.String()

	if u.cache != nil {
		var cached dto.AccountSummary
		hit, err := u.cache.Get(ctx, adAccountID, key, &cached)
		if err != nil {
			log.WithField("error", err).Warn("Error while reading aggregate cache")
		} else if hit {
			cached.Cached = true
			return &cached, nil
		}
	}

	totals, campaigns, err := u.facts.Aggregate(ctx, adAccountID, dr)
	if err != nil {
		return nil, fmt.Errorf("aggregate facts: %w", err)
	}
	if campaigns == nil {
		campaigns = []dto.CampaignSummary{}
	}
	summary := &dto.AccountSummary{
		AdAccountID: adAccountID,
		StartDate:   dr.Start.Format(model.DateLayout),
		EndDate:     dr.End.Format(model.DateLayout),
		Totals:      totals,
		Campaigns:   campaigns,
	}
	if u.cache != nil {
		if err := u.cache.Set(ctx, adAccountID, key, summary, u.ttl); err != nil {
			log.WithField("error", err).Warn("Error while writing aggregate cache")
		}
	}
	return summary, nil
}
