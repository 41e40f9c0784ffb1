package http

import (
	"context"
	"time"

	"ads-sync/domain/dto"
	"ads-sync/domain/model"

	"github.com/stretchr/testify/mock"
)

type MockSyncOrchestrator struct{ mock.Mock }

func (m *MockSyncOrchestrator) TriggerInitialSync(ctx context.Context, adAccountID string) ([]string, error) {
	args := m.Called(ctx, adAccountID)
	ids, _ := args.Get(0).([]string)
	return ids, args.Error(1)
}

func (m *MockSyncOrchestrator) TriggerDailySync(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockSyncOrchestrator) TriggerIntradaySync(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockSyncOrchestrator) EnqueueManualSync(ctx context.Context, adAccountID string, start, end time.Time) ([]string, error) {
	args := m.Called(ctx, adAccountID, start, end)
	ids, _ := args.Get(0).([]string)
	return ids, args.Error(1)
}

func (m *MockSyncOrchestrator) GetQueueStats(ctx context.Context) (*dto.QueueStatsResponse, error) {
	args := m.Called(ctx)
	stats, _ := args.Get(0).(*dto.QueueStatsResponse)
	return stats, args.Error(1)
}

func (m *MockSyncOrchestrator) GetJob(ctx context.Context, syncJobID string) (*dto.SyncJobDetail, error) {
	args := m.Called(ctx, syncJobID)
	detail, _ := args.Get(0).(*dto.SyncJobDetail)
	return detail, args.Error(1)
}

func (m *MockSyncOrchestrator) CancelJob(ctx context.Context, syncJobID string) (bool, error) {
	args := m.Called(ctx, syncJobID)
	return args.Bool(0), args.Error(1)
}

type MockReportingUsecase struct{ mock.Mock }

func (m *MockReportingUsecase) GetAccountSummary(ctx context.Context, adAccountID string, start, end time.Time) (*dto.AccountSummary, error) {
	args := m.Called(ctx, adAccountID, start, end)
	summary, _ := args.Get(0).(*dto.AccountSummary)
	return summary, args.Error(1)
}

type MockConnectionUsecase struct{ mock.Mock }

func (m *MockConnectionUsecase) BeginOAuth(ctx context.Context, organizationID, redirectTo string) (string, error) {
	args := m.Called(ctx, organizationID, redirectTo)
	return args.String(0), args.Error(1)
}

func (m *MockConnectionUsecase) CompleteOAuth(ctx context.Context, state, code string) (*model.Connection, string, error) {
	args := m.Called(ctx, state, code)
	conn, _ := args.Get(0).(*model.Connection)
	return conn, args.String(1), args.Error(2)
}

func (m *MockConnectionUsecase) Disconnect(ctx context.Context, organizationID, connectionID string) error {
	return m.Called(ctx, organizationID, connectionID).Error(0)
}
