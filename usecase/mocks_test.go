package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"ads-sync/domain/dto"
	"ads-sync/domain/model"
	"ads-sync/infrastructure/worker"

	"github.com/stretchr/testify/mock"
)

type MockConnectionRepository struct {
	mock.Mock
}

func (m *MockConnectionRepository) GetByID(ctx context.Context, id string) (*model.Connection, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Connection), args.Error(1)
}

func (m *MockConnectionRepository) Upsert(ctx context.Context, conn *model.Connection) error {
	return m.Called(ctx, conn).Error(0)
}

func (m *MockConnectionRepository) UpdateTokens(ctx context.Context, id string, expectedVersion int64, upd model.TokenUpdate) (bool, error) {
	args := m.Called(ctx, id, expectedVersion, upd)
	return args.Bool(0), args.Error(1)
}

func (m *MockConnectionRepository) MarkExpired(ctx context.Context, id string, expectedVersion int64, reason string) (bool, error) {
	args := m.Called(ctx, id, expectedVersion, reason)
	return args.Bool(0), args.Error(1)
}

func (m *MockConnectionRepository) MarkDisconnected(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

type MockAdAccountRepository struct {
	mock.Mock
}

func (m *MockAdAccountRepository) GetByID(ctx context.Context, id string) (*model.AdAccount, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AdAccount), args.Error(1)
}

func (m *MockAdAccountRepository) ListSyncable(ctx context.Context) ([]model.AdAccount, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.AdAccount), args.Error(1)
}

func (m *MockAdAccountRepository) UpsertDiscovered(ctx context.Context, acct *model.AdAccount) (bool, error) {
	args := m.Called(ctx, acct)
	return args.Bool(0), args.Error(1)
}

func (m *MockAdAccountRepository) UpdateSyncStatus(ctx context.Context, id string, status model.AccountSyncStatus, syncErr *string, syncedAt *time.Time) error {
	return m.Called(ctx, id, status, syncErr, syncedAt).Error(0)
}

func (m *MockAdAccountRepository) DisableByConnection(ctx context.Context, connectionID string) ([]string, error) {
	args := m.Called(ctx, connectionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

type MockSyncJobRepository struct {
	mock.Mock
}

func (m *MockSyncJobRepository) CreateIfNoOverlap(ctx context.Context, job *model.SyncJob, staleBefore time.Time) error {
	return m.Called(ctx, job, staleBefore).Error(0)
}

func (m *MockSyncJobRepository) GetByID(ctx context.Context, id string) (*model.SyncJob, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SyncJob), args.Error(1)
}

func (m *MockSyncJobRepository) MarkRunning(ctx context.Context, id string, staleBefore time.Time) (bool, error) {
	args := m.Called(ctx, id, staleBefore)
	return args.Bool(0), args.Error(1)
}

func (m *MockSyncJobRepository) UpdateProgress(ctx context.Context, id string, progress int) error {
	return m.Called(ctx, id, progress).Error(0)
}

func (m *MockSyncJobRepository) MarkCompleted(ctx context.Context, id string, result model.SyncResult) error {
	return m.Called(ctx, id, result).Error(0)
}

func (m *MockSyncJobRepository) MarkFailed(ctx context.Context, id string, message string) error {
	return m.Called(ctx, id, message).Error(0)
}

func (m *MockSyncJobRepository) MarkRetrying(ctx context.Context, id string, message string) error {
	return m.Called(ctx, id, message).Error(0)
}

func (m *MockSyncJobRepository) Cancel(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockSyncJobRepository) CancelActiveByAccounts(ctx context.Context, accountIDs []string) (int64, error) {
	args := m.Called(ctx, accountIDs)
	return args.Get(0).(int64), args.Error(1)
}

type MockJobQueue struct {
	mock.Mock
}

func (m *MockJobQueue) Enqueue(ctx context.Context, queue string, opts model.JobOptions) (bool, error) {
	args := m.Called(ctx, queue, opts)
	return args.Bool(0), args.Error(1)
}

func (m *MockJobQueue) Dequeue(ctx context.Context, queue string, lease time.Duration) (*model.QueueJob, error) {
	args := m.Called(ctx, queue, lease)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.QueueJob), args.Error(1)
}

func (m *MockJobQueue) Complete(ctx context.Context, queue string, jobID string, result interface{}) error {
	return m.Called(ctx, queue, jobID, result).Error(0)
}

func (m *MockJobQueue) Fail(ctx context.Context, queue string, jobID string, cause error, retryable bool) (bool, error) {
	args := m.Called(ctx, queue, jobID, cause, retryable)
	return args.Bool(0), args.Error(1)
}

func (m *MockJobQueue) UpdateProgress(ctx context.Context, queue string, jobID string, progress int) error {
	return m.Called(ctx, queue, jobID, progress).Error(0)
}

func (m *MockJobQueue) ExtendLease(ctx context.Context, queue string, jobID string) (bool, error) {
	args := m.Called(ctx, queue, jobID)
	return args.Bool(0), args.Error(1)
}

func (m *MockJobQueue) Remove(ctx context.Context, queue string, jobID string) (bool, error) {
	args := m.Called(ctx, queue, jobID)
	return args.Bool(0), args.Error(1)
}

func (m *MockJobQueue) RecoverStalled(ctx context.Context, queue string) (int64, error) {
	args := m.Called(ctx, queue)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockJobQueue) Prune(ctx context.Context, queue string) (int64, error) {
	args := m.Called(ctx, queue)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockJobQueue) Stats(ctx context.Context, queue string) (model.QueueCounts, error) {
	args := m.Called(ctx, queue)
	return args.Get(0).(model.QueueCounts), args.Error(1)
}

type MockSyncLog struct {
	mock.Mock
}

func (m *MockSyncLog) Append(ctx context.Context, entry model.SyncLogEntry) error {
	return m.Called(ctx, entry).Error(0)
}

func (m *MockSyncLog) Recent(ctx context.Context, syncJobID string, limit int64) ([]model.SyncLogEntry, error) {
	args := m.Called(ctx, syncJobID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.SyncLogEntry), args.Error(1)
}

type MockOAuthProvider struct {
	mock.Mock
}

func (m *MockOAuthProvider) AuthCodeURL(state string) string {
	return m.Called(state).String(0)
}

func (m *MockOAuthProvider) Exchange(ctx context.Context, code string) (*dto.OAuthTokenResult, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.OAuthTokenResult), args.Error(1)
}

func (m *MockOAuthProvider) Refresh(ctx context.Context, refreshToken string) (*dto.OAuthTokenResult, error) {
	args := m.Called(ctx, refreshToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.OAuthTokenResult), args.Error(1)
}

func (m *MockOAuthProvider) Revoke(ctx context.Context, token string) error {
	return m.Called(ctx, token).Error(0)
}

type MockAdsProvider struct {
	mock.Mock
}

func (m *MockAdsProvider) ListAccessibleAccounts(ctx context.Context, conn *model.Connection) ([]dto.AccessibleAccount, error) {
	args := m.Called(ctx, conn)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]dto.AccessibleAccount), args.Error(1)
}

func (m *MockAdsProvider) FetchDimensions(ctx context.Context, account *model.AdAccount) (*dto.DimensionSet, error) {
	args := m.Called(ctx, account)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.DimensionSet), args.Error(1)
}

func (m *MockAdsProvider) FetchMetrics(ctx context.Context, account *model.AdAccount, level dto.ReportLevel, r model.DateRange) ([]dto.ReportRow, error) {
	args := m.Called(ctx, account, level, r)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]dto.ReportRow), args.Error(1)
}

type MockDimensionRepository struct {
	mock.Mock
}

func (m *MockDimensionRepository) UpsertCampaigns(ctx context.Context, campaigns []model.Campaign) error {
	return m.Called(ctx, campaigns).Error(0)
}

func (m *MockDimensionRepository) UpsertAdGroups(ctx context.Context, adGroups []model.AdGroup) error {
	return m.Called(ctx, adGroups).Error(0)
}

func (m *MockDimensionRepository) UpsertAds(ctx context.Context, ads []model.Ad) error {
	return m.Called(ctx, ads).Error(0)
}

func (m *MockDimensionRepository) LoadIndex(ctx context.Context, adAccountID string) (*model.DimensionIndex, error) {
	args := m.Called(ctx, adAccountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DimensionIndex), args.Error(1)
}

type MockMetricsFactRepository struct {
	mock.Mock
}

func (m *MockMetricsFactRepository) UpsertFacts(ctx context.Context, facts []model.MetricsFact) (int64, error) {
	args := m.Called(ctx, facts)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockMetricsFactRepository) FindByKey(ctx context.Context, key model.FactKey) (*model.MetricsFact, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.MetricsFact), args.Error(1)
}

func (m *MockMetricsFactRepository) Aggregate(ctx context.Context, adAccountID string, r model.DateRange) (model.MetricsTotals, []dto.CampaignSummary, error) {
	args := m.Called(ctx, adAccountID, r)
	var campaigns []dto.CampaignSummary
	if args.Get(1) != nil {
		campaigns = args.Get(1).([]dto.CampaignSummary)
	}
	return args.Get(0).(model.MetricsTotals), campaigns, args.Error(2)
}

type MockAggregateCache struct {
	mock.Mock
}

func (m *MockAggregateCache) Get(ctx context.Context, adAccountID, key string, dest interface{}) (bool, error) {
	args := m.Called(ctx, adAccountID, key, dest)
	return args.Bool(0), args.Error(1)
}

func (m *MockAggregateCache) Set(ctx context.Context, adAccountID, key string, value interface{}, ttl time.Duration) error {
	return m.Called(ctx, adAccountID, key, value, ttl).Error(0)
}

func (m *MockAggregateCache) InvalidateAccount(ctx context.Context, adAccountID string) (int64, error) {
	args := m.Called(ctx, adAccountID)
	return args.Get(0).(int64), args.Error(1)
}

type MockSyncEventPublisher struct {
	mock.Mock
}

func (m *MockSyncEventPublisher) PublishSyncCompleted(ctx context.Context, event dto.SyncCompletedEvent) error {
	return m.Called(ctx, event).Error(0)
}

type MockOAuthStateStore struct {
	mock.Mock
}

func (m *MockOAuthStateStore) Save(ctx context.Context, state string, payload dto.OAuthState, ttl time.Duration) error {
	return m.Called(ctx, state, payload, ttl).Error(0)
}

func (m *MockOAuthStateStore) Consume(ctx context.Context, state string) (*dto.OAuthState, error) {
	args := m.Called(ctx, state)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.OAuthState), args.Error(1)
}

type MockReconciler struct {
	mock.Mock
}

func (m *MockReconciler) ReconcileDimensions(ctx context.Context, account *model.AdAccount, set *dto.DimensionSet) (*model.DimensionIndex, error) {
	args := m.Called(ctx, account, set)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DimensionIndex), args.Error(1)
}

func (m *MockReconciler) ReconcileFacts(ctx context.Context, account *model.AdAccount, level dto.ReportLevel, rows []dto.ReportRow, index *model.DimensionIndex, fetchedAt time.Time) (FactStats, error) {
	args := m.Called(ctx, account, level, rows, index, fetchedAt)
	return args.Get(0).(FactStats), args.Error(1)
}

type MockSyncOrchestrator struct {
	mock.Mock
}

func (m *MockSyncOrchestrator) TriggerInitialSync(ctx context.Context, adAccountID string) ([]string, error) {
	args := m.Called(ctx, adAccountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
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
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockSyncOrchestrator) GetQueueStats(ctx context.Context) (*dto.QueueStatsResponse, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.QueueStatsResponse), args.Error(1)
}

func (m *MockSyncOrchestrator) GetJob(ctx context.Context, syncJobID string) (*dto.SyncJobDetail, error) {
	args := m.Called(ctx, syncJobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.SyncJobDetail), args.Error(1)
}

func (m *MockSyncOrchestrator) CancelJob(ctx context.Context, syncJobID string) (bool, error) {
	args := m.Called(ctx, syncJobID)
	return args.Bool(0), args.Error(1)
}

// fakeCipher marks ciphertext with a prefix so tests can assert on it.
type fakeCipher struct{}

func (fakeCipher) Encrypt(plaintext string) (string, error) {
	return "enc:" + plaintext, nil
}

func (fakeCipher) Decrypt(ciphertext string) (string, error) {
	if !strings.HasPrefix(ciphertext, "enc:") {
		return "", errors.New("cipher: message authentication failed")
	}
	return strings.TrimPrefix(ciphertext, "enc:"), nil
}

func noProgress(context.Context, int) {}

var _ worker.ProgressFunc = noProgress

func date(s string) time.Time {
	t, err := time.Parse(model.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func strPtr(s string) *string { return &s }
