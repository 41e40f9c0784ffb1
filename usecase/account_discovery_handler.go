package usecase

import (
	"context"
	"errors"
	"fmt"

	"ads-sync/domain/apperror"
	"ads-sync/domain/model"
	"ads-sync/domain/repository"
	"ads-sync/infrastructure/logger"
	"ads-sync/infrastructure/worker"

	"github.com/goccy/go-json"
)

// IAccountDiscoveryHandler executes account-discovery queue jobs
type IAccountDiscoveryHandler interface {
	Handle(ctx context.Context, job *model.QueueJob, progress worker.ProgressFunc) (*model.SyncResult, error)
}

type accountDiscoveryHandler struct {
	connections  repository.IConnection
	accounts     repository.IAdAccount
	provider     repository.IAdsProvider
	orchestrator ISyncOrchestrator
}

func NewAccountDiscoveryHandler(connections repository.IConnection, accounts repository.IAdAccount,
	provider repository.IAdsProvider, orchestrator ISyncOrchestrator) IAccountDiscoveryHandler {
	return &accountDiscoveryHandler{
		connections:  connections,
		accounts:     accounts,
		provider:     provider,
		orchestrator: orchestrator,
	}
}

// Handle links every account the connection can read and starts an initial
// sync for the ones seen for the first time. Manager accounts hold no metrics.
func (h *accountDiscoveryHandler) Handle(ctx context.Context, job *model.QueueJob, progress worker.ProgressFunc) (*model.SyncResult, error) {
	var payload model.DiscoveryPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, fmt.Errorf("%w: decode discovery payload: %v", apperror.ErrInvalidRange, err)
	}
	log := logger.GetLogger().WithField("job_id", job.ID).WithField("connection_id", payload.ConnectionID)

	conn, err := h.connections.GetByID(ctx, payload.ConnectionID)
	if err != nil {
		return nil, err
	}
	if conn.Status == model.ConnectionDisconnected {
		return nil, fmt.Errorf("%w: connection %s is %s", apperror.ErrConnectionInactive, conn.ID, conn.Status)
	}

	found, err := h.provider.ListAccessibleAccounts(ctx, conn)
	if err != nil {
		return nil, fmt.Errorf("list accessible accounts: %w", err)
	}
	progress(ctx, 50)

	result := &model.SyncResult{}
	for _, a := range found {
		account := &model.AdAccount{
			OrganizationID: conn.OrganizationID,
			ConnectionID:   conn.ID,
			Provider:       conn.Provider,
			ExternalID:     a.ExternalID,
			Name:           a.Name,
			CurrencyCode:   a.CurrencyCode,
			TimeZone:       a.TimeZone,
			IsManager:      a.IsManager,
		}
		created, err := h.accounts.UpsertDiscovered(ctx, account)
		if err != nil {
			return nil, fmt.Errorf("upsert account %s: %w", a.ExternalID, err)
		}
		result.RowsProcessed++
		if !created || account.IsManager {
			continue
		}
		ids, err := h.orchestrator.TriggerInitialSync(ctx, account.ID)
		switch {
		case errors.Is(err, apperror.ErrOverlappingSync):
			log.WithField("account_id", account.ID).Info("Initial sync already in progress")
		case err != nil:
			log.WithField("account_id", account.ID).WithField("error", err).Error("Error while triggering initial sync")
		default:
			log.WithField("account_id", account.ID).WithField("chunks", len(ids)).Info("Initial sync triggered for new account")
		}
	}

	log.WithField("accounts", len(found)).Info("Account discovery finished")
	return result, nil
}
