package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ads-sync/domain/apperror"
	"ads-sync/domain/dto"
	"ads-sync/domain/model"
	"ads-sync/domain/repository"
	"ads-sync/infrastructure/logger"

	"github.com/google/uuid"
)

const oauthStateTTL = 10 * time.Minute

var ErrInvalidOAuthState = errors.New("invalid or expired oauth state")

type IConnectionUsecase interface {
	BeginOAuth(ctx context.Context, organizationID, redirectTo string) (string, error)
	CompleteOAuth(ctx context.Context, state, code string) (*model.Connection, string, error)
	Disconnect(ctx context.Context, organizationID, connectionID string) error
}

type connectionUsecase struct {
	connections repository.IConnection
	accounts    repository.IAdAccount
	syncJobs    repository.ISyncJob
	states      repository.IOAuthStateStore
	oauth       repository.IOAuthProvider
	cipher      repository.ICipher
	queue       repository.IJobQueue
	cache       repository.IAggregateCache
	provider    string
	attempts    int
	backoff     time.Duration
}

type ConnectionOptions struct {
	Provider string
	Attempts int
	Backoff  time.Duration
}

func NewConnectionUsecase(connections repository.IConnection, accounts repository.IAdAccount, syncJobs repository.ISyncJob,
	states repository.IOAuthStateStore, oauth repository.IOAuthProvider, cipher repository.ICipher,
	queue repository.IJobQueue, cache repository.IAggregateCache, opts ConnectionOptions) IConnectionUsecase {
	if opts.Provider == "" {
		opts.Provider = model.ProviderGoogleAds
	}
	return &connectionUsecase{
		connections: connections,
		accounts:    accounts,
		syncJobs:    syncJobs,
		states:      states,
		oauth:       oauth,
		cipher:      cipher,
		queue:       queue,
		cache:       cache,
		provider:    opts.Provider,
		attempts:    opts.Attempts,
		backoff:     opts.Backoff,
	}
}

func (u *connectionUsecase) BeginOAuth(ctx context.Context, organizationID, redirectTo string) (string, error) {
	if organizationID == "" {
		return "", errors.New("organization id is required")
	}
	if !localPath(redirectTo) {
		redirectTo = ""
	}
	state := uuid.NewString()
	err := u.states.Save(ctx, state, dto.OAuthState{
		OrganizationID: organizationID,
		RedirectTo:     redirectTo,
		CreatedAt:      time.Now().Unix(),
	}, oauthStateTTL)
	if err != nil {
		return "", fmt.Errorf("save oauth state: %w", err)
	}
	return u.oauth.AuthCodeURL(state), nil
}

// localPath accepts only same-origin absolute paths.
func localPath(p string) bool {
	return strings.HasPrefix(p, "/") && !strings.HasPrefix(p, "//") && !strings.Contains(p, "\\")
}

// CompleteOAuth returns the stored connection and the local path to send the browser to.
func (u *connectionUsecase) CompleteOAuth(ctx context.Context, state, code string) (*model.Connection, string, error) {
	st, err := u.states.Consume(ctx, state)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, "", ErrInvalidOAuthState
	}
	if err != nil {
		return nil, "", fmt.Errorf("consume oauth state: %w", err)
	}

	tok, err := u.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, "", fmt.Errorf("exchange authorization code: %w", err)
	}
	accessEnc, err := u.cipher.Encrypt(tok.AccessToken)
	if err != nil {
		return nil, "", fmt.Errorf("encrypt access token: %w", err)
	}
	refreshEnc, err := u.cipher.Encrypt(tok.RefreshToken)
	if err != nil {
		return nil, "", fmt.Errorf("encrypt refresh token: %w", err)
	}

	conn := &model.Connection{
		OrganizationID:  st.OrganizationID,
		Provider:        u.provider,
		AccessTokenEnc:  accessEnc,
		RefreshTokenEnc: refreshEnc,
		ExpiresAt:       tok.Expiry.UTC(),
		AccountEmail:    tok.Email,
		Scopes:          tok.Scopes,
	}
	if err := u.connections.Upsert(ctx, conn); err != nil {
		return nil, "", fmt.Errorf("save connection: %w", err)
	}

	_, err = u.queue.Enqueue(ctx, model.QueueAccountDiscovery, model.JobOptions{
		ID:   fmt.Sprintf("discovery:%s:%d", conn.ID, conn.Version),
		Name: "discovery",
		Payload: model.DiscoveryPayload{
			ConnectionID:   conn.ID,
			OrganizationID: conn.OrganizationID,
			Provider:       conn.Provider,
		},
		Priority:    model.SyncJobInitial.Priority(),
		Attempts:    u.attempts,
		BackoffBase: u.backoff,
	})
	if err != nil {
		return nil, "", fmt.Errorf("enqueue account discovery: %w", err)
	}

	logger.GetLogger().
		WithField("connection_id", conn.ID).
		WithField("organization_id", conn.OrganizationID).
		Info("Connection linked")
	return conn, st.RedirectTo, nil
}

// Disconnect revokes the grant, clears stored tokens, disables the linked
// accounts and cancels their pending or running sync jobs. A connection of
// another organization reads as not found.
func (u *connectionUsecase) Disconnect(ctx context.Context, organizationID, connectionID string) error {
	conn, err := u.connections.GetByID(ctx, connectionID)
	if err != nil {
		return err
	}
	if organizationID != "" && conn.OrganizationID != organizationID {
		return fmt.Errorf("connection %s: %w", connectionID, apperror.ErrNotFound)
	}
	log := logger.GetLogger().WithField("connection_id", connectionID)

	if conn.RefreshTokenEnc != "" {
		if token, err := u.cipher.Decrypt(conn.RefreshTokenEnc); err != nil {
			log.WithField("error", err).Warn("Error while decrypting token for revocation")
		} else if err := u.oauth.Revoke(ctx, token); err != nil {
			log.WithField("error", err).Warn("Error while revoking provider token")
		}
	}

	if err := u.connections.MarkDisconnected(ctx, connectionID); err != nil {
		return fmt.Errorf("mark disconnected: %w", err)
	}
	accountIDs, err := u.accounts.DisableByConnection(ctx, connectionID)
	if err != nil {
		return fmt.Errorf("disable accounts: %w", err)
	}
	cancelled, err := u.syncJobs.CancelActiveByAccounts(ctx, accountIDs)
	if err != nil {
		return fmt.Errorf("cancel sync jobs: %w", err)
	}
	if u.cache != nil {
		for _, id := range accountIDs {
			if _, err := u.cache.InvalidateAccount(ctx, id); err != nil {
				log.WithField("account_id", id).WithField("error", err).Warn("Error while invalidating aggregate cache")
			}
		}
	}

	log.WithField("accounts", len(accountIDs)).WithField("cancelled_jobs", cancelled).Info("Connection disconnected")
	return nil
}
