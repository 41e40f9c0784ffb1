package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ads-sync/domain/apperror"
	"ads-sync/domain/model"
	"ads-sync/domain/repository"
	"ads-sync/infrastructure/logger"
	"ads-sync/infrastructure/metrics"

	"golang.org/x/sync/singleflight"
)

const DefaultRefreshBuffer = 5 * time.Minute

type credentialVault struct {
	connections repository.IConnection
	cipher      repository.ICipher
	oauth       repository.IOAuthProvider
	buffer      time.Duration
	now         func() time.Time
	refreshes   singleflight.Group
}

// NewCredentialVault returns a vault that refreshes tokens expiring within buffer.
func NewCredentialVault(connections repository.IConnection, cipher repository.ICipher, oauth repository.IOAuthProvider, buffer time.Duration) repository.ICredentialVault {
	if buffer <= 0 {
		buffer = DefaultRefreshBuffer
	}
	return &credentialVault{
		connections: connections,
		cipher:      cipher,
		oauth:       oauth,
		buffer:      buffer,
		now:         time.Now,
	}
}

func (v *credentialVault) GetValidAccessToken(ctx context.Context, connectionID string) (string, error) {
	conn, err := v.connections.GetByID(ctx, connectionID)
	if err != nil {
		return "", err
	}
	if conn.Status == model.ConnectionDisconnected {
		return "", &apperror.AuthError{ConnectionID: connectionID, Err: apperror.ErrConnectionInactive}
	}
	if conn.Status == model.ConnectionActive && v.fresh(conn) {
		return v.cipher.Decrypt(conn.AccessTokenEnc)
	}

	// concurrent callers in this process share one refresh
	token, err, _ := v.refreshes.Do(connectionID, func() (interface{}, error) {
		return v.refresh(ctx, conn)
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

func (v *credentialVault) fresh(conn *model.Connection) bool {
	return conn.ExpiresAt.After(v.now().Add(v.buffer))
}

func (v *credentialVault) refresh(ctx context.Context, conn *model.Connection) (string, error) {
	log := logger.GetLogger().WithField("connection_id", conn.ID)

	refreshToken, err := v.cipher.Decrypt(conn.RefreshTokenEnc)
	if err != nil {
		return v.expire(ctx, conn, fmt.Errorf("decrypt refresh token: %w", err))
	}

	res, err := v.oauth.Refresh(ctx, refreshToken)
	if err != nil {
		metrics.RecordTokenRefresh("failed")
		return v.expire(ctx, conn, err)
	}

	accessEnc, err := v.cipher.Encrypt(res.AccessToken)
	if err != nil {
		return "", err
	}
	upd := model.TokenUpdate{AccessTokenEnc: accessEnc, ExpiresAt: res.Expiry}
	if res.RefreshToken != "" && res.RefreshToken != refreshToken {
		refreshEnc, err := v.cipher.Encrypt(res.RefreshToken)
		if err != nil {
			return "", err
		}
		upd.RefreshTokenEnc = &refreshEnc
	}

	applied, err := v.connections.UpdateTokens(ctx, conn.ID, conn.Version, upd)
	if err != nil {
		return "", fmt.Errorf("persist refreshed token: %w", err)
	}
	if applied {
		metrics.RecordTokenRefresh("refreshed")
		log.Info("Access token refreshed")
		return res.AccessToken, nil
	}

	// another process refreshed first; use its token when it is usable
	metrics.RecordTokenRefresh("lost_race")
	latest, err := v.connections.GetByID(ctx, conn.ID)
	if err != nil {
		return "", err
	}
	if latest.Status == model.ConnectionActive && v.fresh(latest) {
		return v.cipher.Decrypt(latest.AccessTokenEnc)
	}
	log.Warn("Concurrent token refresh left connection without a usable token")
	return res.AccessToken, nil
}

// expire marks conn EXPIRED unless a concurrent refresh already moved its
// version on, in which case the winner's token is returned when still usable.
func (v *credentialVault) expire(ctx context.Context, conn *model.Connection, cause error) (string, error) {
	log := logger.GetLogger().WithField("connection_id", conn.ID)

	applied, err := v.connections.MarkExpired(ctx, conn.ID, conn.Version, cause.Error())
	if err != nil {
		log.WithField("error", err).Error("Error while marking connection expired")
	}
	if err == nil && !applied {
		latest, err := v.connections.GetByID(ctx, conn.ID)
		if err == nil && latest.Status == model.ConnectionActive && v.fresh(latest) {
			metrics.RecordTokenRefresh("lost_race")
			log.WithField("error", cause).Info("Token refresh failed but a concurrent refresh succeeded")
			return v.cipher.Decrypt(latest.AccessTokenEnc)
		}
	}
	log.WithField("error", cause).Warn("Token refresh failed, connection expired")

	var authErr *apperror.AuthError
	if errors.As(cause, &authErr) {
		return "", cause
	}
	return "", &apperror.AuthError{ConnectionID: conn.ID, Err: cause}
}
