package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"ads-sync/domain/apperror"
	"ads-sync/domain/dto"
	"ads-sync/domain/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var vaultNow = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func newTestVault(conns *MockConnectionRepository, oauth *MockOAuthProvider) *credentialVault {
	v := NewCredentialVault(conns, fakeCipher{}, oauth, 5*time.Minute).(*credentialVault)
	v.now = func() time.Time { return vaultNow }
	return v
}

func activeConnection(expiresIn time.Duration) *model.Connection {
	return &model.Connection{
		ID:              "conn-1",
		OrganizationID:  "org-1",
		Provider:        model.ProviderGoogleAds,
		AccessTokenEnc:  "enc:old-access",
		RefreshTokenEnc: "enc:refresh-1",
		ExpiresAt:       vaultNow.Add(expiresIn),
		Status:          model.ConnectionActive,
		Version:         3,
	}
}

func TestCredentialVault_ReturnsFreshToken(t *testing.T) {
	conns := new(MockConnectionRepository)
	oauth := new(MockOAuthProvider)
	conns.On("GetByID", mock.Anything, "conn-1").Return(activeConnection(time.Hour), nil)

	token, err := newTestVault(conns, oauth).GetValidAccessToken(context.Background(), "conn-1")

	require.NoError(t, err)
	assert.Equal(t, "old-access", token)
	oauth.AssertNotCalled(t, "Refresh", mock.Anything, mock.Anything)
}

func TestCredentialVault_RefreshesWithinBuffer(t *testing.T) {
	conns := new(MockConnectionRepository)
	oauth := new(MockOAuthProvider)
	conns.On("GetByID", mock.Anything, "conn-1").Return(activeConnection(2*time.Minute), nil)
	oauth.On("Refresh", mock.Anything, "refresh-1").Return(&dto.OAuthTokenResult{
		AccessToken:  "new-access",
		RefreshToken: "refresh-1",
		Expiry:       vaultNow.Add(time.Hour),
	}, nil)
	conns.On("UpdateTokens", mock.Anything, "conn-1", int64(3), model.TokenUpdate{
		AccessTokenEnc: "enc:new-access",
		ExpiresAt:      vaultNow.Add(time.Hour),
	}).Return(true, nil)

	token, err := newTestVault(conns, oauth).GetValidAccessToken(context.Background(), "conn-1")

	require.NoError(t, err)
	assert.Equal(t, "new-access", token)
	conns.AssertExpectations(t)
}

func TestCredentialVault_StoresRotatedRefreshToken(t *testing.T) {
	conns := new(MockConnectionRepository)
	oauth := new(MockOAuthProvider)
	conns.On("GetByID", mock.Anything, "conn-1").Return(activeConnection(-time.Minute), nil)
	oauth.On("Refresh", mock.Anything, "refresh-1").Return(&dto.OAuthTokenResult{
		AccessToken:  "new-access",
		RefreshToken: "refresh-2",
		Expiry:       vaultNow.Add(time.Hour),
	}, nil)
	conns.On("UpdateTokens", mock.Anything, "conn-1", int64(3), mock.MatchedBy(func(u model.TokenUpdate) bool {
		return u.RefreshTokenEnc != nil && *u.RefreshTokenEnc == "enc:refresh-2"
	})).Return(true, nil)

	_, err := newTestVault(conns, oauth).GetValidAccessToken(context.Background(), "conn-1")

	require.NoError(t, err)
	conns.AssertExpectations(t)
}

func TestCredentialVault_RefreshFailureExpiresConnection(t *testing.T) {
	conns := new(MockConnectionRepository)
	oauth := new(MockOAuthProvider)
	conns.On("GetByID", mock.Anything, "conn-1").Return(activeConnection(time.Minute), nil)
	oauth.On("Refresh", mock.Anything, "refresh-1").Return(nil, errors.New("oauth2: invalid_grant"))
	conns.On("MarkExpired", mock.Anything, "conn-1", int64(3), "oauth2: invalid_grant").Return(true, nil)

	_, err := newTestVault(conns, oauth).GetValidAccessToken(context.Background(), "conn-1")

	var authErr *apperror.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "conn-1", authErr.ConnectionID)
	assert.True(t, apperror.IsPermanent(err))
	conns.AssertCalled(t, "MarkExpired", mock.Anything, "conn-1", int64(3), "oauth2: invalid_grant")
	conns.AssertNotCalled(t, "UpdateTokens", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCredentialVault_FailedRefreshKeepsConcurrentWinner(t *testing.T) {
	conns := new(MockConnectionRepository)
	oauth := new(MockOAuthProvider)
	winner := activeConnection(time.Hour)
	winner.AccessTokenEnc = "enc:winner-access"
	winner.RefreshTokenEnc = "enc:refresh-2"
	winner.Version = 4
	conns.On("GetByID", mock.Anything, "conn-1").Return(activeConnection(time.Minute), nil).Once()
	conns.On("GetByID", mock.Anything, "conn-1").Return(winner, nil).Once()
	// the winner rotated the refresh token, so ours is rejected
	oauth.On("Refresh", mock.Anything, "refresh-1").Return(nil, errors.New("oauth2: invalid_grant"))
	conns.On("MarkExpired", mock.Anything, "conn-1", int64(3), "oauth2: invalid_grant").Return(false, nil)

	token, err := newTestVault(conns, oauth).GetValidAccessToken(context.Background(), "conn-1")

	require.NoError(t, err)
	assert.Equal(t, "winner-access", token)
	conns.AssertExpectations(t)
}

func TestCredentialVault_FailedRefreshAfterUnusableWinner(t *testing.T) {
	conns := new(MockConnectionRepository)
	oauth := new(MockOAuthProvider)
	other := activeConnection(time.Minute)
	other.Status = model.ConnectionExpired
	other.Version = 4
	conns.On("GetByID", mock.Anything, "conn-1").Return(activeConnection(time.Minute), nil).Once()
	conns.On("GetByID", mock.Anything, "conn-1").Return(other, nil).Once()
	oauth.On("Refresh", mock.Anything, "refresh-1").Return(nil, errors.New("oauth2: invalid_grant"))
	conns.On("MarkExpired", mock.Anything, "conn-1", int64(3), "oauth2: invalid_grant").Return(false, nil)

	_, err := newTestVault(conns, oauth).GetValidAccessToken(context.Background(), "conn-1")

	var authErr *apperror.AuthError
	require.ErrorAs(t, err, &authErr)
}

func TestCredentialVault_LostRaceUsesWinnerToken(t *testing.T) {
	conns := new(MockConnectionRepository)
	oauth := new(MockOAuthProvider)
	winner := activeConnection(time.Hour)
	winner.AccessTokenEnc = "enc:winner-access"
	winner.Version = 4
	conns.On("GetByID", mock.Anything, "conn-1").Return(activeConnection(time.Minute), nil).Once()
	conns.On("GetByID", mock.Anything, "conn-1").Return(winner, nil).Once()
	oauth.On("Refresh", mock.Anything, "refresh-1").Return(&dto.OAuthTokenResult{
		AccessToken: "loser-access",
		Expiry:      vaultNow.Add(time.Hour),
	}, nil)
	conns.On("UpdateTokens", mock.Anything, "conn-1", int64(3), mock.Anything).Return(false, nil)

	token, err := newTestVault(conns, oauth).GetValidAccessToken(context.Background(), "conn-1")

	require.NoError(t, err)
	assert.Equal(t, "winner-access", token)
}

func TestCredentialVault_ExpiredConnectionRecovers(t *testing.T) {
	conns := new(MockConnectionRepository)
	oauth := new(MockOAuthProvider)
	conn := activeConnection(time.Hour)
	conn.Status = model.ConnectionExpired
	conns.On("GetByID", mock.Anything, "conn-1").Return(conn, nil)
	oauth.On("Refresh", mock.Anything, "refresh-1").Return(&dto.OAuthTokenResult{AccessToken: "new-access", Expiry: vaultNow.Add(time.Hour)}, nil)
	conns.On("UpdateTokens", mock.Anything, "conn-1", int64(3), mock.Anything).Return(true, nil)

	token, err := newTestVault(conns, oauth).GetValidAccessToken(context.Background(), "conn-1")

	require.NoError(t, err)
	assert.Equal(t, "new-access", token)
}

func TestCredentialVault_DisconnectedIsAuthError(t *testing.T) {
	conns := new(MockConnectionRepository)
	oauth := new(MockOAuthProvider)
	conn := activeConnection(time.Hour)
	conn.Status = model.ConnectionDisconnected
	conns.On("GetByID", mock.Anything, "conn-1").Return(conn, nil)

	_, err := newTestVault(conns, oauth).GetValidAccessToken(context.Background(), "conn-1")

	var authErr *apperror.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.ErrorIs(t, err, apperror.ErrConnectionInactive)
}

func TestCredentialVault_UnknownConnection(t *testing.T) {
	conns := new(MockConnectionRepository)
	conns.On("GetByID", mock.Anything, "missing").Return(nil, apperror.ErrNotFound)

	_, err := newTestVault(conns, new(MockOAuthProvider)).GetValidAccessToken(context.Background(), "missing")

	assert.ErrorIs(t, err, apperror.ErrNotFound)
}
