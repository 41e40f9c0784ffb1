package persistence

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"ads-sync/domain/apperror"
	"ads-sync/domain/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

var connectionRowColumns = []string{"id", "organization_id", "provider", "access_token_enc", "refresh_token_enc", "expires_at",
	"status", "last_error", "account_email", "scopes", "version", "created_at", "updated_at"}

func TestConnectionRepository_GetByID(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewConnectionRepository(db)

	expires := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM connections WHERE id=$1`)).
		WithArgs("conn-1").
		WillReturnRows(sqlmock.NewRows(connectionRowColumns).
			AddRow("conn-1", "org-1", model.ProviderGoogleAds, "enc-a", "enc-r", expires, "EXPIRED", "invalid_grant", "ads@example.com", "adwords", 4, expires, expires))

	conn, err := repo.GetByID(context.Background(), "conn-1")
	require.NoError(t, err)
	require.Equal(t, model.ConnectionExpired, conn.Status)
	require.NotNil(t, conn.LastError)
	require.Equal(t, "invalid_grant", *conn.LastError)
	require.Equal(t, int64(4), conn.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConnectionRepository_GetByID_NotFound(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewConnectionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM connections WHERE id=$1`)).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(connectionRowColumns))

	_, err := repo.GetByID(context.Background(), "missing")
	require.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestConnectionRepository_Upsert(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewConnectionRepository(db)

	created := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`ON CONFLICT (organization_id, provider) DO UPDATE SET`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "version", "created_at"}).AddRow("conn-existing", 3, created))

	conn := &model.Connection{OrganizationID: "org-1", Provider: model.ProviderGoogleAds, AccessTokenEnc: "a", RefreshTokenEnc: "r"}
	require.NoError(t, repo.Upsert(context.Background(), conn))
	require.Equal(t, "conn-existing", conn.ID)
	require.Equal(t, int64(3), conn.Version)
	require.Equal(t, created, conn.CreatedAt)
	require.Equal(t, model.ConnectionActive, conn.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConnectionRepository_UpdateTokens(t *testing.T) {
	expires := time.Date(2024, 1, 1, 13, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{name: "version matches", affected: 1, want: true},
		{name: "lost the race", affected: 0, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newSQLMock(t)
			repo := NewConnectionRepository(db)

			mock.ExpectExec(regexp.QuoteMeta(`WHERE id=$5 AND version=$6`)).
				WithArgs("enc-new", sqlmock.AnyArg(), expires, sqlmock.AnyArg(), "conn-1", int64(7)).
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			ok, err := repo.UpdateTokens(context.Background(), "conn-1", 7, model.TokenUpdate{AccessTokenEnc: "enc-new", ExpiresAt: expires})
			require.NoError(t, err)
			require.Equal(t, tt.want, ok)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestConnectionRepository_MarkExpired(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{name: "version matches", affected: 1, want: true},
		{name: "refreshed meanwhile", affected: 0, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newSQLMock(t)
			repo := NewConnectionRepository(db)

			mock.ExpectExec(regexp.QuoteMeta(`UPDATE connections SET status='EXPIRED'`)).
				WithArgs("invalid_grant", sqlmock.AnyArg(), "conn-1", int64(5)).
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			ok, err := repo.MarkExpired(context.Background(), "conn-1", 5, "invalid_grant")
			require.NoError(t, err)
			require.Equal(t, tt.want, ok)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestConnectionRepository_MarkDisconnected_NotFound(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewConnectionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE connections SET status='DISCONNECTED'`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkDisconnected(context.Background(), "conn-x")
	require.True(t, errors.Is(err, apperror.ErrNotFound))
}
