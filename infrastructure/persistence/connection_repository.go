package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ads-sync/domain/apperror"
	"ads-sync/domain/model"

	"github.com/google/uuid"
)

type ConnectionRepository struct{ db *sql.DB }

func NewConnectionRepository(db *sql.DB) *ConnectionRepository { return &ConnectionRepository{db: db} }

const connectionColumns = `id, organization_id, provider, access_token_enc, refresh_token_enc, expires_at, status, last_error, account_email, scopes, version, created_at, updated_at`

func (r *ConnectionRepository) GetByID(ctx context.Context, id string) (*model.Connection, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+connectionColumns+` FROM connections WHERE id=$1`, id)
	conn := &model.Connection{}
	var lastError sql.NullString
	if err := row.Scan(&conn.ID, &conn.OrganizationID, &conn.Provider, &conn.AccessTokenEnc, &conn.RefreshTokenEnc,
		&conn.ExpiresAt, &conn.Status, &lastError, &conn.AccountEmail, &conn.Scopes, &conn.Version, &conn.CreatedAt, &conn.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("connection %s: %w", id, apperror.ErrNotFound)
		}
		return nil, err
	}
	if lastError.Valid {
		v := lastError.String
		conn.LastError = &v
	}
	return conn, nil
}

// Upsert re-activates an existing (organization, provider) connection with fresh tokens.
func (r *ConnectionRepository) Upsert(ctx context.Context, conn *model.Connection) error {
	now := time.Now().UTC()
	if conn.ID == "" {
		conn.ID = uuid.NewString()
	}
	if conn.CreatedAt.IsZero() {
		conn.CreatedAt = now
	}
	conn.UpdatedAt = now
	conn.Status = model.ConnectionActive
	q := `INSERT INTO connections (id, organization_id, provider, access_token_enc, refresh_token_enc, expires_at, status, last_error, account_email, scopes, version, created_at, updated_at)
		  VALUES ($1,$2,$3,$4,$5,$6,$7,NULL,$8,$9,1,$10,$11)
		  ON CONFLICT (organization_id, provider) DO UPDATE SET
			access_token_enc=EXCLUDED.access_token_enc,
			refresh_token_enc=EXCLUDED.refresh_token_enc,
			expires_at=EXCLUDED.expires_at,
			status=EXCLUDED.status,
			last_error=NULL,
			account_email=EXCLUDED.account_email,
			scopes=EXCLUDED.scopes,
			version=connections.version+1,
			updated_at=EXCLUDED.updated_at
		  RETURNING id, version, created_at`
	return r.db.QueryRowContext(ctx, q, conn.ID, conn.OrganizationID, conn.Provider, conn.AccessTokenEnc, conn.RefreshTokenEnc,
		conn.ExpiresAt, conn.Status, conn.AccountEmail, conn.Scopes, conn.CreatedAt, conn.UpdatedAt).
		Scan(&conn.ID, &conn.Version, &conn.CreatedAt)
}

// UpdateTokens returns false when another refresh already bumped the version.
func (r *ConnectionRepository) UpdateTokens(ctx context.Context, id string, expectedVersion int64, upd model.TokenUpdate) (bool, error) {
	var refresh sql.NullString
	if upd.RefreshTokenEnc != nil {
		refresh = sql.NullString{String: *upd.RefreshTokenEnc, Valid: true}
	}
	res, err := r.db.ExecContext(ctx, `UPDATE connections SET
			access_token_enc=$1,
			refresh_token_enc=COALESCE($2, refresh_token_enc),
			expires_at=$3,
			status='ACTIVE',
			last_error=NULL,
			version=version+1,
			updated_at=$4
		WHERE id=$5 AND version=$6`,
		upd.AccessTokenEnc, refresh, upd.ExpiresAt, time.Now().UTC(), id, expectedVersion)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *ConnectionRepository) MarkExpired(ctx context.Context, id string, expectedVersion int64, reason string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE connections SET status='EXPIRED', last_error=$1, version=version+1, updated_at=$2 WHERE id=$3 AND version=$4`,
		reason, time.Now().UTC(), id, expectedVersion)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *ConnectionRepository) MarkDisconnected(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE connections SET status='DISCONNECTED', access_token_enc='', refresh_token_enc='', version=version+1, updated_at=$1 WHERE id=$2`,
		time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("connection %s: %w", id, apperror.ErrNotFound)
	}
	return nil
}
