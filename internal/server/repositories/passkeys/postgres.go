package passkeys

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/alprslanymeria/oauthserver/internal/common"
	"github.com/alprslanymeria/oauthserver/internal/dbx"
	"github.com/alprslanymeria/oauthserver/internal/server/models"
)

const selectCredential = `
		SELECT id, user_id, credential_id, public_key, user_handle, sign_count, attestation_format,
		       aaguid, attestation_object, client_data_json, backup_eligible, backed_up, transports, created_at
		FROM passkey_credentials
	`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, c *models.PasskeyCredential) error {
	query := `
		INSERT INTO passkey_credentials (id, user_id, credential_id, public_key, user_handle, sign_count,
		                                 attestation_format, aaguid, attestation_object, client_data_json,
		                                 backup_eligible, backed_up, transports)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		c.ID, c.UserID, c.CredentialID, c.PublicKey, c.UserHandle, int64(c.SignCount),
		c.AttestationFormat, c.AAGUID, c.AttestationObject, c.ClientDataJSON,
		c.BackupEligible, c.BackedUp, strings.Join(c.Transports, ","),
	).Scan(&c.CreatedAt)
	if err != nil {
		if _, ok := dbx.UniqueViolation(err); ok {
			return common.Conflict("Passkey credential is already registered.")
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByCredentialID(ctx context.Context, credentialID []byte) (*models.PasskeyCredential, error) {
	c, err := scanCredential(r.db.QueryRowContext(ctx, selectCredential+" WHERE credential_id = $1", credentialID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*models.PasskeyCredential, error) {
	return r.list(ctx, selectCredential+" WHERE user_id = $1 ORDER BY created_at", userID)
}

func (r *PostgresRepository) ListByUserHandle(ctx context.Context, userHandle []byte) ([]*models.PasskeyCredential, error) {
	return r.list(ctx, selectCredential+" WHERE user_handle = $1 ORDER BY created_at", userHandle)
}

func (r *PostgresRepository) ExistsByCredentialID(ctx context.Context, credentialID []byte) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM passkey_credentials WHERE credential_id = $1)`
	if err := r.db.QueryRowContext(ctx, query, credentialID).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) UpdateCounter(ctx context.Context, id string, expected, signCount uint32, backedUp bool) error {
	query := `
		UPDATE passkey_credentials
		SET sign_count = $3, backed_up = $4
		WHERE id = $1 AND sign_count = $2
	`
	res, err := r.db.ExecContext(ctx, query, id, int64(expected), int64(signCount), backedUp)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) list(ctx context.Context, query string, arg any) ([]*models.PasskeyCredential, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*models.PasskeyCredential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCredential(s scanner) (*models.PasskeyCredential, error) {
	var (
		c          models.PasskeyCredential
		signCount  int64
		transports string
	)
	err := s.Scan(
		&c.ID, &c.UserID, &c.CredentialID, &c.PublicKey, &c.UserHandle, &signCount, &c.AttestationFormat,
		&c.AAGUID, &c.AttestationObject, &c.ClientDataJSON, &c.BackupEligible, &c.BackedUp, &transports, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.SignCount = uint32(signCount)
	if transports != "" {
		c.Transports = strings.Split(transports, ",")
	}
	return &c, nil
}
