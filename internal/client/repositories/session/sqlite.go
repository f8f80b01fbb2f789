package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/alprslanymeria/oauthserver/internal/common"
	"github.com/alprslanymeria/oauthserver/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Save(ctx context.Context, s *Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO session (id, subject, access_token, access_token_expiration, refresh_token, refresh_token_expiration, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			subject = excluded.subject,
			access_token = excluded.access_token,
			access_token_expiration = excluded.access_token_expiration,
			refresh_token = excluded.refresh_token,
			refresh_token_expiration = excluded.refresh_token_expiration,
			updated_at = excluded.updated_at
	`, s.Subject, s.AccessToken, s.AccessTokenExpiration.UTC(), s.RefreshToken, s.RefreshTokenExpiration.UTC(), s.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Load(ctx context.Context) (*Session, error) {
	var s Session
	err := r.db.QueryRowContext(ctx, `
		SELECT subject, access_token, access_token_expiration, refresh_token, refresh_token_expiration, updated_at
		FROM session WHERE id = 1
	`).Scan(&s.Subject, &s.AccessToken, &s.AccessTokenExpiration, &s.RefreshToken, &s.RefreshTokenExpiration, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return &s, nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM session`); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}
