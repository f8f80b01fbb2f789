package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/alprslanymeria/oauthserver/internal/common"
	"github.com/alprslanymeria/oauthserver/internal/dbx"
	"github.com/alprslanymeria/oauthserver/internal/server/models"
)

var conflictMessages = map[string]string{
	"users_username_key":     "User name is already taken.",
	"users_email_key":        "Email is already registered.",
	"users_phone_number_key": "Phone number is already registered.",
}

const selectUser = `
		SELECT id, username, email, phone_number, first_name, picture, password_hash,
		       is_active, email_confirmed, phone_confirmed, created_at
		FROM users
	`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query := `
		INSERT INTO users (id, username, email, phone_number, first_name, picture, password_hash,
		                   is_active, email_confirmed, phone_confirmed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`

	err := r.db.QueryRowContext(ctx, query,
		user.ID, user.UserName, nullIfEmpty(user.Email), nullIfEmpty(user.PhoneNumber),
		user.FirstName, user.Picture, user.PasswordHash,
		user.IsActive, user.EmailConfirmed, user.PhoneConfirmed,
	).Scan(&user.CreatedAt)
	if err != nil {
		return nil, mapWriteError(err)
	}

	return user, nil
}

func (r *PostgresRepository) Update(ctx context.Context, user *models.User) error {
	query := `
		UPDATE users
		SET username = $2, email = $3, phone_number = $4, first_name = $5, picture = $6,
		    password_hash = $7, is_active = $8, email_confirmed = $9, phone_confirmed = $10
		WHERE id = $1
	`

	res, err := r.db.ExecContext(ctx, query,
		user.ID, user.UserName, nullIfEmpty(user.Email), nullIfEmpty(user.PhoneNumber),
		user.FirstName, user.Picture, user.PasswordHash,
		user.IsActive, user.EmailConfirmed, user.PhoneConfirmed,
	)
	if err != nil {
		return mapWriteError(err)
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

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.getOne(ctx, selectUser+" WHERE id = $1", id)
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, selectUser+" WHERE email = $1", email)
}

func (r *PostgresRepository) GetByUserName(ctx context.Context, userName string) (*models.User, error) {
	return r.getOne(ctx, selectUser+" WHERE username = $1", userName)
}

func (r *PostgresRepository) GetByPhone(ctx context.Context, phone string) (*models.User, error) {
	return r.getOne(ctx, selectUser+" WHERE phone_number = $1", phone)
}

func (r *PostgresRepository) AddLogin(ctx context.Context, login models.UserLogin) error {
	query := `
		INSERT INTO user_logins (provider, provider_key, user_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (provider, provider_key) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query, login.Provider, login.ProviderKey, login.UserID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n > 0 {
		return nil
	}

	var owner string
	err = r.db.QueryRowContext(ctx,
		`SELECT user_id FROM user_logins WHERE provider = $1 AND provider_key = $2`,
		login.Provider, login.ProviderKey,
	).Scan(&owner)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if owner != login.UserID {
		return common.Conflict(MsgLoginLinkedElsewhere)
	}
	return nil
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg string) (*models.User, error) {
	var (
		user         models.User
		email, phone sql.NullString
	)

	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID, &user.UserName, &email, &phone, &user.FirstName, &user.Picture, &user.PasswordHash,
		&user.IsActive, &user.EmailConfirmed, &user.PhoneConfirmed, &user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	user.Email = email.String
	user.PhoneNumber = phone.String

	return &user, nil
}

func mapWriteError(err error) error {
	if constraint, ok := dbx.UniqueViolation(err); ok {
		msg, known := conflictMessages[constraint]
		if !known {
			msg = "User already exists."
		}
		return common.Conflict(msg)
	}
	return fmt.Errorf("db error: %w", err)
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
