package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/alprslanymeria/oauthserver/internal/common"
	"github.com/alprslanymeria/oauthserver/internal/dbx"
	"github.com/alprslanymeria/oauthserver/internal/logging"
	"github.com/alprslanymeria/oauthserver/internal/server/models"
	"github.com/alprslanymeria/oauthserver/internal/server/repositories/repomanager"
	"github.com/alprslanymeria/oauthserver/internal/server/users"
)

const (
	// ProviderGoogle is the login provider name recorded for Google users.
	ProviderGoogle = "Google"

	defaultFederatedFirstName = "Google User"
)

// FederatedIdentity is a principal already authenticated by an external
// identity provider.
type FederatedIdentity struct {
	Email   string
	Name    string
	Subject string
	Picture string
}

// FederatedIdentityBinder maps external identities onto local users,
// creating the user on first sight.
type FederatedIdentityBinder struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	ledger      *RefreshTokenLedger
	provider    string
	log         logging.Logger
}

func NewFederatedIdentityBinder(db *sql.DB, m repomanager.RepositoryManager, ledger *RefreshTokenLedger, log logging.Logger) *FederatedIdentityBinder {
	return &FederatedIdentityBinder{db: db, repomanager: m, ledger: ledger, provider: ProviderGoogle, log: log.With("module", "federated_binder")}
}

// BindOrCreate resolves id to a local user by email and issues it a token
// pair. Existing users are not re-linked.
func (b *FederatedIdentityBinder) BindOrCreate(ctx context.Context, id FederatedIdentity) (*models.TokenResponse, error) {
	if strings.TrimSpace(id.Email) == "" || id.Subject == "" {
		return nil, common.Business("Could not retrieve email or user information from the identity provider.")
	}

	dir := users.NewDirectory(b.repomanager.Users(b.db))

	user, err := dir.FindByEmail(ctx, id.Email)
	switch {
	case errors.Is(err, common.ErrorNotFound):
		user, err = b.create(ctx, id)
		var linkErr *linkError
		if errors.Is(err, common.ErrorConflict) && !errors.As(err, &linkErr) {
			// lost a concurrent first login for the same email
			user, err = b.afterConflict(ctx, dir, id.Email, err)
		}
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("error searching user: %w", err)
	}

	if !user.IsActive {
		return nil, common.Forbidden(msgAccountDeactivated)
	}

	token, err := b.ledger.IssueFor(ctx, user)
	if err != nil {
		return nil, err
	}

	b.log.Info(ctx, "user signed in", "user_id", user.ID, "flow", "federated", "provider", b.provider)
	return token, nil
}

// create stores the user and the provider link in one transaction.
func (b *FederatedIdentityBinder) create(ctx context.Context, id FederatedIdentity) (*models.User, error) {
	password, err := randomPassword()
	if err != nil {
		return nil, err
	}

	firstName := id.Name
	if firstName == "" {
		firstName = defaultFederatedFirstName
	}

	candidate := &models.User{
		UserName:       strings.ToLower(strings.TrimSpace(id.Email)),
		Email:          id.Email,
		FirstName:      firstName,
		Picture:        id.Picture,
		IsActive:       true,
		EmailConfirmed: true,
	}

	var created *models.User
	err = dbx.WithTx(ctx, b.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		dir := users.NewDirectory(b.repomanager.Users(tx))

		u, err := dir.Create(ctx, candidate, password)
		if err != nil {
			return err
		}

		if err := dir.LinkExternalLogin(ctx, u, b.provider, id.Subject); err != nil {
			b.log.Error(ctx, "linking external login failed, user creation rolled back",
				"user_id", u.ID, "provider", b.provider, "error", err)
			return &linkError{err: err}
		}

		created = u
		return nil
	})
	if err != nil {
		return nil, err
	}

	b.log.Info(ctx, "federated user created", "user_id", created.ID, "provider", b.provider)
	return created, nil
}

// linkError marks a failure to record the provider link, which must not be
// mistaken for a lost user creation race.
type linkError struct {
	err error
}

func (e *linkError) Error() string { return "error linking external login: " + e.err.Error() }
func (e *linkError) Unwrap() error { return e.err }

func (b *FederatedIdentityBinder) afterConflict(ctx context.Context, dir *users.Directory, email string, conflict error) (*models.User, error) {
	user, err := dir.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, conflict
		}
		return nil, fmt.Errorf("error searching user: %w", err)
	}
	return user, nil
}

// randomPassword satisfies the password policy and is never shown to anyone.
func randomPassword() (string, error) {
	s, err := common.MakeRandHexString(16)
	if err != nil {
		return "", fmt.Errorf("error generating password: %w", err)
	}
	return s + "Ax1!", nil
}
