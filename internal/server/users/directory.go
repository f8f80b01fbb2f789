// Package users implements the user directory: authoritative user lookups,
// password checks, validated creation and external login links.
package users

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/alprslanymeria/oauthserver/internal/common"
	"github.com/alprslanymeria/oauthserver/internal/cryptox"
	"github.com/alprslanymeria/oauthserver/internal/server/models"
	usersrepo "github.com/alprslanymeria/oauthserver/internal/server/repositories/users"
	"github.com/google/uuid"
)

type Directory struct {
	repo usersrepo.Repository
}

func NewDirectory(repo usersrepo.Repository) *Directory {
	return &Directory{repo: repo}
}

func (d *Directory) FindByID(ctx context.Context, id string) (*models.User, error) {
	return d.repo.GetByID(ctx, id)
}

func (d *Directory) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return d.repo.GetByEmail(ctx, normalizeEmail(email))
}

func (d *Directory) FindByUserName(ctx context.Context, userName string) (*models.User, error) {
	return d.repo.GetByUserName(ctx, strings.TrimSpace(userName))
}

func (d *Directory) FindByPhone(ctx context.Context, phone string) (*models.User, error) {
	return d.repo.GetByPhone(ctx, strings.TrimSpace(phone))
}

// VerifyPassword reports whether password matches the stored hash. A
// malformed stored hash never matches.
func (d *Directory) VerifyPassword(user *models.User, password string) bool {
	ok, err := cryptox.VerifyPassword(user.PasswordHash, password)
	return err == nil && ok
}

// unknownUserHash is verified against when no user matches a sign-in
// identifier, so that miss costs one key derivation like a wrong password.
var unknownUserHash = sync.OnceValue(func() string {
	return cryptox.HashPassword(uuid.NewString())
})

// RejectUnknown runs the same password derivation as VerifyPassword for an
// identifier that matched no user. It always reports false.
func (d *Directory) RejectUnknown(password string) bool {
	_, _ = cryptox.VerifyPassword(unknownUserHash(), password)
	return false
}

// Create validates user and password, hashes the password and stores the
// user. Every validation problem is reported at once as a business error.
func (d *Directory) Create(ctx context.Context, user *models.User, password string) (*models.User, error) {
	user.Email = normalizeEmail(user.Email)
	user.UserName = strings.TrimSpace(user.UserName)
	user.PhoneNumber = strings.TrimSpace(user.PhoneNumber)

	reasons := validateUser(user)
	reasons = append(reasons, validatePassword(password)...)
	if len(reasons) > 0 {
		return nil, common.Business(reasons...)
	}

	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.PasswordHash = cryptox.HashPassword(password)

	return d.repo.Create(ctx, user)
}

func (d *Directory) Update(ctx context.Context, user *models.User) error {
	if reasons := validateUser(user); len(reasons) > 0 {
		return common.Business(reasons...)
	}
	return d.repo.Update(ctx, user)
}

// LinkExternalLogin records that user is known to provider as externalID.
func (d *Directory) LinkExternalLogin(ctx context.Context, user *models.User, provider, externalID string) error {
	if provider == "" || externalID == "" {
		return errors.New("provider and external id are required")
	}
	return d.repo.AddLogin(ctx, models.UserLogin{Provider: provider, ProviderKey: externalID, UserID: user.ID})
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
