// Package users declares the user record store used by the user directory.
package users

import (
	"context"

	"github.com/alprslanymeria/oauthserver/internal/server/models"
)

// MsgLoginLinkedElsewhere is returned when an external account already
// belongs to another user.
const MsgLoginLinkedElsewhere = "External login is already linked to another account."

type Repository interface {
	// Create inserts user. A duplicate user name, email or phone number
	// yields an error wrapping common.ErrorConflict.
	Create(ctx context.Context, user *models.User) (*models.User, error)
	Update(ctx context.Context, user *models.User) error

	// The Get* lookups return common.ErrorNotFound when nothing matches.
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByUserName(ctx context.Context, userName string) (*models.User, error)
	GetByPhone(ctx context.Context, phone string) (*models.User, error)

	// AddLogin links an external provider account. Linking the same
	// provider account to the same user twice is a no-op; linking it to a
	// different user yields common.ErrorConflict.
	AddLogin(ctx context.Context, login models.UserLogin) error
}
