// Package passkeys stores WebAuthn public-key credentials.
package passkeys

import (
	"context"

	"github.com/alprslanymeria/oauthserver/internal/server/models"
)

type Repository interface {
	// Create inserts a credential. A credential id that is already stored
	// for any user yields an error wrapping common.ErrorConflict.
	Create(ctx context.Context, cred *models.PasskeyCredential) error

	GetByCredentialID(ctx context.Context, credentialID []byte) (*models.PasskeyCredential, error)
	ListByUser(ctx context.Context, userID string) ([]*models.PasskeyCredential, error)
	ListByUserHandle(ctx context.Context, userHandle []byte) ([]*models.PasskeyCredential, error)
	ExistsByCredentialID(ctx context.Context, credentialID []byte) (bool, error)

	// UpdateCounter stores the counter and backup state reported by a
	// verified assertion, provided the stored counter still equals
	// expected. Otherwise it returns common.ErrorNotFound.
	UpdateCounter(ctx context.Context, id string, expected, signCount uint32, backedUp bool) error
}
