// Package refreshtokens declares the store behind the refresh token ledger.
// The table holds at most one row per user.
package refreshtokens

import (
	"context"
	"time"

	"github.com/alprslanymeria/oauthserver/internal/server/models"
)

type Repository interface {
	// Upsert stores token as the only refresh token of userID, replacing
	// any previous one in place.
	Upsert(ctx context.Context, userID string, token string, expires time.Time) error

	// Find looks a token up by exact value. Missing tokens yield
	// common.ErrorNotFound; expiry is left to the caller.
	Find(ctx context.Context, token string) (*models.RefreshToken, error)

	// Rotate swaps oldToken for newToken only if oldToken is still present
	// and unexpired at now. Losing the race yields common.ErrorNotFound.
	Rotate(ctx context.Context, oldToken, newToken string, expires, now time.Time) error

	// Delete removes a token; common.ErrorNotFound if it did not exist.
	Delete(ctx context.Context, token string) error
}
