package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/alprslanymeria/oauthserver/internal/common"
	"github.com/alprslanymeria/oauthserver/internal/dbx"
	"github.com/alprslanymeria/oauthserver/internal/server/models"
	"github.com/alprslanymeria/oauthserver/internal/server/repositories/repomanager"
	"github.com/alprslanymeria/oauthserver/internal/server/users"
)

const (
	msgRefreshTokenNotFound = "Refresh token not found."
	msgUserNotFound         = "User not found."
	msgAccountDeactivated   = "Account is deactivated."
)

// RefreshTokenLedger keeps at most one live refresh token per user and
// rotates it on every use.
type RefreshTokenLedger struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	issuer      TokenIssuer
	now         func() time.Time
}

func NewRefreshTokenLedger(db *sql.DB, m repomanager.RepositoryManager, issuer TokenIssuer) *RefreshTokenLedger {
	return &RefreshTokenLedger{db: db, repomanager: m, issuer: issuer, now: time.Now}
}

// IssueOrRotate stores token as the only refresh token of ownerID,
// overwriting the previous one in place. db may be a transaction.
func (l *RefreshTokenLedger) IssueOrRotate(ctx context.Context, db dbx.DBTX, ownerID string, token *models.TokenResponse) error {
	repo := l.repomanager.RefreshTokens(db)
	if err := repo.Upsert(ctx, ownerID, token.RefreshToken, token.RefreshTokenExpiration); err != nil {
		return fmt.Errorf("error storing refresh token: %w", err)
	}
	return nil
}

// IssueFor mints a token pair for user and records its refresh token.
func (l *RefreshTokenLedger) IssueFor(ctx context.Context, user *models.User) (*models.TokenResponse, error) {
	token, err := l.issuer.IssueUserToken(user)
	if err != nil {
		return nil, fmt.Errorf("error issuing token: %w", err)
	}
	if err := l.IssueOrRotate(ctx, l.db, user.ID, token); err != nil {
		return nil, err
	}
	return token, nil
}

// ConsumeAndRotate redeems a presented refresh code. The code is single
// use: it is swapped for a new one with a compare-and-swap, so of two
// concurrent callers presenting the same code only one succeeds.
func (l *RefreshTokenLedger) ConsumeAndRotate(ctx context.Context, code string) (string, *models.TokenResponse, error) {
	if code == "" {
		return "", nil, common.NotFound(msgRefreshTokenNotFound)
	}

	repo := l.repomanager.RefreshTokens(l.db)
	now := l.now()

	existing, err := repo.Find(ctx, code)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", nil, common.NotFound(msgRefreshTokenNotFound)
		}
		return "", nil, fmt.Errorf("error searching refresh token: %w", err)
	}

	if subtle.ConstantTimeCompare([]byte(existing.Token), []byte(code)) != 1 || !existing.Expires.After(now) {
		return "", nil, common.NotFound(msgRefreshTokenNotFound)
	}

	user, err := findActiveUser(ctx, users.NewDirectory(l.repomanager.Users(l.db)), existing.UserID)
	if err != nil {
		return "", nil, err
	}

	token, err := l.issuer.IssueUserToken(user)
	if err != nil {
		return "", nil, fmt.Errorf("error issuing token: %w", err)
	}

	if err := repo.Rotate(ctx, code, token.RefreshToken, token.RefreshTokenExpiration, now); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", nil, common.NotFound(msgRefreshTokenNotFound)
		}
		return "", nil, fmt.Errorf("error rotating refresh token: %w", err)
	}

	return user.ID, token, nil
}

// Revoke deletes the refresh token matching code.
func (l *RefreshTokenLedger) Revoke(ctx context.Context, code string) error {
	if code == "" {
		return common.NotFound(msgRefreshTokenNotFound)
	}

	if err := l.repomanager.RefreshTokens(l.db).Delete(ctx, code); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.NotFound(msgRefreshTokenNotFound)
		}
		return fmt.Errorf("error deleting refresh token: %w", err)
	}
	return nil
}

// findActiveUser loads a user by id and rejects deactivated accounts.
func findActiveUser(ctx context.Context, dir *users.Directory, id string) (*models.User, error) {
	user, err := dir.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.NotFound(msgUserNotFound)
		}
		return nil, fmt.Errorf("error loading user: %w", err)
	}
	if !user.IsActive {
		return nil, common.Forbidden(msgAccountDeactivated)
	}
	return user, nil
}
