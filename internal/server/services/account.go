package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/alprslanymeria/oauthserver/internal/common"
	"github.com/alprslanymeria/oauthserver/internal/logging"
	"github.com/alprslanymeria/oauthserver/internal/server/repositories/repomanager"
	"github.com/alprslanymeria/oauthserver/internal/server/users"
)

const msgInvalidPassword = "Invalid password."

// AccountService holds self-service operations on the signed-in user's own
// account.
type AccountService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	log         logging.Logger
}

func NewAccountService(db *sql.DB, m repomanager.RepositoryManager, log logging.Logger) *AccountService {
	return &AccountService{db: db, repomanager: m, log: log.With("module", "account_service")}
}

// Deactivate switches the account off after re-checking the password. The
// user keeps their data but can no longer sign in or refresh.
func (s *AccountService) Deactivate(ctx context.Context, userID, password string) error {
	dir := users.NewDirectory(s.repomanager.Users(s.db))

	user, err := findActiveUser(ctx, dir, userID)
	if err != nil {
		return err
	}
	if !dir.VerifyPassword(user, password) {
		return common.Unauthorized(msgInvalidPassword)
	}

	user.IsActive = false
	if err := dir.Update(ctx, user); err != nil {
		return fmt.Errorf("error updating user: %w", err)
	}

	s.log.Info(ctx, "account deactivated", "user_id", user.ID)
	return nil
}
