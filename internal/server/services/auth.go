// Package services holds the credential and session lifecycle logic:
// password sign-in, refresh token rotation, client credentials, federated
// binding and passkey ceremonies.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/alprslanymeria/oauthserver/internal/common"
	"github.com/alprslanymeria/oauthserver/internal/logging"
	"github.com/alprslanymeria/oauthserver/internal/server/models"
	"github.com/alprslanymeria/oauthserver/internal/server/repositories/repomanager"
	"github.com/alprslanymeria/oauthserver/internal/server/users"
)

const (
	msgInvalidCredentials = "Invalid credentials."
	msgMissingIdentifier  = "Please provide either email, username, or phone number."
	msgAccountNotVerified = "Account is not verified. Please verify your email or phone number."
)

// SignInRequest identifies the user by exactly one of Email, UserName or
// PhoneNumber, checked in that order.
type SignInRequest struct {
	Email       string `json:"email,omitempty"`
	UserName    string `json:"userName,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	Password    string `json:"password"`
}

type SignUpRequest struct {
	UserName    string `json:"userName"`
	Email       string `json:"email,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	FirstName   string `json:"firstName,omitempty"`
	Password    string `json:"password"`
}

// AuthService handles password sign-in and sign-up and fronts the refresh
// token ledger.
type AuthService struct {
	db           *sql.DB
	repomanager  repomanager.RepositoryManager
	ledger       *RefreshTokenLedger
	verification *VerificationService
	log          logging.Logger
}

// NewAuthService builds the service. verification may be nil, in which case
// sign-up sends no code.
func NewAuthService(db *sql.DB, m repomanager.RepositoryManager, ledger *RefreshTokenLedger, verification *VerificationService, log logging.Logger) *AuthService {
	return &AuthService{
		db:           db,
		repomanager:  m,
		ledger:       ledger,
		verification: verification,
		log:          log.With("module", "auth_service"),
	}
}

// SignIn verifies a password and returns a fresh token pair, replacing the
// user's previous refresh token.
func (s *AuthService) SignIn(ctx context.Context, req SignInRequest) (*models.TokenResponse, error) {
	dir := users.NewDirectory(s.repomanager.Users(s.db))

	var (
		user *models.User
		err  error
	)
	switch {
	case req.Email != "":
		user, err = dir.FindByEmail(ctx, req.Email)
	case req.UserName != "":
		user, err = dir.FindByUserName(ctx, req.UserName)
	case req.PhoneNumber != "":
		user, err = dir.FindByPhone(ctx, req.PhoneNumber)
	default:
		return nil, common.Business(msgMissingIdentifier)
	}
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			dir.RejectUnknown(req.Password)
			return nil, common.Unauthorized(msgInvalidCredentials)
		}
		return nil, fmt.Errorf("error searching user: %w", err)
	}

	if !dir.VerifyPassword(user, req.Password) {
		return nil, common.Unauthorized(msgInvalidCredentials)
	}
	if !user.IsActive {
		return nil, common.Forbidden(msgAccountDeactivated)
	}
	if !user.Verified() {
		return nil, common.Forbidden(msgAccountNotVerified)
	}

	token, err := s.ledger.IssueFor(ctx, user)
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "user signed in", "user_id", user.ID, "flow", "password")
	return token, nil
}

// Refresh redeems a refresh code for a new token pair.
func (s *AuthService) Refresh(ctx context.Context, code string) (*models.TokenResponse, error) {
	userID, token, err := s.ledger.ConsumeAndRotate(ctx, code)
	if err != nil {
		return nil, err
	}
	s.log.Info(ctx, "refresh token rotated", "user_id", userID)
	return token, nil
}

func (s *AuthService) Revoke(ctx context.Context, code string) error {
	return s.ledger.Revoke(ctx, code)
}

// SignUp creates an active, unconfirmed user and sends a verification code
// to its email, or to its phone number when there is no email. A failed send
// does not undo the sign-up; the user can ask for a new code.
func (s *AuthService) SignUp(ctx context.Context, req SignUpRequest) (*models.User, error) {
	user := &models.User{
		UserName:    req.UserName,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
		FirstName:   req.FirstName,
		IsActive:    true,
	}

	created, err := users.NewDirectory(s.repomanager.Users(s.db)).Create(ctx, user, req.Password)
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "user registered", "user_id", created.ID)

	if s.verification != nil {
		if err := s.verification.sendFor(ctx, created); err != nil {
			s.log.Warn(ctx, "verification code not sent", "user_id", created.ID, "error", err)
		}
	}
	return created, nil
}
