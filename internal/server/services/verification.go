package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/alprslanymeria/oauthserver/internal/common"
	"github.com/alprslanymeria/oauthserver/internal/logging"
	"github.com/alprslanymeria/oauthserver/internal/server/challenges"
	"github.com/alprslanymeria/oauthserver/internal/server/models"
	"github.com/alprslanymeria/oauthserver/internal/server/repositories/repomanager"
	"github.com/alprslanymeria/oauthserver/internal/server/users"
)

const (
	verificationKeyPrefix = "verify:"
	verificationSubject   = "Verify Your Account"

	msgVerificationTargetRequired = "Email or phone number is required."
	msgEmailAlreadyVerified       = "Email is already verified."
	msgPhoneAlreadyVerified       = "Phone number is already verified."
	msgInvalidVerificationCode    = "Invalid or expired verification code."
)

// VerificationTarget names the contact to verify. Email wins when both are
// set.
type VerificationTarget struct {
	Email       string `json:"email,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
}

type VerifyRequest struct {
	VerificationTarget
	Code string `json:"code"`
}

// VerificationService confirms a user's email or phone number with a short
// numeric code. Codes live in the challenge cache for
// common.VerificationCodeTTL and are taken out on the first attempt, right
// or wrong, so every code is single use. Sending a new code replaces the
// previous one.
type VerificationService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	cache       challenges.Cache
	notifier    Notifier
	log         logging.Logger
}

func NewVerificationService(db *sql.DB, m repomanager.RepositoryManager, cache challenges.Cache, notifier Notifier, log logging.Logger) *VerificationService {
	return &VerificationService{
		db:          db,
		repomanager: m,
		cache:       cache,
		notifier:    notifier,
		log:         log.With("module", "verification_service"),
	}
}

// SendCode issues a fresh code for target and hands it to the notifier.
func (s *VerificationService) SendCode(ctx context.Context, target VerificationTarget) error {
	user, channel, err := s.find(ctx, users.NewDirectory(s.repomanager.Users(s.db)), target)
	if err != nil {
		return err
	}
	return s.sendTo(ctx, user, channel)
}

// Verify redeems a code and marks the matching contact as confirmed.
func (s *VerificationService) Verify(ctx context.Context, req VerifyRequest) error {
	dir := users.NewDirectory(s.repomanager.Users(s.db))

	user, channel, err := s.find(ctx, dir, req.VerificationTarget)
	if err != nil {
		return err
	}

	stored, err := s.cache.Take(ctx, verificationKey(channel, user.ID))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.Business(msgInvalidVerificationCode)
		}
		return fmt.Errorf("error loading verification code: %w", err)
	}
	if subtle.ConstantTimeCompare(stored, []byte(strings.TrimSpace(req.Code))) != 1 {
		s.log.Warn(ctx, "verification code mismatch", "user_id", user.ID, "channel", channel)
		return common.Business(msgInvalidVerificationCode)
	}

	if channel == models.ChannelEmail {
		user.EmailConfirmed = true
	} else {
		user.PhoneConfirmed = true
	}
	if err := dir.Update(ctx, user); err != nil {
		return fmt.Errorf("error updating user: %w", err)
	}

	s.log.Info(ctx, "contact verified", "user_id", user.ID, "channel", channel)
	return nil
}

// sendFor sends a code to the first contact of a freshly created user.
func (s *VerificationService) sendFor(ctx context.Context, user *models.User) error {
	channel := models.ChannelEmail
	if user.Email == "" {
		channel = models.ChannelPhone
	}
	return s.sendTo(ctx, user, channel)
}

func (s *VerificationService) sendTo(ctx context.Context, user *models.User, channel string) error {
	var recipient string
	switch channel {
	case models.ChannelEmail:
		if user.EmailConfirmed {
			return common.Conflict(msgEmailAlreadyVerified)
		}
		recipient = user.Email
	default:
		if user.PhoneConfirmed {
			return common.Conflict(msgPhoneAlreadyVerified)
		}
		recipient = user.PhoneNumber
	}

	code, err := common.MakeRandDigits(common.VerificationCodeLength)
	if err != nil {
		return fmt.Errorf("error generating verification code: %w", err)
	}

	if err := s.cache.Set(ctx, verificationKey(channel, user.ID), []byte(code), common.VerificationCodeTTL); err != nil {
		return fmt.Errorf("error storing verification code: %w", err)
	}

	err = s.notifier.Send(ctx, models.Notification{
		Channel:   channel,
		Recipient: recipient,
		Subject:   verificationSubject,
		Body:      "Your verification code is: " + code,
	})
	if err != nil {
		return fmt.Errorf("error sending verification code: %w", err)
	}

	s.log.Info(ctx, "verification code sent", "user_id", user.ID, "channel", channel)
	return nil
}

func (s *VerificationService) find(ctx context.Context, dir *users.Directory, target VerificationTarget) (*models.User, string, error) {
	var (
		user    *models.User
		channel string
		err     error
	)
	switch {
	case strings.TrimSpace(target.Email) != "":
		channel = models.ChannelEmail
		user, err = dir.FindByEmail(ctx, target.Email)
	case strings.TrimSpace(target.PhoneNumber) != "":
		channel = models.ChannelPhone
		user, err = dir.FindByPhone(ctx, target.PhoneNumber)
	default:
		return nil, "", common.Business(msgVerificationTargetRequired)
	}
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, "", common.NotFound(msgUserNotFound)
		}
		return nil, "", fmt.Errorf("error searching user: %w", err)
	}
	return user, channel, nil
}

func verificationKey(channel, userID string) string {
	return verificationKeyPrefix + channel + ":" + userID
}
