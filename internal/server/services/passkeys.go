package services

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alprslanymeria/oauthserver/internal/common"
	"github.com/alprslanymeria/oauthserver/internal/logging"
	"github.com/alprslanymeria/oauthserver/internal/server/challenges"
	"github.com/alprslanymeria/oauthserver/internal/server/models"
	"github.com/alprslanymeria/oauthserver/internal/server/repositories/repomanager"
	"github.com/alprslanymeria/oauthserver/internal/server/users"
	"github.com/google/uuid"
)

const (
	attestationKeyPrefix = "fido2:attestation:"
	assertionKeyPrefix   = "fido2:assertion:"

	msgInvalidRegistrationRequest = "Invalid or expired passkey registration request."
	msgInvalidLoginRequest        = "Invalid or expired passkey login request."
	msgUnknownPasskey             = "Unknown passkey credential."
	msgNoPasskeys                 = "No passkey credentials found for this user."
	msgCounterNotIncreased        = "Passkey signature counter did not increase."
	msgPasskeyConcurrentUse       = "Passkey credential was used concurrently."
)

// PasskeyService coordinates the two WebAuthn ceremonies. Each begin step
// caches the ceremony session under a fresh request id for
// common.ChallengeTTL; the matching complete step takes it out of the cache
// before verifying anything, so a request id can be redeemed only once.
type PasskeyService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	cache       challenges.Cache
	verifier    AttestationVerifier
	ledger      *RefreshTokenLedger
	log         logging.Logger
	now         func() time.Time
}

func NewPasskeyService(db *sql.DB, m repomanager.RepositoryManager, cache challenges.Cache, verifier AttestationVerifier,
	ledger *RefreshTokenLedger, log logging.Logger) *PasskeyService {
	return &PasskeyService{
		db:          db,
		repomanager: m,
		cache:       cache,
		verifier:    verifier,
		ledger:      ledger,
		log:         log.With("module", "passkey_service"),
		now:         time.Now,
	}
}

// RegisterBegin starts registering a new passkey for ownerID. The owner's
// existing credentials are excluded so one authenticator is not registered
// twice.
func (s *PasskeyService) RegisterBegin(ctx context.Context, ownerID string) (*models.PasskeyOptionsResponse, error) {
	user, err := findActiveUser(ctx, users.NewDirectory(s.repomanager.Users(s.db)), ownerID)
	if err != nil {
		return nil, err
	}

	existing, err := s.repomanager.Passkeys(s.db).ListByUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("error listing passkeys: %w", err)
	}

	ceremony, err := s.verifier.BeginRegistration(user, existing)
	if err != nil {
		return nil, fmt.Errorf("error starting passkey registration: %w", err)
	}

	return s.park(ctx, attestationKeyPrefix, ceremony)
}

// RegisterComplete verifies the attestation for a registration started by
// RegisterBegin and stores the new credential.
func (s *PasskeyService) RegisterComplete(ctx context.Context, ownerID, requestID string, payload []byte) (*models.PasskeyCredential, error) {
	session, err := s.redeem(ctx, attestationKeyPrefix, requestID, msgInvalidRegistrationRequest)
	if err != nil {
		return nil, err
	}

	user, err := findActiveUser(ctx, users.NewDirectory(s.repomanager.Users(s.db)), ownerID)
	if err != nil {
		return nil, err
	}

	repo := s.repomanager.Passkeys(s.db)
	isUnique := func(ctx context.Context, credentialID []byte) (bool, error) {
		exists, err := repo.ExistsByCredentialID(ctx, credentialID)
		return !exists, err
	}

	cred, err := s.verifier.VerifyRegistration(ctx, session, user, payload, isUnique)
	if err != nil {
		return nil, verificationError("registration", err)
	}

	cred.ID = uuid.NewString()
	cred.UserID = user.ID
	if len(cred.UserHandle) == 0 {
		cred.UserHandle = user.UserHandle()
	}
	cred.CreatedAt = s.now().UTC()

	if err := repo.Create(ctx, cred); err != nil {
		if errors.Is(err, common.ErrorConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("error storing passkey: %w", err)
	}

	s.log.Info(ctx, "passkey registered", "user_id", user.ID, "credential", cred.ID)
	return cred, nil
}

// LoginBegin starts a passkey login. With an email the allow-list is the
// user's credentials; without one any discoverable credential may answer.
func (s *PasskeyService) LoginBegin(ctx context.Context, email string) (*models.PasskeyOptionsResponse, error) {
	var (
		ceremony *Ceremony
		err      error
	)

	if strings.TrimSpace(email) == "" {
		ceremony, err = s.verifier.BeginLogin(nil, nil)
	} else {
		var user *models.User
		user, err = users.NewDirectory(s.repomanager.Users(s.db)).FindByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return nil, common.NotFound(msgUserNotFound)
			}
			return nil, fmt.Errorf("error searching user: %w", err)
		}
		if !user.IsActive {
			return nil, common.Forbidden(msgAccountDeactivated)
		}

		creds, err := s.repomanager.Passkeys(s.db).ListByUser(ctx, user.ID)
		if err != nil {
			return nil, fmt.Errorf("error listing passkeys: %w", err)
		}
		if len(creds) == 0 {
			return nil, common.NotFound(msgNoPasskeys)
		}

		ceremony, err = s.verifier.BeginLogin(user, creds)
	}
	if err != nil {
		return nil, fmt.Errorf("error starting passkey login: %w", err)
	}

	return s.park(ctx, assertionKeyPrefix, ceremony)
}

// LoginComplete verifies an assertion, advances the credential's signature
// counter and returns a token pair for its owner.
func (s *PasskeyService) LoginComplete(ctx context.Context, requestID string, payload []byte) (*models.TokenResponse, error) {
	session, err := s.redeem(ctx, assertionKeyPrefix, requestID, msgInvalidLoginRequest)
	if err != nil {
		return nil, err
	}

	repo := s.repomanager.Passkeys(s.db)

	lookup := func(ctx context.Context, credentialID []byte) (*models.PasskeyCredential, error) {
		cred, err := repo.GetByCredentialID(ctx, credentialID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return nil, common.Unauthorized(msgUnknownPasskey)
			}
			return nil, err
		}
		return cred, nil
	}

	isOwner := func(ctx context.Context, userHandle, credentialID []byte) (bool, error) {
		owned, err := repo.ListByUserHandle(ctx, userHandle)
		if err != nil {
			return false, err
		}
		for _, c := range owned {
			if bytes.Equal(c.CredentialID, credentialID) {
				return true, nil
			}
		}
		return false, nil
	}

	verified, err := s.verifier.VerifyAssertion(ctx, session, payload, lookup, isOwner)
	if err != nil {
		return nil, verificationError("assertion", err)
	}

	stored := verified.Credential
	if stored.SignCount != 0 && verified.SignCount <= stored.SignCount {
		s.log.Warn(ctx, "passkey counter did not increase, possible cloned authenticator",
			"credential", stored.ID, "stored", stored.SignCount, "presented", verified.SignCount)
		return nil, common.Unauthorized(msgCounterNotIncreased)
	}

	if err := repo.UpdateCounter(ctx, stored.ID, stored.SignCount, verified.SignCount, verified.BackedUp); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.Unauthorized(msgPasskeyConcurrentUse)
		}
		return nil, fmt.Errorf("error updating passkey counter: %w", err)
	}

	user, err := findActiveUser(ctx, users.NewDirectory(s.repomanager.Users(s.db)), stored.UserID)
	if err != nil {
		return nil, err
	}

	token, err := s.ledger.IssueFor(ctx, user)
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "user signed in", "user_id", user.ID, "flow", "passkey")
	return token, nil
}

func (s *PasskeyService) park(ctx context.Context, prefix string, c *Ceremony) (*models.PasskeyOptionsResponse, error) {
	requestID := strings.ReplaceAll(uuid.NewString(), "-", "")

	if err := s.cache.Set(ctx, prefix+requestID, c.Session, common.ChallengeTTL); err != nil {
		return nil, fmt.Errorf("error caching ceremony: %w", err)
	}

	return &models.PasskeyOptionsResponse{RequestID: requestID, Options: c.Options}, nil
}

// redeem takes the cached session out of the cache. Missing and expired
// entries look the same to the caller.
func (s *PasskeyService) redeem(ctx context.Context, prefix, requestID, msg string) ([]byte, error) {
	if requestID == "" {
		return nil, common.Business(msg)
	}

	session, err := s.cache.Take(ctx, prefix+requestID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.Business(msg)
		}
		return nil, fmt.Errorf("error reading ceremony: %w", err)
	}
	return session, nil
}

// verificationError passes taxonomy errors through and wraps the rest.
func verificationError(step string, err error) error {
	if common.Kind(err) != common.ErrorInternal {
		return err
	}
	return fmt.Errorf("error verifying passkey %s: %w", step, err)
}
