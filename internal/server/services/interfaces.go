package services

import (
	"context"
	"encoding/json"

	"github.com/alprslanymeria/oauthserver/internal/server/models"
)

// TokenIssuer builds bearer credentials. It has no side effects.
type TokenIssuer interface {
	IssueUserToken(user *models.User) (*models.TokenResponse, error)
	IssueClientToken(client *models.Client) (*models.ClientTokenResponse, error)
}

// Notifier delivers account notifications such as verification codes.
type Notifier interface {
	Send(ctx context.Context, n models.Notification) error
}

// Ceremony is the output of a "begin" step: Options go to the browser,
// Session is cached server side until the matching "complete" call.
type Ceremony struct {
	Options json.RawMessage
	Session []byte
}

// VerifiedAssertion is a successfully verified login assertion.
// Credential is the stored credential the assertion was made with.
type VerifiedAssertion struct {
	Credential *models.PasskeyCredential
	SignCount  uint32
	BackedUp   bool
}

// UniquenessPredicate reports whether credentialID is not registered yet
// for any user.
type UniquenessPredicate func(ctx context.Context, credentialID []byte) (bool, error)

// CredentialLookup resolves a stored credential by its credential id.
type CredentialLookup func(ctx context.Context, credentialID []byte) (*models.PasskeyCredential, error)

// OwnershipPredicate reports whether userHandle owns credentialID.
type OwnershipPredicate func(ctx context.Context, userHandle, credentialID []byte) (bool, error)

// AttestationVerifier performs the cryptographic half of the passkey
// ceremonies. Verification failures are returned as common taxonomy errors:
// Conflict for a duplicate credential, BusinessError for a rejected
// attestation and Unauthorized for a rejected assertion, including a
// signature counter that did not increase.
type AttestationVerifier interface {
	BeginRegistration(user *models.User, exclude []*models.PasskeyCredential) (*Ceremony, error)
	// BeginLogin with a nil user starts a discoverable-credential login.
	BeginLogin(user *models.User, allow []*models.PasskeyCredential) (*Ceremony, error)

	VerifyRegistration(ctx context.Context, session []byte, user *models.User, payload []byte, isUnique UniquenessPredicate) (*models.PasskeyCredential, error)
	VerifyAssertion(ctx context.Context, session []byte, payload []byte, lookup CredentialLookup, isOwner OwnershipPredicate) (*VerifiedAssertion, error)
}
