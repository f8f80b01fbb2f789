// Package webauthn implements passkey attestation and assertion verification
// on top of github.com/go-webauthn/webauthn.
package webauthn

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/alprslanymeria/oauthserver/internal/common"
	"github.com/alprslanymeria/oauthserver/internal/server/models"
	"github.com/alprslanymeria/oauthserver/internal/server/services"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// Tag selects this verifier in the verifier registry.
const Tag = "webauthn"

const (
	msgRegistrationInvalid  = "Passkey registration could not be verified."
	msgAssertionInvalid     = "Passkey assertion could not be verified."
	msgCredentialRegistered = "Passkey credential is already registered."
	msgCounterNotIncreased  = "Passkey signature counter did not increase."
)

type Config struct {
	RPID             string
	RPDisplayName    string
	RPOrigins        []string
	UserVerification string
}

// Verifier is the go-webauthn backed services.AttestationVerifier.
type Verifier struct {
	wa *webauthn.WebAuthn
	uv protocol.UserVerificationRequirement
}

// session is what gets cached between begin and complete. The allow-list
// is kept outside SessionData because the library requires the asserting
// user to own every listed credential, while the ownership rule here is
// checked per presented credential.
type session struct {
	Data    webauthn.SessionData `json:"data"`
	Allowed [][]byte             `json:"allowed,omitempty"`
}

func New(cfg Config) (*Verifier, error) {
	timeout := webauthn.TimeoutConfig{Enforce: true, Timeout: common.ChallengeTTL, TimeoutUVD: common.ChallengeTTL}

	wa, err := webauthn.New(&webauthn.Config{
		RPID:                  cfg.RPID,
		RPDisplayName:         cfg.RPDisplayName,
		RPOrigins:             cfg.RPOrigins,
		AttestationPreference: protocol.PreferNoAttestation,
		Timeouts:              webauthn.TimeoutsConfig{Login: timeout, Registration: timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create webauthn instance: %w", err)
	}

	uv := protocol.VerificationRequired
	switch cfg.UserVerification {
	case "preferred":
		uv = protocol.VerificationPreferred
	case "discouraged":
		uv = protocol.VerificationDiscouraged
	}

	return &Verifier{wa: wa, uv: uv}, nil
}

// NewRegistry returns every available verifier keyed by its tag.
func NewRegistry(cfg Config) (map[string]services.AttestationVerifier, error) {
	v, err := New(cfg)
	if err != nil {
		return nil, err
	}
	return map[string]services.AttestationVerifier{Tag: v}, nil
}

func (v *Verifier) BeginRegistration(user *models.User, exclude []*models.PasskeyCredential) (*services.Ceremony, error) {
	creation, data, err := v.wa.BeginRegistration(newRPUser(user, nil),
		webauthn.WithExclusions(descriptors(exclude)),
		webauthn.WithAuthenticatorSelection(protocol.AuthenticatorSelection{
			RequireResidentKey: protocol.ResidentKeyRequired(),
			ResidentKey:        protocol.ResidentKeyRequirementRequired,
			UserVerification:   v.uv,
		}),
		webauthn.WithConveyancePreference(protocol.PreferNoAttestation),
		webauthn.WithExtensions(protocol.AuthenticationExtensions{"credProps": true}),
	)
	if err != nil {
		return nil, fmt.Errorf("begin registration: %w", err)
	}

	return ceremony(creation.Response, session{Data: *data})
}

// BeginLogin always starts a discoverable login so the user handle comes
// back in the assertion; with a user the allowed credentials are announced
// to the browser and enforced on verification.
func (v *Verifier) BeginLogin(user *models.User, allow []*models.PasskeyCredential) (*services.Ceremony, error) {
	opts := []webauthn.LoginOption{webauthn.WithUserVerification(v.uv)}
	if user != nil && len(allow) > 0 {
		opts = append(opts, webauthn.WithAllowedCredentials(descriptors(allow)))
	}

	assertion, data, err := v.wa.BeginDiscoverableLogin(opts...)
	if err != nil {
		return nil, fmt.Errorf("begin login: %w", err)
	}

	s := session{Data: *data, Allowed: data.AllowedCredentialIDs}
	s.Data.AllowedCredentialIDs = nil

	return ceremony(assertion.Response, s)
}

func (v *Verifier) VerifyRegistration(ctx context.Context, raw []byte, user *models.User, payload []byte,
	isUnique services.UniquenessPredicate) (*models.PasskeyCredential, error) {
	s, err := decodeSession(raw)
	if err != nil {
		return nil, err
	}

	parsed, err := protocol.ParseCredentialCreationResponseBody(bytes.NewReader(payload))
	if err != nil {
		return nil, common.Business(msgRegistrationInvalid)
	}

	unique, err := isUnique(ctx, parsed.RawID)
	if err != nil {
		return nil, fmt.Errorf("check credential id: %w", err)
	}
	if !unique {
		return nil, common.Conflict(msgCredentialRegistered)
	}

	cred, err := v.wa.CreateCredential(newRPUser(user, nil), s.Data, parsed)
	if err != nil {
		return nil, common.Business(msgRegistrationInvalid)
	}

	transports := make([]string, 0, len(cred.Transport))
	for _, t := range cred.Transport {
		transports = append(transports, string(t))
	}

	return &models.PasskeyCredential{
		CredentialID:      cred.ID,
		PublicKey:         cred.PublicKey,
		UserHandle:        user.UserHandle(),
		SignCount:         cred.Authenticator.SignCount,
		AttestationFormat: parsed.Response.AttestationObject.Format,
		AAGUID:            cred.Authenticator.AAGUID,
		AttestationObject: parsed.Raw.AttestationResponse.AttestationObject,
		ClientDataJSON:    parsed.Raw.AttestationResponse.ClientDataJSON,
		BackupEligible:    cred.Flags.BackupEligible,
		BackedUp:          cred.Flags.BackupState,
		Transports:        transports,
	}, nil
}

func (v *Verifier) VerifyAssertion(ctx context.Context, raw []byte, payload []byte,
	lookup services.CredentialLookup, isOwner services.OwnershipPredicate) (*services.VerifiedAssertion, error) {
	s, err := decodeSession(raw)
	if err != nil {
		return nil, err
	}

	parsed, err := protocol.ParseCredentialRequestResponseBody(bytes.NewReader(payload))
	if err != nil {
		return nil, common.Unauthorized(msgAssertionInvalid)
	}

	stored, err := lookup(ctx, parsed.RawID)
	if err != nil {
		return nil, err
	}

	if len(s.Allowed) > 0 && !containsID(s.Allowed, parsed.RawID) {
		return nil, common.Unauthorized(msgAssertionInvalid)
	}

	// The handler cannot take a context or return taxonomy errors through
	// the library, so its failure is kept here.
	var handlerErr error
	handler := func(rawID, userHandle []byte) (webauthn.User, error) {
		owned, err := isOwner(ctx, userHandle, rawID)
		if err != nil {
			handlerErr = fmt.Errorf("check credential owner: %w", err)
			return nil, handlerErr
		}
		if !owned {
			handlerErr = common.Unauthorized(msgAssertionInvalid)
			return nil, handlerErr
		}
		return &rpUser{handle: userHandle, credentials: []webauthn.Credential{toCredential(stored)}}, nil
	}

	cred, err := v.wa.ValidateDiscoverableLogin(handler, s.Data, parsed)
	if err != nil {
		if handlerErr != nil {
			return nil, handlerErr
		}
		return nil, common.Unauthorized(msgAssertionInvalid)
	}

	if cred.Authenticator.CloneWarning {
		return nil, common.Unauthorized(msgCounterNotIncreased)
	}

	return &services.VerifiedAssertion{
		Credential: stored,
		SignCount:  cred.Authenticator.SignCount,
		BackedUp:   cred.Flags.BackupState,
	}, nil
}

func ceremony(options any, s session) (*services.Ceremony, error) {
	opts, err := json.Marshal(options)
	if err != nil {
		return nil, fmt.Errorf("encode options: %w", err)
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	return &services.Ceremony{Options: opts, Session: raw}, nil
}

func decodeSession(raw []byte) (*session, error) {
	var s session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &s, nil
}

func containsID(ids [][]byte, id []byte) bool {
	for _, x := range ids {
		if bytes.Equal(x, id) {
			return true
		}
	}
	return false
}
