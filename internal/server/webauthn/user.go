package webauthn

import (
	"github.com/alprslanymeria/oauthserver/internal/server/models"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// rpUser adapts a local user, or only a user handle during a discoverable
// login, to webauthn.User.
type rpUser struct {
	handle      []byte
	name        string
	displayName string
	credentials []webauthn.Credential
}

func newRPUser(u *models.User, creds []*models.PasskeyCredential) *rpUser {
	name := u.UserName
	if name == "" {
		name = u.Email
	}
	display := u.FirstName
	if display == "" {
		display = name
	}
	return &rpUser{handle: u.UserHandle(), name: name, displayName: display, credentials: toCredentials(creds)}
}

func (u *rpUser) WebAuthnID() []byte                         { return u.handle }
func (u *rpUser) WebAuthnName() string                       { return u.name }
func (u *rpUser) WebAuthnDisplayName() string                { return u.displayName }
func (u *rpUser) WebAuthnCredentials() []webauthn.Credential { return u.credentials }

// WebAuthnIcon satisfies the deprecated webauthn.User method; no icon is sent.
func (u *rpUser) WebAuthnIcon() string { return "" }

func toCredential(c *models.PasskeyCredential) webauthn.Credential {
	transports := make([]protocol.AuthenticatorTransport, 0, len(c.Transports))
	for _, t := range c.Transports {
		transports = append(transports, protocol.AuthenticatorTransport(t))
	}

	return webauthn.Credential{
		ID:              c.CredentialID,
		PublicKey:       c.PublicKey,
		AttestationType: c.AttestationFormat,
		Transport:       transports,
		Flags: webauthn.CredentialFlags{
			BackupEligible: c.BackupEligible,
			BackupState:    c.BackedUp,
		},
		Authenticator: webauthn.Authenticator{
			AAGUID:    c.AAGUID,
			SignCount: c.SignCount,
		},
	}
}

func toCredentials(creds []*models.PasskeyCredential) []webauthn.Credential {
	out := make([]webauthn.Credential, 0, len(creds))
	for _, c := range creds {
		out = append(out, toCredential(c))
	}
	return out
}

func descriptors(creds []*models.PasskeyCredential) []protocol.CredentialDescriptor {
	out := make([]protocol.CredentialDescriptor, 0, len(creds))
	for _, c := range creds {
		cred := toCredential(c)
		out = append(out, cred.Descriptor())
	}
	return out
}
