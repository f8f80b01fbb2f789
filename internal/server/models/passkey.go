package models

import "time"

// PasskeyCredential is a registered WebAuthn public-key credential. It points
// at its owner through UserID only.
type PasskeyCredential struct {
	ID                string
	UserID            string
	CredentialID      []byte
	PublicKey         []byte
	UserHandle        []byte
	SignCount         uint32
	AttestationFormat string
	AAGUID            []byte
	AttestationObject []byte
	ClientDataJSON    []byte
	BackupEligible    bool
	BackedUp          bool
	Transports        []string
	CreatedAt         time.Time
}
