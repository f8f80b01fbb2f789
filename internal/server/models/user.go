// Package models defines the server-side records and the response shapes
// handed to transports.
package models

import "time"

type User struct {
	ID             string
	UserName       string
	Email          string
	PhoneNumber    string
	FirstName      string
	Picture        string
	PasswordHash   string
	IsActive       bool
	EmailConfirmed bool
	PhoneConfirmed bool
	CreatedAt      time.Time
}

// Verified reports whether at least one contact channel was confirmed.
func (u *User) Verified() bool {
	return u.EmailConfirmed || u.PhoneConfirmed
}

// UserHandle is the opaque WebAuthn user handle for u.
func (u *User) UserHandle() []byte {
	return []byte(u.ID)
}

// UserLogin links a user to an external identity provider account.
type UserLogin struct {
	Provider    string
	ProviderKey string
	UserID      string
}
