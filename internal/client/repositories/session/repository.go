// Package session persists the CLI's current token pair in the local SQLite
// database. There is at most one session.
package session

import (
	"context"
	"time"
)

type Session struct {
	Subject                string
	AccessToken            string
	AccessTokenExpiration  time.Time
	RefreshToken           string
	RefreshTokenExpiration time.Time
	UpdatedAt              time.Time
}

// Repository returns common.ErrorNotFound from Load when nothing is stored.
type Repository interface {
	Save(ctx context.Context, s *Session) error
	Load(ctx context.Context) (*Session, error)
	Clear(ctx context.Context) error
}
