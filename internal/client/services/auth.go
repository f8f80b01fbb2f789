// Package services contains application services for the CLI. The auth
// service signs in against the server and keeps the resulting token pair in
// the local session store.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alprslanymeria/oauthserver/internal/client/client"
	"github.com/alprslanymeria/oauthserver/internal/client/repositories/session"
	"github.com/alprslanymeria/oauthserver/internal/common"
)

// AuthService defines the session operations the CLI offers. All methods
// honor context cancellation.
type AuthService interface {
	Login(ctx context.Context, identifier string, password []byte) (*session.Session, error)
	Register(ctx context.Context, req client.SignUpRequest, password []byte) (*client.User, error)
	Refresh(ctx context.Context) (*session.Session, error)
	Logout(ctx context.Context) error
	Current(ctx context.Context) (*session.Session, error)
	ClientToken(ctx context.Context, clientID string, clientSecret []byte) (*client.ClientToken, error)
	SendCode(ctx context.Context, contact string) error
	Verify(ctx context.Context, contact, code string) error
	Deactivate(ctx context.Context, password []byte) error
	Ping(ctx context.Context) error
}

type authService struct {
	client   client.Client
	sessions session.Repository
	now      func() time.Time
}

func NewAuthService(c client.Client, sessions session.Repository) AuthService {
	return &authService{client: c, sessions: sessions, now: time.Now}
}

// signInRequest picks the identifier kind: an e-mail contains "@", a phone
// number starts with "+", anything else is a user name.
func signInRequest(identifier string, password []byte) client.SignInRequest {
	id := strings.TrimSpace(identifier)
	req := client.SignInRequest{Password: string(password)}
	switch {
	case strings.Contains(id, "@"):
		req.Email = id
	case strings.HasPrefix(id, "+"):
		req.PhoneNumber = id
	default:
		req.UserName = id
	}
	return req
}

// verifyRequest maps an e-mail or phone number to a verification request.
// A user name cannot receive a code.
func verifyRequest(contact, code string) (client.VerifyRequest, error) {
	c := strings.TrimSpace(contact)
	req := client.VerifyRequest{Code: strings.TrimSpace(code)}
	switch {
	case strings.Contains(c, "@"):
		req.Email = c
	case strings.HasPrefix(c, "+"):
		req.PhoneNumber = c
	default:
		return req, common.Business("Email or phone number is required.")
	}
	return req, nil
}

func (a *authService) Login(ctx context.Context, identifier string, password []byte) (*session.Session, error) {
	tok, err := a.client.SignIn(ctx, signInRequest(identifier, password))
	if err != nil {
		return nil, err
	}
	return a.store(ctx, strings.TrimSpace(identifier), tok)
}

func (a *authService) Register(ctx context.Context, req client.SignUpRequest, password []byte) (*client.User, error) {
	req.Password = string(password)
	return a.client.SignUp(ctx, req)
}

// Refresh rotates the stored refresh token. A token the server no longer
// knows ends the local session.
func (a *authService) Refresh(ctx context.Context) (*session.Session, error) {
	cur, err := a.Current(ctx)
	if err != nil {
		return nil, err
	}

	tok, err := a.client.Refresh(ctx, cur.RefreshToken)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) || errors.Is(err, common.ErrorForbidden) {
			if clearErr := a.sessions.Clear(ctx); clearErr != nil {
				return nil, errors.Join(err, clearErr)
			}
		}
		return nil, err
	}
	return a.store(ctx, cur.Subject, tok)
}

// Logout revokes the refresh token on the server and forgets the session.
// A token the server already dropped still counts as logged out.
func (a *authService) Logout(ctx context.Context) error {
	cur, err := a.Current(ctx)
	if err != nil {
		return err
	}

	if err := a.client.Revoke(ctx, cur.RefreshToken); err != nil && !errors.Is(err, common.ErrorNotFound) {
		return err
	}
	return a.sessions.Clear(ctx)
}

func (a *authService) Current(ctx context.Context) (*session.Session, error) {
	s, err := a.sessions.Load(ctx)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, client.ErrNoSession
		}
		return nil, err
	}
	return s, nil
}

func (a *authService) ClientToken(ctx context.Context, clientID string, clientSecret []byte) (*client.ClientToken, error) {
	return a.client.ClientToken(ctx, clientID, string(clientSecret))
}

func (a *authService) SendCode(ctx context.Context, contact string) error {
	req, err := verifyRequest(contact, "")
	if err != nil {
		return err
	}
	return a.client.SendVerificationCode(ctx, req)
}

func (a *authService) Verify(ctx context.Context, contact, code string) error {
	req, err := verifyRequest(contact, code)
	if err != nil {
		return err
	}
	return a.client.Verify(ctx, req)
}

// Deactivate switches off the signed-in account and forgets the session.
func (a *authService) Deactivate(ctx context.Context, password []byte) error {
	cur, err := a.Current(ctx)
	if err != nil {
		return err
	}
	if err := a.client.Deactivate(ctx, cur.AccessToken, string(password)); err != nil {
		return err
	}
	return a.sessions.Clear(ctx)
}

func (a *authService) Ping(ctx context.Context) error {
	return a.client.Ping(ctx)
}

func (a *authService) store(ctx context.Context, subject string, tok *client.Tokens) (*session.Session, error) {
	s := &session.Session{
		Subject:                subject,
		AccessToken:            tok.AccessToken,
		AccessTokenExpiration:  tok.AccessTokenExpiration,
		RefreshToken:           tok.RefreshToken,
		RefreshTokenExpiration: tok.RefreshTokenExpiration,
		UpdatedAt:              a.now(),
	}
	if err := a.sessions.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return s, nil
}
