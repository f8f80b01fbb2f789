package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alprslanymeria/oauthserver/internal/client/client"
	"github.com/alprslanymeria/oauthserver/internal/client/repositories/session"
	"github.com/alprslanymeria/oauthserver/internal/common"
)

// getSimpleText, getPassword and getSecret are swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword
var getSecret = GetSecret

// report prints err for the user. Validation failures carry one line per
// reason; an unreachable server switches the app to offline mode.
func (a *App) report(action string, err error) error {
	if errors.Is(err, client.ErrUnavailable) {
		a.setMode(ModeOffline)
		fmt.Fprintf(a.out, "%s failed: server unavailable\n", action)
		return err
	}

	msgs := common.Messages(err)
	if len(msgs) == 0 {
		fmt.Fprintf(a.out, "%s failed: %s\n", action, err)
		return err
	}
	fmt.Fprintf(a.out, "%s failed:\n", action)
	for _, m := range msgs {
		fmt.Fprintf(a.out, "  - %s\n", m)
	}
	return err
}

// Register prompts for the account fields and a password and creates the
// account. New accounts still need to be verified before password sign-in.
func (a *App) Register(ctx context.Context) error {
	userName, err := getSimpleText(a.reader, "Enter user name", a.out)
	if err != nil {
		return err
	}
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}
	phone, err := getSimpleText(a.reader, "Enter phone number (optional)", a.out)
	if err != nil {
		return err
	}

	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	u, err := a.authService.Register(ctx, client.SignUpRequest{
		UserName:    userName,
		Email:       email,
		PhoneNumber: phone,
	}, password)
	if err != nil {
		return a.report("Register", err)
	}

	fmt.Fprintf(a.out, "Registered %s (%s). A verification code was sent; run 'verify' before signing in.\n", u.UserName, u.ID)
	return nil
}

// SendCode asks the server for a new verification code.
func (a *App) SendCode(ctx context.Context) error {
	contact, err := getSimpleText(a.reader, "Enter email or phone number", a.out)
	if err != nil {
		return err
	}

	if err := a.authService.SendCode(ctx, contact); err != nil {
		return a.report("Send code", err)
	}
	fmt.Fprintln(a.out, "Verification code sent")
	return nil
}

// Verify redeems a verification code. Every code works once, a wrong entry
// included.
func (a *App) Verify(ctx context.Context) error {
	contact, err := getSimpleText(a.reader, "Enter email or phone number", a.out)
	if err != nil {
		return err
	}
	code, err := getSimpleText(a.reader, "Enter verification code", a.out)
	if err != nil {
		return err
	}

	if err := a.authService.Verify(ctx, contact, code); err != nil {
		return a.report("Verify", err)
	}
	fmt.Fprintln(a.out, "Account verified")
	return nil
}

// Login prompts for an e-mail, user name or phone number and a password.
func (a *App) Login(ctx context.Context) error {
	identifier, err := getSimpleText(a.reader, "Enter email, user name or phone number", a.out)
	if err != nil {
		return err
	}

	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	s, err := a.authService.Login(ctx, identifier, password)
	if err != nil {
		return a.report("Login", err)
	}

	a.subject = s.Subject
	a.setMode(ModeOnline)
	fmt.Fprintln(a.out, "Login successful")
	return nil
}

func (a *App) Refresh(ctx context.Context) error {
	s, err := a.authService.Refresh(ctx)
	if err != nil {
		if errors.Is(err, client.ErrNoSession) {
			fmt.Fprintln(a.out, "Not logged in")
			return err
		}
		if _, curErr := a.authService.Current(ctx); errors.Is(curErr, client.ErrNoSession) {
			a.subject = ""
		}
		return a.report("Refresh", err)
	}

	fmt.Fprintf(a.out, "Tokens refreshed, access token valid until %s\n", s.AccessTokenExpiration.Format(time.RFC3339))
	return nil
}

func (a *App) Status(ctx context.Context) error {
	s, err := a.authService.Current(ctx)
	if err != nil {
		if errors.Is(err, client.ErrNoSession) {
			fmt.Fprintln(a.out, "Not logged in")
			return nil
		}
		return a.report("Status", err)
	}
	printSession(a, s)
	return nil
}

func printSession(a *App, s *session.Session) {
	fmt.Fprintf(a.out, "Subject:                  %s\n", s.Subject)
	fmt.Fprintf(a.out, "Access token expires:     %s\n", s.AccessTokenExpiration.Format(time.RFC3339))
	fmt.Fprintf(a.out, "Refresh token expires:    %s\n", s.RefreshTokenExpiration.Format(time.RFC3339))
}

// ClientToken runs the client-credentials grant and prints the access token.
// It does not touch the stored session.
func (a *App) ClientToken(ctx context.Context) error {
	clientID, err := getSimpleText(a.reader, "Enter client id", a.out)
	if err != nil {
		return err
	}
	secret, err := getSecret("Enter client secret", a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(secret)

	tok, err := a.authService.ClientToken(ctx, clientID, secret)
	if err != nil {
		return a.report("Client token", err)
	}

	fmt.Fprintln(a.out, tok.AccessToken)
	fmt.Fprintf(a.out, "Expires: %s\n", tok.AccessTokenExpiration.Format(time.RFC3339))
	return nil
}

// Logout revokes the refresh token and forgets the local session.
func (a *App) Logout(ctx context.Context) error {
	if err := a.authService.Logout(ctx); err != nil {
		if errors.Is(err, client.ErrNoSession) {
			a.subject = ""
			fmt.Fprintln(a.out, "Not logged in")
			return nil
		}
		return a.report("Logout", err)
	}
	a.subject = ""
	fmt.Fprintln(a.out, "Logged out")
	return nil
}

// Deactivate switches off the signed-in account after asking for the
// password again.
func (a *App) Deactivate(ctx context.Context) error {
	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	if err := a.authService.Deactivate(ctx, password); err != nil {
		if errors.Is(err, client.ErrNoSession) {
			fmt.Fprintln(a.out, "Not logged in")
			return err
		}
		return a.report("Deactivate", err)
	}
	a.subject = ""
	fmt.Fprintln(a.out, "Account deactivated")
	return nil
}
