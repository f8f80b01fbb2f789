package http

import (
	"context"
	"strings"
	"time"

	"github.com/alprslanymeria/oauthserver/internal/common"
	"github.com/alprslanymeria/oauthserver/internal/server/auth"
	"github.com/alprslanymeria/oauthserver/internal/server/models"
	"github.com/alprslanymeria/oauthserver/internal/server/services"
	"github.com/golang-jwt/jwt/v5"
)

var testExpiry = time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

func testToken(tag string) *models.TokenResponse {
	return &models.TokenResponse{
		AccessToken:            "access-" + tag,
		AccessTokenExpiration:  testExpiry,
		RefreshToken:           "refresh-" + tag,
		RefreshTokenExpiration: testExpiry.Add(time.Hour),
	}
}

type fakeAuth struct {
	signIn  func(services.SignInRequest) (*models.TokenResponse, error)
	signUp  func(services.SignUpRequest) (*models.User, error)
	refresh func(string) (*models.TokenResponse, error)
	revoked []string
}

func (f *fakeAuth) SignIn(_ context.Context, req services.SignInRequest) (*models.TokenResponse, error) {
	return f.signIn(req)
}

func (f *fakeAuth) SignUp(_ context.Context, req services.SignUpRequest) (*models.User, error) {
	return f.signUp(req)
}

func (f *fakeAuth) Refresh(_ context.Context, code string) (*models.TokenResponse, error) {
	return f.refresh(code)
}

func (f *fakeAuth) Revoke(_ context.Context, code string) error {
	if code == "" {
		return common.NotFound("Refresh token not found.")
	}
	f.revoked = append(f.revoked, code)
	return nil
}

type fakeClients struct{}

func (fakeClients) IssueForClient(_ context.Context, id, secret string) (*models.ClientTokenResponse, error) {
	if id != "svc" || secret != "s3cret" {
		return nil, common.NotFound("Client not found.")
	}
	return &models.ClientTokenResponse{AccessToken: "client-access", AccessTokenExpiration: testExpiry}, nil
}

type fakePasskeys struct {
	owner     string
	requestID string
	payload   string
	email     string
}

func (f *fakePasskeys) RegisterBegin(_ context.Context, ownerID string) (*models.PasskeyOptionsResponse, error) {
	f.owner = ownerID
	return &models.PasskeyOptionsResponse{RequestID: "req-1", Options: []byte(`{"publicKey":{}}`)}, nil
}

func (f *fakePasskeys) RegisterComplete(_ context.Context, ownerID, requestID string, payload []byte) (*models.PasskeyCredential, error) {
	f.owner, f.requestID, f.payload = ownerID, requestID, string(payload)
	if requestID != "req-1" {
		return nil, common.Business("Invalid or expired passkey registration request.")
	}
	return &models.PasskeyCredential{ID: "pk-1", CredentialID: []byte{0xfb, 0xff}, CreatedAt: testExpiry}, nil
}

func (f *fakePasskeys) LoginBegin(_ context.Context, email string) (*models.PasskeyOptionsResponse, error) {
	f.email = email
	return &models.PasskeyOptionsResponse{RequestID: "req-2", Options: []byte(`{}`)}, nil
}

func (f *fakePasskeys) LoginComplete(_ context.Context, requestID string, payload []byte) (*models.TokenResponse, error) {
	f.requestID, f.payload = requestID, string(payload)
	if requestID != "req-2" {
		return nil, common.Unauthorized("Unknown passkey credential.")
	}
	return testToken("passkey"), nil
}

type fakeGoogle struct {
	identity services.FederatedIdentity
	redirect string
	err      error
}

func (f *fakeGoogle) AuthCodeURL(_ context.Context, redirectURI string) (string, error) {
	if redirectURI == "" {
		return "", common.Business("redirect_uri is required.")
	}
	return "https://accounts.example.com/auth?state=abc", nil
}

func (f *fakeGoogle) Callback(_ context.Context, _, _ string) (services.FederatedIdentity, string, error) {
	return f.identity, f.redirect, f.err
}

type fakeBinder struct {
	bound []services.FederatedIdentity
}

func (f *fakeBinder) BindOrCreate(_ context.Context, id services.FederatedIdentity) (*models.TokenResponse, error) {
	f.bound = append(f.bound, id)
	return testToken("google"), nil
}

// fakeTokens accepts "good-<subject>" and reports "expired" as expired.
type fakeTokens struct{}

func (fakeTokens) ParseAccessToken(token string) (*auth.Claims, error) {
	switch {
	case token == "expired":
		return nil, common.ErrTokenExpired
	case strings.HasPrefix(token, "good-"):
		return &auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: token[5:]}, TokenUse: auth.TokenUseUser}, nil
	case strings.HasPrefix(token, "client-"):
		return &auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: token[7:]}, TokenUse: auth.TokenUseClient}, nil
	default:
		return nil, common.ErrInvalidToken
	}
}

type fakeVerification struct {
	sentTo   []services.VerificationTarget
	verified []services.VerifyRequest
}

func (f *fakeVerification) SendCode(_ context.Context, target services.VerificationTarget) error {
	if target.Email == "" && target.PhoneNumber == "" {
		return common.Business("Email or phone number is required.")
	}
	f.sentTo = append(f.sentTo, target)
	return nil
}

func (f *fakeVerification) Verify(_ context.Context, req services.VerifyRequest) error {
	if req.Code != "123456" {
		return common.Business("Invalid or expired verification code.")
	}
	f.verified = append(f.verified, req)
	return nil
}

type fakeAccounts struct {
	deactivated []string
}

func (f *fakeAccounts) Deactivate(_ context.Context, userID, password string) error {
	if password != "ok" {
		return common.Unauthorized("Invalid password.")
	}
	f.deactivated = append(f.deactivated, userID)
	return nil
}
