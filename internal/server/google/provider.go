// Package google runs the authorization-code login against Google (or any
// OpenID Connect issuer) and turns the verified ID token into a federated
// identity.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/alprslanymeria/oauthserver/internal/common"
	"github.com/alprslanymeria/oauthserver/internal/server/challenges"
	"github.com/alprslanymeria/oauthserver/internal/server/models"
	"github.com/alprslanymeria/oauthserver/internal/server/services"
	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

const stateKeyPrefix = "google:state:"

const (
	msgRedirectRequired = "redirect_uri is required."
	msgRedirectInvalid  = "Invalid redirect_uri."
	msgStateInvalid     = "Invalid or expired login state."
	msgMissingIdentity  = "Could not retrieve email or user information from Google."
	msgEmailUnverified  = "Google account email is not verified."
	msgExchangeFailed   = "Google login could not be completed."
)

type Config struct {
	ClientID            string
	ClientSecret        string
	RedirectURL         string
	Issuer              string
	AllowedRedirectURIs []string
}

// pending is cached under the state value between the login redirect and
// the callback.
type pending struct {
	RedirectURI string `json:"redirect_uri"`
	Nonce       string `json:"nonce"`
	Verifier    string `json:"verifier"`
}

type Provider struct {
	oauth    *oauth2.Config
	verifier *oidc.IDTokenVerifier
	cache    challenges.Cache
	allowed  []*url.URL
}

// NewProvider discovers the issuer's endpoints and keys.
func NewProvider(ctx context.Context, cfg Config, cache challenges.Cache) (*Provider, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("client id is required")
	}

	allowed := make([]*url.URL, 0, len(cfg.AllowedRedirectURIs))
	for _, raw := range cfg.AllowedRedirectURIs {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("invalid allowed redirect uri %q", raw)
		}
		allowed = append(allowed, u)
	}

	op, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC endpoints: %w", err)
	}

	return &Provider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     op.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
		verifier: op.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		cache:    cache,
		allowed:  allowed,
	}, nil
}

// ValidateRedirectURI accepts only URIs whose scheme and host match one of
// the allowed redirect URIs.
func (p *Provider) ValidateRedirectURI(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return common.Business(msgRedirectRequired)
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return common.Business(msgRedirectInvalid)
	}

	for _, a := range p.allowed {
		if strings.EqualFold(a.Scheme, u.Scheme) && strings.EqualFold(a.Host, u.Host) {
			return nil
		}
	}
	return common.Business(msgRedirectInvalid)
}

// AuthCodeURL validates redirectURI, remembers it under a fresh single-use
// state and returns the issuer's authorization URL.
func (p *Provider) AuthCodeURL(ctx context.Context, redirectURI string) (string, error) {
	if err := p.ValidateRedirectURI(redirectURI); err != nil {
		return "", err
	}

	state, err := common.MakeRandHexString(16)
	if err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	nonce, err := common.MakeRandHexString(16)
	if err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	pend := pending{RedirectURI: redirectURI, Nonce: nonce, Verifier: oauth2.GenerateVerifier()}
	raw, err := json.Marshal(pend)
	if err != nil {
		return "", err
	}
	if err := p.cache.Set(ctx, stateKeyPrefix+state, raw, common.ChallengeTTL); err != nil {
		return "", fmt.Errorf("store state: %w", err)
	}

	return p.oauth.AuthCodeURL(state, oidc.Nonce(nonce), oauth2.S256ChallengeOption(pend.Verifier)), nil
}

// Callback redeems state, exchanges code and verifies the ID token. It
// returns the identity and the redirect URI captured by AuthCodeURL.
func (p *Provider) Callback(ctx context.Context, state, code string) (services.FederatedIdentity, string, error) {
	var none services.FederatedIdentity

	if state == "" {
		return none, "", common.Business(msgStateInvalid)
	}
	raw, err := p.cache.Take(ctx, stateKeyPrefix+state)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return none, "", common.Business(msgStateInvalid)
		}
		return none, "", fmt.Errorf("read state: %w", err)
	}

	var pend pending
	if err := json.Unmarshal(raw, &pend); err != nil {
		return none, "", fmt.Errorf("decode state: %w", err)
	}

	tok, err := p.oauth.Exchange(ctx, code, oauth2.VerifierOption(pend.Verifier))
	if err != nil {
		return none, "", common.Unauthorized(msgExchangeFailed)
	}

	rawIDToken, ok := tok.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return none, "", common.Unauthorized(msgExchangeFailed)
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil || idToken.Nonce != pend.Nonce {
		return none, "", common.Unauthorized(msgExchangeFailed)
	}

	var claims struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return none, "", common.Business(msgMissingIdentity)
	}
	if claims.Email == "" || idToken.Subject == "" {
		return none, "", common.Business(msgMissingIdentity)
	}
	if !claims.EmailVerified {
		return none, "", common.Forbidden(msgEmailUnverified)
	}

	return services.FederatedIdentity{
		Email:   claims.Email,
		Name:    claims.Name,
		Subject: idToken.Subject,
		Picture: claims.Picture,
	}, pend.RedirectURI, nil
}

// BuildTokenRedirectURL appends the token pair to redirectURI as query
// parameters, keeping any parameters already present.
func BuildTokenRedirectURL(redirectURI string, tok *models.TokenResponse) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", fmt.Errorf("parse redirect uri: %w", err)
	}

	q := u.Query()
	q.Set("access_token", tok.AccessToken)
	q.Set("access_token_expiration", tok.AccessTokenExpiration.UTC().Format(time.RFC3339Nano))
	q.Set("refresh_token", tok.RefreshToken)
	q.Set("refresh_token_expiration", tok.RefreshTokenExpiration.UTC().Format(time.RFC3339Nano))
	u.RawQuery = q.Encode()

	return u.String(), nil
}
