// Package auth issues and parses the server's bearer credentials.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/alprslanymeria/oauthserver/internal/common"
	"github.com/alprslanymeria/oauthserver/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// refreshTokenSize is the number of random bytes in a refresh token.
const refreshTokenSize = 32

// Values of the token_use claim.
const (
	TokenUseUser   = "user"
	TokenUseClient = "client"
)

// Claims are the access token claims. Subject holds the user or client id;
// TokenUse tells which.
type Claims struct {
	jwt.RegisteredClaims
	TokenUse string `json:"token_use"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
}

// ForUser reports whether the token was issued to a user.
func (c *Claims) ForUser() bool {
	return c.TokenUse == TokenUseUser
}

type IssuerConfig struct {
	SecretKey       []byte
	Issuer          string
	Audiences       []string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// Issuer signs HS256 access tokens and mints opaque refresh tokens. It has no
// side effects; persisting refresh tokens is up to the caller.
type Issuer struct {
	cfg IssuerConfig
	now func() time.Time
}

func NewIssuer(cfg IssuerConfig) *Issuer {
	return &Issuer{cfg: cfg, now: time.Now}
}

// IssueUserToken returns an access/refresh pair for user.
func (i *Issuer) IssueUserToken(user *models.User) (*models.TokenResponse, error) {
	now := i.now()
	accessExp := now.Add(i.cfg.AccessTokenTTL)

	access, err := i.sign(Claims{
		RegisteredClaims: i.registered(user.ID, i.cfg.Audiences, now, accessExp),
		TokenUse:         TokenUseUser,
		Name:             user.UserName,
		Email:            user.Email,
	})
	if err != nil {
		return nil, err
	}

	refresh, err := common.MakeRandBase64String(refreshTokenSize)
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	return &models.TokenResponse{
		AccessToken:            access,
		AccessTokenExpiration:  accessExp,
		RefreshToken:           refresh,
		RefreshTokenExpiration: now.Add(i.cfg.RefreshTokenTTL),
	}, nil
}

// IssueClientToken returns an access token whose subject is the client id
// and whose audiences are the client's own. No refresh token is issued.
func (i *Issuer) IssueClientToken(client *models.Client) (*models.ClientTokenResponse, error) {
	now := i.now()
	exp := now.Add(i.cfg.AccessTokenTTL)

	access, err := i.sign(Claims{
		RegisteredClaims: i.registered(client.ID, client.Audiences, now, exp),
		TokenUse:         TokenUseClient,
	})
	if err != nil {
		return nil, err
	}

	return &models.ClientTokenResponse{AccessToken: access, AccessTokenExpiration: exp}, nil
}

// ParseAccessToken validates signature, issuer and expiry. Expired tokens
// yield common.ErrTokenExpired, anything else common.ErrInvalidToken.
func (i *Issuer) ParseAccessToken(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return i.cfg.SecretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.cfg.Issuer),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}

	if !token.Valid || claims.Subject == "" {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}

func (i *Issuer) registered(subject string, audiences []string, now, exp time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   subject,
		Issuer:    i.cfg.Issuer,
		Audience:  jwt.ClaimStrings(audiences),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
}

func (i *Issuer) sign(c Claims) (string, error) {
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(i.cfg.SecretKey)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return s, nil
}
