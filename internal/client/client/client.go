package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alprslanymeria/oauthserver/internal/common"
	"github.com/hashicorp/go-cleanhttp"
)

// Tokens is the token pair returned by sign-in and refresh.
type Tokens struct {
	AccessToken            string    `json:"accessToken"`
	AccessTokenExpiration  time.Time `json:"accessTokenExpiration"`
	RefreshToken           string    `json:"refreshToken"`
	RefreshTokenExpiration time.Time `json:"refreshTokenExpiration"`
}

type ClientToken struct {
	AccessToken           string    `json:"accessToken"`
	AccessTokenExpiration time.Time `json:"accessTokenExpiration"`
}

type SignInRequest struct {
	Email       string `json:"email,omitempty"`
	UserName    string `json:"userName,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	Password    string `json:"password"`
}

type SignUpRequest struct {
	UserName    string `json:"userName"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	FirstName   string `json:"firstName,omitempty"`
	Password    string `json:"password"`
}

// VerifyRequest names the contact a verification code was sent to. Email
// wins when both are set.
type VerifyRequest struct {
	Email       string `json:"email,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	Code        string `json:"code,omitempty"`
}

type User struct {
	ID       string `json:"id"`
	UserName string `json:"userName"`
	Email    string `json:"email"`
}

type Client interface {
	SignIn(ctx context.Context, req SignInRequest) (*Tokens, error)
	SignUp(ctx context.Context, req SignUpRequest) (*User, error)
	Refresh(ctx context.Context, refreshToken string) (*Tokens, error)
	Revoke(ctx context.Context, refreshToken string) error
	ClientToken(ctx context.Context, clientID, clientSecret string) (*ClientToken, error)
	// SendVerificationCode ignores req.Code.
	SendVerificationCode(ctx context.Context, req VerifyRequest) error
	Verify(ctx context.Context, req VerifyRequest) error
	Deactivate(ctx context.Context, accessToken, password string) error
	Ping(ctx context.Context) error
}

type HTTPClient struct {
	base *url.URL
	http *http.Client
}

func NewHTTPClient(serverURL string, timeout time.Duration) (*HTTPClient, error) {
	base, err := url.Parse(strings.TrimRight(serverURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid server url %q", serverURL)
	}

	hc := cleanhttp.DefaultPooledClient()
	hc.Timeout = timeout
	if tr, ok := hc.Transport.(*http.Transport); ok {
		tr.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	return &HTTPClient{base: base, http: hc}, nil
}

func (c *HTTPClient) SignIn(ctx context.Context, req SignInRequest) (*Tokens, error) {
	var out Tokens
	if err := c.post(ctx, "/api/auth/token", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) SignUp(ctx context.Context, req SignUpRequest) (*User, error) {
	var out User
	if err := c.post(ctx, "/api/users", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	var out Tokens
	if err := c.post(ctx, "/api/auth/refresh", map[string]string{"refreshToken": refreshToken}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) Revoke(ctx context.Context, refreshToken string) error {
	return c.post(ctx, "/api/auth/revoke", map[string]string{"refreshToken": refreshToken}, nil)
}

func (c *HTTPClient) ClientToken(ctx context.Context, clientID, clientSecret string) (*ClientToken, error) {
	var out ClientToken
	body := map[string]string{"clientId": clientID, "clientSecret": clientSecret}
	if err := c.post(ctx, "/api/auth/client-token", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) SendVerificationCode(ctx context.Context, req VerifyRequest) error {
	req.Code = ""
	return c.post(ctx, "/api/users/verification-code", req, nil)
}

func (c *HTTPClient) Verify(ctx context.Context, req VerifyRequest) error {
	return c.post(ctx, "/api/users/verify", req, nil)
}

func (c *HTTPClient) Deactivate(ctx context.Context, accessToken, password string) error {
	return c.do(ctx, http.MethodPost, "/api/account/deactivate", accessToken, map[string]string{"password": password}, nil)
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", "", nil, nil)
}

func (c *HTTPClient) post(ctx context.Context, path string, in, out any) error {
	return c.do(ctx, http.MethodPost, path, "", in, out)
}

// do sends in as JSON and decodes the reply into out. A non-empty bearer is
// sent as the access token.
func (c *HTTPClient) do(ctx context.Context, method, path, bearer string, in, out any) error {
	var body bytes.Buffer
	if in != nil {
		if err := json.NewEncoder(&body).Encode(in); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set(common.AuthorizationHeaderName, "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
