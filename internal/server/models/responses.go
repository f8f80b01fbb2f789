package models

import (
	"encoding/json"
	"time"
)

type TokenResponse struct {
	AccessToken            string    `json:"accessToken"`
	AccessTokenExpiration  time.Time `json:"accessTokenExpiration"`
	RefreshToken           string    `json:"refreshToken"`
	RefreshTokenExpiration time.Time `json:"refreshTokenExpiration"`
}

type ClientTokenResponse struct {
	AccessToken           string    `json:"accessToken"`
	AccessTokenExpiration time.Time `json:"accessTokenExpiration"`
}

// PasskeyOptionsResponse carries the ceremony options for the browser and
// the request id to echo back on completion.
type PasskeyOptionsResponse struct {
	RequestID string          `json:"requestId"`
	Options   json.RawMessage `json:"options"`
}
