package config

import (
	"encoding/json"
	"os"

	"github.com/alprslanymeria/oauthserver/internal/flagx"
	"github.com/alprslanymeria/oauthserver/internal/timex"
)

// JsonConfig is the on-disk shape of the config file. Durations accept
// "15m"-style strings or integer nanoseconds. Only keys present in the file
// override the current values.
type JsonConfig struct {
	EndpointAddrHTTP string `json:"endpoint_addr_http"`
	EndpointAddrGRPC string `json:"endpoint_addr_grpc"`
	DatabaseDSN      string `json:"database_dsn"`
	LogLevel         string `json:"log_level"`

	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"redis_password"`
	RedisDB       *int   `json:"redis_db"`

	SecretKey                    string          `json:"secret_key"`
	Issuer                       string          `json:"issuer"`
	Audiences                    []string        `json:"audiences"`
	AccessTokenValidityDuration  *timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration *timex.Duration `json:"refresh_token_validity_duration"`
	Clients                      []Client        `json:"clients"`

	WebAuthn struct {
		RPID             string   `json:"rp_id"`
		RPDisplayName    string   `json:"rp_display_name"`
		RPOrigins        []string `json:"rp_origins"`
		UserVerification string   `json:"user_verification"`
		Verifier         string   `json:"verifier"`
	} `json:"webauthn"`

	Google struct {
		ClientID            string   `json:"client_id"`
		ClientSecret        string   `json:"client_secret"`
		RedirectURL         string   `json:"redirect_url"`
		Issuer              string   `json:"issuer"`
		AllowedRedirectURIs []string `json:"allowed_redirect_uris"`
	} `json:"google"`

	RateLimit struct {
		PerMinute *int `json:"per_minute"`
		Burst     *int `json:"burst"`
	} `json:"rate_limit"`
}

// parseJson overlays values from the file named by -c / -config (or
// $OAUTHSERVER_CONFIG). No path means nothing to load. An unreadable file or
// invalid JSON panics, as a misconfigured server must not start.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()

	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.LogLevel, c.LogLevel)

	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.RedisPassword, c.RedisPassword)
	if c.RedisDB != nil {
		config.RedisDB = *c.RedisDB
	}

	setString(&config.SecretKey, c.SecretKey)
	setString(&config.Issuer, c.Issuer)
	setList(&config.Audiences, c.Audiences)
	if c.AccessTokenValidityDuration != nil {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.RefreshTokenValidityDuration != nil {
		config.RefreshTokenValidityDuration = c.RefreshTokenValidityDuration.Duration
	}
	if c.Clients != nil {
		config.Clients = c.Clients
	}

	setString(&config.RPID, c.WebAuthn.RPID)
	setString(&config.RPDisplayName, c.WebAuthn.RPDisplayName)
	setList(&config.RPOrigins, c.WebAuthn.RPOrigins)
	setString(&config.UserVerification, c.WebAuthn.UserVerification)
	setString(&config.PasskeyVerifier, c.WebAuthn.Verifier)

	setString(&config.GoogleClientID, c.Google.ClientID)
	setString(&config.GoogleClientSecret, c.Google.ClientSecret)
	setString(&config.GoogleRedirectURL, c.Google.RedirectURL)
	setString(&config.GoogleIssuer, c.Google.Issuer)
	setList(&config.GoogleAllowedRedirectURIs, c.Google.AllowedRedirectURIs)

	if c.RateLimit.PerMinute != nil {
		config.RateLimitPerMinute = *c.RateLimit.PerMinute
	}
	if c.RateLimit.Burst != nil {
		config.RateLimitBurst = *c.RateLimit.Burst
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setList(dst *[]string, v []string) {
	if v != nil {
		*dst = v
	}
}
