package config

import (
	"flag"
	"os"
	"time"

	"github.com/alprslanymeria/oauthserver/internal/flagx"
)

// parseFlags overlays selected Config fields from command-line flags.
//
//	-a string   HTTP bind address (e.g. ":8080")
//	-g string   gRPC bind address (e.g. ":50051")
//	-d string   PostgreSQL DSN
//	-r string   Redis address; empty keeps challenges in memory
//	-s string   JWT HMAC secret key
//	-i string   token issuer
//	-aud list   comma separated token audiences
//	-t int      access token validity, minutes
//	-rt int     refresh token validity, minutes
//	-rp string  WebAuthn relying party id
//	-o list     comma separated WebAuthn origins
//	-l string   log level
//
// Durations are integers in minutes.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-g", "-d", "-r", "-s", "-i", "-aud", "-t", "-rt", "-rp", "-o", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "HTTP address and port")
	fs.StringVar(&config.EndpointAddrGRPC, "g", config.EndpointAddrGRPC, "gRPC address and port")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.RedisAddr, "r", config.RedisAddr, "redis address")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.Issuer, "i", config.Issuer, "token issuer")
	fs.StringVar(&config.RPID, "rp", config.RPID, "WebAuthn relying party id")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	audiences := flagx.StringList(config.Audiences)
	fs.Var(&audiences, "aud", "token audiences (comma separated)")
	origins := flagx.StringList(config.RPOrigins)
	fs.Var(&origins, "o", "WebAuthn origins (comma separated)")

	accessTokenValidityDuration := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access_token_validity_duration (in minutes)")
	refreshTokenValidityDuration := fs.Int("rt", int(config.RefreshTokenValidityDuration.Minutes()), "refresh_token_validity_duration (in minutes)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.Audiences = audiences
	config.RPOrigins = origins
	config.AccessTokenValidityDuration = time.Duration(*accessTokenValidityDuration) * time.Minute
	config.RefreshTokenValidityDuration = time.Duration(*refreshTokenValidityDuration) * time.Minute
}
