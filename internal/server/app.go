// Package server wires configuration, storage, the challenge cache and the
// credential and account services together and runs the HTTP and gRPC endpoints until
// the process is signalled.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/alprslanymeria/oauthserver/internal/logging"
	"github.com/alprslanymeria/oauthserver/internal/server/auth"
	"github.com/alprslanymeria/oauthserver/internal/server/challenges"
	"github.com/alprslanymeria/oauthserver/internal/server/config"
	"github.com/alprslanymeria/oauthserver/internal/server/google"
	"github.com/alprslanymeria/oauthserver/internal/server/models"
	"github.com/alprslanymeria/oauthserver/internal/server/notify"
	"github.com/alprslanymeria/oauthserver/internal/server/repositories/repomanager"
	"github.com/alprslanymeria/oauthserver/internal/server/services"
	"github.com/alprslanymeria/oauthserver/internal/server/webauthn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	gs "github.com/alprslanymeria/oauthserver/internal/server/grpc"
	hs "github.com/alprslanymeria/oauthserver/internal/server/http"
)

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	cache  challenges.Cache
	http   *hs.Server
	grpc   *gs.GRPCServer
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger := logging.NewJSON(os.Stdout, c.LogLevel)

	db, err := repomanager.OpenPostgres(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	app := &App{config: c, logger: logger, db: db}
	if err := app.init(ctx); err != nil {
		app.close(ctx)
		return nil, err
	}
	return app, nil
}

func (app *App) init(ctx context.Context) error {
	c := app.config

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, app.db); err != nil {
		return fmt.Errorf("migrations error: %w", err)
	}

	cache, err := newCache(ctx, c)
	if err != nil {
		return fmt.Errorf("challenge cache init error: %w", err)
	}
	app.cache = cache

	issuer := auth.NewIssuer(auth.IssuerConfig{
		SecretKey:       []byte(c.SecretKey),
		Issuer:          c.Issuer,
		Audiences:       c.Audiences,
		AccessTokenTTL:  c.AccessTokenValidityDuration,
		RefreshTokenTTL: c.RefreshTokenValidityDuration,
	})

	verifiers, err := webauthn.NewRegistry(webauthn.Config{
		RPID:             c.RPID,
		RPDisplayName:    c.RPDisplayName,
		RPOrigins:        c.RPOrigins,
		UserVerification: c.UserVerification,
	})
	if err != nil {
		return fmt.Errorf("webauthn init error: %w", err)
	}
	verifier, ok := verifiers[c.PasskeyVerifier]
	if !ok {
		return fmt.Errorf("unknown passkey verifier %q", c.PasskeyVerifier)
	}

	ledger := services.NewRefreshTokenLedger(app.db, rm, issuer)

	verification := services.NewVerificationService(app.db, rm, cache, notify.NewLogNotifier(app.logger), app.logger)

	deps := hs.Deps{
		Auth:         services.NewAuthService(app.db, rm, ledger, verification, app.logger),
		Verification: verification,
		Accounts:     services.NewAccountService(app.db, rm, app.logger),
		Clients:      services.NewClientCredentialIssuer(registeredClients(c.Clients), issuer),
		Passkeys:     services.NewPasskeyService(app.db, rm, cache, verifier, ledger, app.logger),
		Tokens:       issuer,
	}

	if c.GoogleEnabled() {
		gp, err := google.NewProvider(ctx, google.Config{
			ClientID:            c.GoogleClientID,
			ClientSecret:        c.GoogleClientSecret,
			RedirectURL:         c.GoogleRedirectURL,
			Issuer:              c.GoogleIssuer,
			AllowedRedirectURIs: c.GoogleAllowedRedirectURIs,
		}, cache)
		if err != nil {
			return fmt.Errorf("google init error: %w", err)
		}
		deps.Google = gp
		deps.Federated = services.NewFederatedIdentityBinder(app.db, rm, ledger, app.logger)
	} else {
		app.logger.Info(ctx, "Google login disabled")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	app.http, err = hs.NewServer(hs.Config{
		Address:            c.EndpointAddrHTTP,
		RateLimitPerMinute: c.RateLimitPerMinute,
		RateLimitBurst:     c.RateLimitBurst,
	}, deps, app.logger, reg)
	if err != nil {
		return fmt.Errorf("http init error: %w", err)
	}

	app.grpc = gs.NewGRPCServer(c.EndpointAddrGRPC, app.logger)
	return nil
}

// newCache picks Redis when configured; the in-process cache only works for
// a single replica.
func newCache(ctx context.Context, c *config.Config) (challenges.Cache, error) {
	if c.RedisAddr == "" {
		return challenges.NewMemoryCache(), nil
	}
	return challenges.NewRedisCache(ctx, challenges.RedisConfig{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	})
}

func registeredClients(cs []config.Client) []models.Client {
	out := make([]models.Client, 0, len(cs))
	for _, c := range cs {
		out = append(out, models.Client{ID: c.ID, Secret: c.Secret, Audiences: c.Audiences})
	}
	return out
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := app.grpc.Run(ctx); err != nil {
			app.logger.Error(ctx, err.Error())
			cancelFunc()
		}
	}()
	go func() {
		defer wg.Done()
		if err := app.http.Run(ctx); err != nil {
			app.logger.Error(ctx, err.Error())
			cancelFunc()
		}
	}()

	wg.Wait()

	app.close(ctx)
	app.logger.Info(ctx, "App stopped")
}

func (app *App) close(ctx context.Context) {
	var errs []error
	if cl, ok := app.cache.(io.Closer); ok {
		errs = append(errs, cl.Close())
	}
	if app.db != nil {
		errs = append(errs, app.db.Close())
	}
	if err := errors.Join(errs...); err != nil {
		app.logger.Error(ctx, "shutdown error", "error", err.Error())
	}
}
