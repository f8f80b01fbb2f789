// Package http exposes the credential and session services over a JSON API
// routed with chi.
package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/alprslanymeria/oauthserver/internal/logging"
	"github.com/alprslanymeria/oauthserver/internal/server/auth"
	"github.com/alprslanymeria/oauthserver/internal/server/models"
	"github.com/alprslanymeria/oauthserver/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type AuthService interface {
	SignIn(ctx context.Context, req services.SignInRequest) (*models.TokenResponse, error)
	SignUp(ctx context.Context, req services.SignUpRequest) (*models.User, error)
	Refresh(ctx context.Context, code string) (*models.TokenResponse, error)
	Revoke(ctx context.Context, code string) error
}

type VerificationService interface {
	SendCode(ctx context.Context, target services.VerificationTarget) error
	Verify(ctx context.Context, req services.VerifyRequest) error
}

type AccountService interface {
	Deactivate(ctx context.Context, userID, password string) error
}

type ClientIssuer interface {
	IssueForClient(ctx context.Context, clientID, clientSecret string) (*models.ClientTokenResponse, error)
}

type PasskeyService interface {
	RegisterBegin(ctx context.Context, ownerID string) (*models.PasskeyOptionsResponse, error)
	RegisterComplete(ctx context.Context, ownerID, requestID string, payload []byte) (*models.PasskeyCredential, error)
	LoginBegin(ctx context.Context, email string) (*models.PasskeyOptionsResponse, error)
	LoginComplete(ctx context.Context, requestID string, payload []byte) (*models.TokenResponse, error)
}

type FederatedBinder interface {
	BindOrCreate(ctx context.Context, id services.FederatedIdentity) (*models.TokenResponse, error)
}

// GoogleLogin is the upstream half of the Google flow.
type GoogleLogin interface {
	AuthCodeURL(ctx context.Context, redirectURI string) (string, error)
	Callback(ctx context.Context, state, code string) (services.FederatedIdentity, string, error)
}

type TokenParser interface {
	ParseAccessToken(token string) (*auth.Claims, error)
}

// Deps are the services behind the routes. Google and Federated may be nil,
// in which case the Google routes are not mounted.
type Deps struct {
	Auth         AuthService
	Verification VerificationService
	Accounts     AccountService
	Clients      ClientIssuer
	Passkeys     PasskeyService
	Federated    FederatedBinder
	Google       GoogleLogin
	Tokens       TokenParser
}

type Config struct {
	Address            string
	RateLimitPerMinute int
	RateLimitBurst     int
}

type Server struct {
	address string
	deps    Deps
	logger  logging.Logger
	limiter *limiter
	metrics *metrics
	gather  prometheus.Gatherer
	router  chi.Router
}

// NewServer builds the router. Metrics are registered on reg, which is also
// what /metrics serves.
func NewServer(cfg Config, deps Deps, l logging.Logger, reg *prometheus.Registry) (*Server, error) {
	m, err := newMetrics(reg)
	if err != nil {
		return nil, err
	}

	s := &Server{
		address: cfg.Address,
		deps:    deps,
		logger:  l.With("module", "http_server"),
		limiter: newLimiter(cfg.RateLimitPerMinute, cfg.RateLimitBurst),
		metrics: m,
		gather:  reg,
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.recoverer)
	r.Use(s.logRequests)
	r.Use(s.instrument)

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gather, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.rateLimit)
			r.Post("/auth/token", s.signIn)
			r.Post("/auth/refresh", s.refresh)
			r.Post("/auth/client-token", s.clientToken)
			r.Post("/users", s.signUp)
			r.Post("/users/verification-code", s.sendVerificationCode)
			r.Post("/users/verify", s.verify)
			r.Post("/passkeys/login/begin", s.passkeyLoginBegin)
			r.Post("/passkeys/login/complete", s.passkeyLoginComplete)
		})

		r.Post("/auth/revoke", s.revoke)

		r.Group(func(r chi.Router) {
			r.Use(s.requireBearer)
			r.Post("/passkeys/register/begin", s.passkeyRegisterBegin)
			r.Post("/passkeys/register/complete", s.passkeyRegisterComplete)
			r.Post("/account/deactivate", s.deactivate)
		})

		if s.deps.Google != nil && s.deps.Federated != nil {
			r.Get("/auth/google/login", s.googleLogin)
			r.Get("/auth/google/callback", s.googleCallback)
		}
	})

	return r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.limiter.pruneLoop(ctx, time.Minute)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
