package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Andre-tech671/secrets-google-signup-webapp/auth"
	"github.com/Andre-tech671/secrets-google-signup-webapp/herr"
	"github.com/Andre-tech671/secrets-google-signup-webapp/metrics"
	mw "github.com/Andre-tech671/secrets-google-signup-webapp/middleware"
	"github.com/Andre-tech671/secrets-google-signup-webapp/password"
	"github.com/Andre-tech671/secrets-google-signup-webapp/session"
	"github.com/Andre-tech671/secrets-google-signup-webapp/store"
	"github.com/Andre-tech671/secrets-google-signup-webapp/views"
)

const sweepInterval = time.Hour

type server struct {
	port            int
	store           store.Store
	sessionManager  *session.Manager
	hasher          auth.Hasher
	local           auth.Authenticator
	google          *auth.Google
	views           *views.Renderer
	protectedRoutes map[string]struct{}
}

type ServerCfg struct {
	Port       int
	Store      store.Store
	Session    session.Config
	BcryptCost int
	Google     auth.GoogleCfg
}

// New wires the handlers around an open store. The context bounds the
// lifetime of the OAuth state cache.
func New(ctx context.Context, cfg ServerCfg) (*server, error) {
	hasher, err := password.New(cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	sessionManager := session.NewManager(cfg.Store, cfg.Session)
	google, err := auth.NewGoogle(ctx, cfg.Google, auth.NewFederated(cfg.Store), sessionManager)
	if err != nil {
		return nil, err
	}
	renderer, err := views.New()
	if err != nil {
		return nil, err
	}
	return &server{
		port:           cfg.Port,
		store:          cfg.Store,
		sessionManager: sessionManager,
		hasher:         hasher,
		local:          auth.NewLocal(cfg.Store, hasher),
		google:         google,
		views:          renderer,
		protectedRoutes: map[string]struct{}{
			"/secrets": {},
			"/submit":  {},
		},
	}, nil
}

func (s *server) Handler() http.Handler {
	mux := http.NewServeMux()
	handle := func(pattern string, h http.Handler) {
		mux.Handle(pattern, metrics.Instrument(pattern, h))
	}

	handle("GET /{$}", herr.Wrap(s.handleHome))
	handle("GET /login", herr.Wrap(s.handleLoginForm))
	handle("POST /login", herr.Wrap(s.handleLogin))
	handle("GET /register", herr.Wrap(s.handleRegisterForm))
	handle("POST /register", herr.Wrap(s.handleRegister))
	handle("GET /logout", herr.Wrap(s.handleLogout))
	handle("GET /secrets", herr.Wrap(s.handleSecrets))
	handle("GET /submit", herr.Wrap(s.handleSubmitForm))
	handle("POST /submit", herr.Wrap(s.handleSubmit))
	handle("GET /auth/google", herr.Wrap(s.google.HandleLogin))
	handle("GET /auth/google/secrets", herr.Wrap(s.google.HandleCallback))
	handle("GET /healthz", http.HandlerFunc(s.handleHealth))
	mux.Handle("GET /metrics", metrics.Handler())

	return mw.Chain(
		mux,
		mw.Logger(),
		mw.Session(s.sessionManager),
		mw.Protect(s.protectedRoutes),
	)
}

// Start serves until ctx is cancelled, sweeping expired sessions meanwhile.
func (s *server) Start(ctx context.Context) error {
	defer s.google.Close()
	go s.sessionManager.RunSweeper(ctx, sweepInterval)
	return Serve(ctx, fmt.Sprintf(":%d", s.port), s.Handler())
}
