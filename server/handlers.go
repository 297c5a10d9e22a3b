package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Andre-tech671/secrets-google-signup-webapp/auth"
	"github.com/Andre-tech671/secrets-google-signup-webapp/herr"
	"github.com/Andre-tech671/secrets-google-signup-webapp/session"
	"github.com/Andre-tech671/secrets-google-signup-webapp/store"
	"github.com/Andre-tech671/secrets-google-signup-webapp/views"
)

// PlaceholderSecret is shown until a user submits a secret of their own.
const PlaceholderSecret = "Jack Bauer is my hero."

type formPage struct {
	GoogleEnabled bool
}

type secretsPage struct {
	Secret string
}

func (s *server) render(w http.ResponseWriter, page string, data any) *herr.Error {
	if err := s.views.Render(w, page, data); err != nil {
		return herr.Redirect(err, "Failed to render "+page, "/")
	}
	return nil
}

func (s *server) handleHome(w http.ResponseWriter, r *http.Request) *herr.Error {
	return s.render(w, views.Home, nil)
}

func (s *server) handleLoginForm(w http.ResponseWriter, r *http.Request) *herr.Error {
	return s.render(w, views.Login, formPage{GoogleEnabled: s.google.Enabled()})
}

func (s *server) handleRegisterForm(w http.ResponseWriter, r *http.Request) *herr.Error {
	return s.render(w, views.Register, formPage{GoogleEnabled: s.google.Enabled()})
}

func (s *server) handleSecrets(w http.ResponseWriter, r *http.Request) *herr.Error {
	user, ok := session.FromContext(r.Context())
	if !ok {
		return herr.ToLogin(nil, "No identity on protected route")
	}
	secret, set, err := s.store.Secret(r.Context(), user.Email)
	if err != nil {
		return herr.ToLogin(err, "Failed to read secret")
	}
	if !set || secret == "" {
		secret = PlaceholderSecret
	}
	return s.render(w, views.Secrets, secretsPage{Secret: secret})
}

func (s *server) handleSubmitForm(w http.ResponseWriter, r *http.Request) *herr.Error {
	return s.render(w, views.Submit, nil)
}

func (s *server) handleSubmit(w http.ResponseWriter, r *http.Request) *herr.Error {
	user, ok := session.FromContext(r.Context())
	if !ok {
		return herr.ToLogin(nil, "No identity on protected route")
	}
	if err := r.ParseForm(); err != nil {
		return herr.ToLogin(err, "Failed to parse form")
	}
	if err := s.store.UpdateSecret(r.Context(), user.Email, r.PostForm.Get("secret")); err != nil {
		return herr.ToLogin(err, "Failed to update secret")
	}
	http.Redirect(w, r, "/secrets", http.StatusFound)
	return nil
}

func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) *herr.Error {
	if err := r.ParseForm(); err != nil {
		return herr.ToLogin(err, "Failed to parse form")
	}
	creds := auth.PasswordCredentials{
		Email:    r.PostForm.Get("username"),
		Password: r.PostForm.Get("password"),
	}
	if creds.Email == "" || creds.Password == "" {
		auth.Record("local", &auth.Failure{Reason: auth.ReasonBadCredential})
		return herr.ToLogin(nil, "Missing credentials")
	}

	user, err := s.local.Authenticate(r.Context(), creds)
	auth.Record("local", err)
	if err != nil {
		reason := auth.FailureReason(err)
		if reason == auth.ReasonInternal {
			return herr.ToLogin(err, "Login failed")
		}
		return herr.ToLogin(nil, "Login failed: "+string(reason))
	}

	if err := s.sessionManager.Establish(r.Context(), w, r, user); err != nil {
		return herr.ToLogin(err, "Failed to create session")
	}
	slog.Info("User logged in", "method", "local", "email", user.Email)
	http.Redirect(w, r, "/secrets", http.StatusFound)
	return nil
}

func (s *server) handleRegister(w http.ResponseWriter, r *http.Request) *herr.Error {
	if err := r.ParseForm(); err != nil {
		return herr.Redirect(err, "Failed to parse form", "/register")
	}
	email := r.PostForm.Get("username")
	plaintext := r.PostForm.Get("password")
	if email == "" || plaintext == "" {
		return herr.Redirect(nil, "Missing registration fields", "/register")
	}

	ctx := r.Context()
	_, err := s.store.UserByEmail(ctx, email)
	if err == nil {
		return herr.ToLogin(nil, "Email already registered")
	}
	if !errors.Is(err, store.ErrUserNotFound) {
		return herr.Redirect(err, "Failed to check existing user", "/register")
	}

	hash, err := s.hasher.Hash(plaintext)
	if err != nil {
		return herr.Redirect(err, "Failed to hash password", "/register")
	}
	user := &store.User{Email: email, PasswordHash: hash, Kind: store.KindLocal}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrUserExists) {
			return herr.ToLogin(nil, "Email already registered")
		}
		return herr.Redirect(err, "Failed to create user", "/register")
	}

	if err := s.sessionManager.Establish(ctx, w, r, user); err != nil {
		return herr.Redirect(err, "Failed to create session", "/register")
	}
	slog.Info("User registered", "email", user.Email)
	http.Redirect(w, r, "/secrets", http.StatusFound)
	return nil
}

func (s *server) handleLogout(w http.ResponseWriter, r *http.Request) *herr.Error {
	if err := s.sessionManager.Clear(r.Context(), w, r); err != nil {
		return herr.Redirect(err, "Failed to clear session", "/")
	}
	http.Redirect(w, r, "/", http.StatusFound)
	return nil
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Write([]byte("ok"))
}
