package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Andre-tech671/secrets-google-signup-webapp/cryptoutil"
	"github.com/Andre-tech671/secrets-google-signup-webapp/metrics"
	"github.com/Andre-tech671/secrets-google-signup-webapp/store"
)

const CookieName = "session"

// ErrNoSession means the request carries no usable session. It covers a
// missing cookie, a bad signature, an unknown row and an expired row.
var ErrNoSession = errors.New("no session")

type Config struct {
	// Secret signs session cookies. Changing it logs everybody out.
	Secret           string
	TTL              time.Duration
	RefreshThreshold time.Duration
	Secure           bool
}

type Manager struct {
	store            store.Store
	secret           []byte
	ttl              time.Duration
	refreshThreshold time.Duration
	isProd           bool
	now              func() time.Time
}

func NewManager(store store.Store, cfg Config) *Manager {
	return &Manager{
		store:            store,
		secret:           []byte(cfg.Secret),
		ttl:              cfg.TTL,
		refreshThreshold: cfg.RefreshThreshold,
		isProd:           cfg.Secure,
		now:              time.Now,
	}
}

// Establish attaches user to a new session and sets the cookie. Any session
// already referenced by r is discarded first.
func (m *Manager) Establish(ctx context.Context, w http.ResponseWriter, r *http.Request, user *store.User) error {
	if token, err := m.tokenFromRequest(r); err == nil {
		if err := m.store.DeleteSessionByID(ctx, cryptoutil.ID(token)); err != nil {
			slog.Warn("Error deleting previous session", "err", err)
		}
	}

	token, err := cryptoutil.Random()
	if err != nil {
		return err
	}
	identity, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("error encoding identity: %w", err)
	}

	expiresAt := m.newExpiresAt()
	session := &store.Session{
		ID:        cryptoutil.ID(token),
		Email:     user.Email,
		Identity:  identity,
		ExpiresAt: expiresAt.Unix(),
	}
	if err := m.store.CreateSession(ctx, session); err != nil {
		return fmt.Errorf("error creating session: %w", err)
	}
	return m.SetSessionCookie(w, token, expiresAt)
}

// Load resolves the identity behind r's cookie, sliding the expiry forward
// when the session is inside the refresh window.
func (m *Manager) Load(w http.ResponseWriter, r *http.Request) (*store.User, error) {
	token, err := m.tokenFromRequest(r)
	if err != nil {
		return nil, err
	}

	ctx := r.Context()
	session, err := m.store.SessionByID(ctx, cryptoutil.ID(token))
	if errors.Is(err, store.ErrSessionNotFound) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, err
	}

	now := m.now()
	expiresAt := time.Unix(session.ExpiresAt, 0)

	if !now.Before(expiresAt) {
		if err := m.store.DeleteSessionByID(ctx, session.ID); err != nil {
			return nil, fmt.Errorf("error deleting expired session: %w", err)
		}
		return nil, ErrNoSession
	}

	thresholdTime := expiresAt.Add(-m.refreshThreshold)
	if now.After(thresholdTime) {
		newExpiresAt := m.newExpiresAt()
		if err := m.store.RefreshSession(ctx, session.ID, newExpiresAt.Unix()); err != nil {
			return nil, fmt.Errorf("error refreshing session: %w", err)
		}
		if err := m.SetSessionCookie(w, token, newExpiresAt); err != nil {
			return nil, err
		}
	}

	user := &store.User{}
	if err := json.Unmarshal(session.Identity, user); err != nil {
		return nil, fmt.Errorf("error decoding identity: %w", err)
	}
	return user, nil
}

// Clear ends the session referenced by r. The cookie is removed even when
// the row cannot be deleted.
func (m *Manager) Clear(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	defer m.DeleteSessionCookie(w)
	token, err := m.tokenFromRequest(r)
	if err != nil {
		return nil
	}
	if err := m.store.DeleteSessionByID(ctx, cryptoutil.ID(token)); err != nil {
		return fmt.Errorf("error invalidating session: %w", err)
	}
	return nil
}

// Sweep removes every expired session row.
func (m *Manager) Sweep(ctx context.Context) (int64, error) {
	n, err := m.store.DeleteExpiredSessions(ctx, m.now().Unix())
	if err != nil {
		return 0, err
	}
	metrics.SessionsSwept.Add(float64(n))
	return n, nil
}

// RunSweeper calls Sweep every interval until ctx is done.
func (m *Manager) RunSweeper(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := m.Sweep(ctx)
			if err != nil {
				slog.Error("Error sweeping expired sessions", "err", err)
				continue
			}
			if n > 0 {
				slog.Info("Swept expired sessions", "count", n)
			}
		}
	}
}

func (m *Manager) newExpiresAt() time.Time {
	return m.now().Add(m.ttl).Truncate(time.Second)
}

func (m *Manager) tokenFromRequest(r *http.Request) (string, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return "", ErrNoSession
	}
	return m.parseToken(cookie.Value)
}

func (m *Manager) SetSessionCookie(w http.ResponseWriter, token string, expiresAt time.Time) error {
	signed, err := m.signToken(token)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    signed,
		HttpOnly: true,
		Path:     "/",
		Secure:   m.isProd,
		SameSite: http.SameSiteLaxMode,
		Expires:  expiresAt,
	})
	return nil
}

func (m *Manager) DeleteSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		HttpOnly: true,
		Path:     "/",
		Secure:   m.isProd,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}
