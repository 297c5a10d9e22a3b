package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Andre-tech671/secrets-google-signup-webapp/session"
	"github.com/google/uuid"
)

type Middleware func(http.Handler) http.Handler

func Chain(handler http.Handler, m ...Middleware) http.Handler {
	for i := len(m) - 1; i >= 0; i-- {
		handler = m[i](handler)
	}
	return handler
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func Logger() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := uuid.NewString()
			w.Header().Set("X-Request-Id", requestID)
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			slog.Info("request completed",
				"id", requestID,
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"ip", r.RemoteAddr,
				"duration", time.Since(start),
			)
		})
	}
}

// Session resolves the request's session, if any, and attaches the identity
// to the request context. Requests without a usable session pass through
// anonymously.
func Session(sm *session.Manager) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := sm.Load(w, r)
			if err != nil {
				if !errors.Is(err, session.ErrNoSession) {
					slog.Error("error loading session", "error", err)
				} else if _, cerr := r.Cookie(session.CookieName); cerr == nil {
					// stale or forged
					sm.DeleteSessionCookie(w)
				}
				next.ServeHTTP(w, r)
				return
			}
			ctx := session.WithIdentity(r.Context(), *user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Protect sends anonymous requests for protectedRoutes to the login page.
// It must run after Session.
func Protect(protectedRoutes map[string]struct{}) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, protected := protectedRoutes[r.URL.Path]; !protected {
				next.ServeHTTP(w, r)
				return
			}
			if !session.IsAuthenticated(r) {
				slog.Info("no active session", "path", r.URL.Path)
				http.Redirect(w, r, "/login", http.StatusFound)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
