package server

import (
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Andre-tech671/secrets-google-signup-webapp/auth"
	"github.com/Andre-tech671/secrets-google-signup-webapp/session"
	"github.com/Andre-tech671/secrets-google-signup-webapp/store"
	"github.com/steinfletcher/apitest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// spyStore counts reads and writes of user secrets.
type spyStore struct {
	store.Store
	secretCalls atomic.Int32
}

func (s *spyStore) Secret(ctx context.Context, email string) (string, bool, error) {
	s.secretCalls.Add(1)
	return s.Store.Secret(ctx, email)
}

func (s *spyStore) UpdateSecret(ctx context.Context, email, secret string) error {
	s.secretCalls.Add(1)
	return s.Store.UpdateSecret(ctx, email, secret)
}

func newTestServer(t *testing.T) (*server, *spyStore) {
	t.Helper()
	db, err := store.New(context.Background(), filepath.Join(t.TempDir(), "server.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	spy := &spyStore{Store: db}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	s, err := New(ctx, ServerCfg{
		Store: spy,
		Session: session.Config{
			Secret:           "test-secret",
			TTL:              time.Hour,
			RefreshThreshold: 30 * time.Minute,
		},
		BcryptCost: 4,
		Google:     auth.GoogleCfg{},
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.google.Close() })
	return s, spy
}

// browser keeps cookies between requests and never follows redirects.
type browser struct {
	t      *testing.T
	base   string
	client *http.Client
}

func newBrowser(t *testing.T, ts *httptest.Server) *browser {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &browser{
		t:    t,
		base: ts.URL,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

type response struct {
	status   int
	location string
	body     string
}

func (b *browser) do(req *http.Request) response {
	b.t.Helper()
	resp, err := b.client.Do(req)
	require.NoError(b.t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(b.t, err)
	return response{status: resp.StatusCode, location: resp.Header.Get("Location"), body: string(body)}
}

func (b *browser) get(path string) response {
	b.t.Helper()
	req, err := http.NewRequest(http.MethodGet, b.base+path, nil)
	require.NoError(b.t, err)
	return b.do(req)
}

func (b *browser) post(path string, form url.Values) response {
	b.t.Helper()
	req, err := http.NewRequest(http.MethodPost, b.base+path, strings.NewReader(form.Encode()))
	require.NoError(b.t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return b.do(req)
}

func credentials(email, password string) url.Values {
	return url.Values{"username": {email}, "password": {password}}
}

func startTestServer(t *testing.T) (*httptest.Server, *spyStore) {
	t.Helper()
	s, spy := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts, spy
}

func TestRegisterShowsPlaceholder(t *testing.T) {
	ts, _ := startTestServer(t)
	b := newBrowser(t, ts)

	resp := b.post("/register", credentials("alice@example.com", "pw1"))
	assert.Equal(t, http.StatusFound, resp.status)
	assert.Equal(t, "/secrets", resp.location)

	resp = b.get("/secrets")
	assert.Equal(t, http.StatusOK, resp.status)
	assert.Contains(t, resp.body, PlaceholderSecret)
}

func TestDuplicateRegistration(t *testing.T) {
	ts, spy := startTestServer(t)

	first := newBrowser(t, ts)
	require.Equal(t, "/secrets", first.post("/register", credentials("alice@example.com", "pw1")).location)

	second := newBrowser(t, ts)
	resp := second.post("/register", credentials("alice@example.com", "pw2"))
	assert.Equal(t, http.StatusFound, resp.status)
	assert.Equal(t, "/login", resp.location)
	assert.Equal(t, "/login", second.get("/secrets").location, "duplicate registration must not log in")

	// the original password still rules the only row
	assert.Equal(t, "/secrets", second.post("/login", credentials("alice@example.com", "pw1")).location)
	user, err := spy.UserByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, store.KindLocal, user.Kind)
}

func TestLogin(t *testing.T) {
	ts, _ := startTestServer(t)
	require.Equal(t, "/secrets", newBrowser(t, ts).post("/register", credentials("alice@example.com", "pw1")).location)

	t.Run("right password", func(t *testing.T) {
		b := newBrowser(t, ts)
		assert.Equal(t, "/secrets", b.post("/login", credentials("alice@example.com", "pw1")).location)
		assert.Equal(t, http.StatusOK, b.get("/secrets").status)
	})

	t.Run("wrong password", func(t *testing.T) {
		b := newBrowser(t, ts)
		assert.Equal(t, "/login", b.post("/login", credentials("alice@example.com", "nope")).location)
		assert.Equal(t, "/login", b.get("/secrets").location)
	})

	t.Run("unknown email", func(t *testing.T) {
		b := newBrowser(t, ts)
		assert.Equal(t, "/login", b.post("/login", credentials("bob@example.com", "pw1")).location)
	})

	t.Run("empty fields", func(t *testing.T) {
		b := newBrowser(t, ts)
		assert.Equal(t, "/login", b.post("/login", credentials("alice@example.com", "")).location)
		assert.Equal(t, "/register", b.post("/register", credentials("", "pw1")).location)
	})
}

func TestLocalLoginAgainstFederatedAccount(t *testing.T) {
	ts, spy := startTestServer(t)
	require.NoError(t, spy.CreateUser(context.Background(), &store.User{
		Email:        "carol@example.com",
		PasswordHash: store.GoogleSentinel,
		Kind:         store.KindGoogle,
	}))

	b := newBrowser(t, ts)
	assert.Equal(t, "/login", b.post("/login", credentials("carol@example.com", "google")).location)
	assert.Equal(t, "/login", b.get("/secrets").location)
}

func TestSubmitSecret(t *testing.T) {
	ts, _ := startTestServer(t)
	b := newBrowser(t, ts)
	require.Equal(t, "/secrets", b.post("/register", credentials("alice@example.com", "pw1")).location)

	assert.Equal(t, http.StatusOK, b.get("/submit").status)
	resp := b.post("/submit", url.Values{"secret": {"I like pineapple on pizza"}})
	assert.Equal(t, "/secrets", resp.location)

	resp = b.get("/secrets")
	assert.Contains(t, resp.body, "I like pineapple on pizza")
	assert.NotContains(t, resp.body, PlaceholderSecret)
}

func TestAnonymousProtectedRoutes(t *testing.T) {
	s, spy := newTestServer(t)
	handler := s.Handler()

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		for _, path := range []string{"/secrets", "/submit"} {
			if method == http.MethodPost && path == "/secrets" {
				continue
			}
			apitest.New().
				Handler(handler).
				Method(method).
				URL(path).
				FormData("secret", "X").
				Expect(t).
				Status(http.StatusFound).
				Header("Location", "/login").
				End()
		}
	}
	assert.Zero(t, spy.secretCalls.Load(), "anonymous requests must not reach the store")
}

func TestLogout(t *testing.T) {
	ts, _ := startTestServer(t)
	b := newBrowser(t, ts)
	require.Equal(t, "/secrets", b.post("/register", credentials("alice@example.com", "pw1")).location)

	resp := b.get("/logout")
	assert.Equal(t, http.StatusFound, resp.status)
	assert.Equal(t, "/", resp.location)
	assert.Equal(t, "/login", b.get("/secrets").location)

	// logging out twice is harmless
	assert.Equal(t, "/", b.get("/logout").location)
}

func TestPublicPages(t *testing.T) {
	s, _ := newTestServer(t)
	handler := s.Handler()

	for _, path := range []string{"/", "/login", "/register"} {
		apitest.New().
			Handler(handler).
			Get(path).
			Expect(t).
			Status(http.StatusOK).
			Header("Content-Type", "text/html; charset=utf-8").
			End()
	}

	apitest.New().
		Handler(handler).
		Get("/nope").
		Expect(t).
		Status(http.StatusNotFound).
		End()
}

func TestGoogleDisabledRedirectsToLogin(t *testing.T) {
	s, _ := newTestServer(t)
	apitest.New().
		Handler(s.Handler()).
		Get("/auth/google").
		Expect(t).
		Status(http.StatusFound).
		Header("Location", "/login").
		End()
}

func TestHealthAndMetrics(t *testing.T) {
	s, _ := newTestServer(t)
	handler := s.Handler()

	apitest.New().
		Handler(handler).
		Get("/healthz").
		Expect(t).
		Status(http.StatusOK).
		Body("ok").
		End()

	apitest.New().
		Handler(handler).
		Get("/metrics").
		Expect(t).
		Status(http.StatusOK).
		End()

	require.NoError(t, s.store.Close())
	apitest.New().
		Handler(handler).
		Get("/healthz").
		Expect(t).
		Status(http.StatusServiceUnavailable).
		End()
}

func TestServeShutsDown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, "127.0.0.1:0", http.NotFoundHandler()) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
