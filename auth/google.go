package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Andre-tech671/secrets-google-signup-webapp/cryptoutil"
	"github.com/Andre-tech671/secrets-google-signup-webapp/herr"
	"github.com/Andre-tech671/secrets-google-signup-webapp/session"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const (
	googleUserInfoURL          = "https://www.googleapis.com/oauth2/v3/userinfo"
	googleOAuthStateCookieName = "google_oauth_state"
	googleOAuthStateTTL        = 10 * time.Minute
)

var scopes = []string{"profile", "email"}

type GoogleCfg struct {
	ClientID     string
	ClientSecret string
	// CallbackURL must match the redirect URI registered with Google exactly.
	CallbackURL string
	Secure      bool
	// Endpoint and UserInfoURL default to Google's.
	Endpoint    oauth2.Endpoint
	UserInfoURL string
}

// Google drives the authorization code flow and hands the resulting profile
// to a federated Authenticator.
type Google struct {
	oauth       *oauth2.Config
	userInfoURL string
	secure      bool
	states      *stateStore
	client      *http.Client
	federated   Authenticator
	sessionMgr  *session.Manager
}

func NewGoogle(ctx context.Context, cfg GoogleCfg, federated Authenticator, sessionMgr *session.Manager) (*Google, error) {
	states, err := newStateStore(ctx, googleOAuthStateTTL)
	if err != nil {
		return nil, err
	}
	endpoint := cfg.Endpoint
	if endpoint.AuthURL == "" {
		endpoint = endpoints.Google
	}
	userInfoURL := cfg.UserInfoURL
	if userInfoURL == "" {
		userInfoURL = googleUserInfoURL
	}
	return &Google{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.CallbackURL,
			Endpoint:     endpoint,
			Scopes:       scopes,
		},
		userInfoURL: userInfoURL,
		secure:      cfg.Secure,
		states:      states,
		client:      &http.Client{Timeout: 10 * time.Second},
		federated:   federated,
		sessionMgr:  sessionMgr,
	}, nil
}

func (g *Google) Enabled() bool {
	return g.oauth.ClientID != ""
}

func (g *Google) Close() error {
	return g.states.Close()
}

func (g *Google) HandleLogin(w http.ResponseWriter, r *http.Request) *herr.Error {
	if !g.Enabled() {
		return herr.ToLogin(nil, "Google login is not configured")
	}
	state, verifier, err := g.states.Issue()
	if err != nil {
		return herr.ToLogin(err, "Failed to create OAuth state")
	}

	authorizationURL := g.oauth.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", cryptoutil.CreateS256CodeChallenge(verifier)),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)

	http.SetCookie(w, &http.Cookie{
		Name:     googleOAuthStateCookieName,
		Value:    state,
		Path:     "/auth/google",
		MaxAge:   int(googleOAuthStateTTL.Seconds()),
		HttpOnly: true,
		Secure:   g.secure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, authorizationURL, http.StatusFound)
	return nil
}

func (g *Google) HandleCallback(w http.ResponseWriter, r *http.Request) *herr.Error {
	query := r.URL.Query()
	if providerErr := query.Get("error"); providerErr != "" {
		Record("google", fail(ReasonBadCredential, nil))
		return herr.ToLogin(nil, "Provider returned error "+providerErr)
	}

	code := query.Get("code")
	state := query.Get("state")
	storedState, err := r.Cookie(googleOAuthStateCookieName)
	if err != nil || state == "" || storedState.Value != state || code == "" {
		return herr.ToLogin(err, "Invalid OAuth state or missing code")
	}

	http.SetCookie(w, &http.Cookie{
		Name:     googleOAuthStateCookieName,
		Value:    "",
		Path:     "/auth/google",
		MaxAge:   -1,
		HttpOnly: true,
	})

	verifier, ok := g.states.Consume(state)
	if !ok {
		return herr.ToLogin(nil, "Unknown or reused OAuth state")
	}

	ctx := r.Context()
	profile, err := g.Profile(ctx, code, verifier)
	if err != nil {
		Record("google", fail(ReasonInternal, err))
		return herr.ToLogin(err, "Failed to fetch Google profile")
	}

	user, err := g.federated.Authenticate(ctx, profile)
	Record("google", err)
	if err != nil {
		return herr.ToLogin(err, "Federated authentication failed")
	}

	if err := g.sessionMgr.Establish(ctx, w, r, user); err != nil {
		return herr.ToLogin(err, "Failed to create session")
	}
	slog.Info("User logged in", "method", "google", "email", user.Email)
	http.Redirect(w, r, "/secrets", http.StatusFound)
	return nil
}

// Profile exchanges code for a token and reads the userinfo endpoint.
func (g *Google) Profile(ctx context.Context, code, verifier string) (ProviderProfile, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.client)
	token, err := g.oauth.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return ProviderProfile{}, fmt.Errorf("error exchanging code: %w", err)
	}

	resp, err := g.oauth.Client(ctx, token).Get(g.userInfoURL)
	if err != nil {
		return ProviderProfile{}, fmt.Errorf("error requesting user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ProviderProfile{}, fmt.Errorf("user info endpoint returned %d", resp.StatusCode)
	}

	var profile ProviderProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return ProviderProfile{}, fmt.Errorf("error decoding user info: %w", err)
	}
	if profile.Email == "" {
		return ProviderProfile{}, errors.New("user info has no email")
	}
	return profile, nil
}
