package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Andre-tech671/secrets-google-signup-webapp/store"
)

// Federated finds or creates the account for a provider-asserted email.
// An existing account with the same email is reused whatever its kind.
type Federated struct {
	store store.Store
}

func NewFederated(store store.Store) *Federated {
	return &Federated{store: store}
}

func (f *Federated) Authenticate(ctx context.Context, creds Credentials) (*store.User, error) {
	profile, ok := creds.(ProviderProfile)
	if !ok {
		return nil, fail(ReasonInternal, errWrongCredentials)
	}
	if profile.Email == "" || !profile.EmailVerified {
		return nil, fail(ReasonBadCredential, errors.New("profile has no verified email"))
	}

	user, err := f.store.UserByEmail(ctx, profile.Email)
	if err == nil {
		if user.Kind != store.KindGoogle {
			slog.Info("Federated login merged into existing account", "email", user.Email, "kind", user.Kind)
		}
		return user, nil
	}
	if !errors.Is(err, store.ErrUserNotFound) {
		slog.Error("Error reading user from db", "error", err)
		return nil, fail(ReasonInternal, err)
	}

	user = &store.User{
		Email:        profile.Email,
		PasswordHash: store.GoogleSentinel,
		Kind:         store.KindGoogle,
	}
	err = f.store.CreateUser(ctx, user)
	if errors.Is(err, store.ErrUserExists) {
		// lost an insert race with a concurrent callback or registration
		user, err = f.store.UserByEmail(ctx, profile.Email)
	}
	if err != nil {
		slog.Error("Failed to create new user", "error", err, "email", profile.Email)
		return nil, fail(ReasonInternal, err)
	}
	return user, nil
}
