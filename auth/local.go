package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Andre-tech671/secrets-google-signup-webapp/store"
)

type Hasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hash string) (bool, error)
}

// Local authenticates email/password pairs.
type Local struct {
	store  store.Store
	hasher Hasher
}

func NewLocal(store store.Store, hasher Hasher) *Local {
	return &Local{store: store, hasher: hasher}
}

func (l *Local) Authenticate(ctx context.Context, creds Credentials) (*store.User, error) {
	pc, ok := creds.(PasswordCredentials)
	if !ok {
		return nil, fail(ReasonInternal, errWrongCredentials)
	}

	user, err := l.store.UserByEmail(ctx, pc.Email)
	if errors.Is(err, store.ErrUserNotFound) {
		return nil, fail(ReasonUnknownIdentity, nil)
	}
	if err != nil {
		slog.Error("Error looking up user", "error", err)
		return nil, fail(ReasonInternal, err)
	}

	// federated accounts hold a sentinel, not a hash
	if user.Kind != store.KindLocal {
		return nil, fail(ReasonAccountKind, nil)
	}

	match, err := l.hasher.Verify(pc.Password, user.PasswordHash)
	if err != nil {
		slog.Error("Error verifying password", "error", err)
		return nil, fail(ReasonInternal, err)
	}
	if !match {
		return nil, fail(ReasonBadCredential, nil)
	}
	return user, nil
}
