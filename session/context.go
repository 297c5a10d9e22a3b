package session

import (
	"context"
	"net/http"

	"github.com/Andre-tech671/secrets-google-signup-webapp/store"
)

type contextKey struct{}

// WithIdentity returns a copy of ctx carrying user. The value is stored by
// copy so handlers cannot mutate it.
func WithIdentity(ctx context.Context, user store.User) context.Context {
	return context.WithValue(ctx, contextKey{}, user)
}

func FromContext(ctx context.Context) (store.User, bool) {
	user, ok := ctx.Value(contextKey{}).(store.User)
	return user, ok
}

func IsAuthenticated(r *http.Request) bool {
	_, ok := FromContext(r.Context())
	return ok
}
