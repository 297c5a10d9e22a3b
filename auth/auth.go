// Package auth verifies who a request belongs to. Local checks an email and
// password against the credential store; Federated trusts a profile asserted
// by an identity provider. Both satisfy Authenticator and fail with *Failure.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/Andre-tech671/secrets-google-signup-webapp/metrics"
	"github.com/Andre-tech671/secrets-google-signup-webapp/store"
)

// Credentials is implemented by PasswordCredentials and ProviderProfile only.
type Credentials interface {
	credentials()
}

type PasswordCredentials struct {
	Email    string
	Password string
}

// ProviderProfile is the part of an identity provider's userinfo we rely on.
type ProviderProfile struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

func (PasswordCredentials) credentials() {}
func (ProviderProfile) credentials()     {}

type Authenticator interface {
	Authenticate(ctx context.Context, creds Credentials) (*store.User, error)
}

type Reason string

const (
	ReasonUnknownIdentity Reason = "unknown_identity"
	ReasonBadCredential   Reason = "bad_credential"
	ReasonAccountKind     Reason = "account_kind"
	ReasonInternal        Reason = "internal"
)

// Failure is returned by every Authenticator. Callers must not expose the
// reason to the client.
type Failure struct {
	Reason Reason
	Err    error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("authentication failed (%s): %v", f.Reason, f.Err)
	}
	return fmt.Sprintf("authentication failed (%s)", f.Reason)
}

func (f *Failure) Unwrap() error { return f.Err }

func fail(reason Reason, err error) *Failure {
	return &Failure{Reason: reason, Err: err}
}

// FailureReason extracts the reason from err, or ReasonInternal if err is
// not a *Failure.
func FailureReason(err error) Reason {
	var f *Failure
	if errors.As(err, &f) {
		return f.Reason
	}
	return ReasonInternal
}

var errWrongCredentials = errors.New("unsupported credentials type")

// Record counts one authentication attempt for method. A nil err is a success.
func Record(method string, err error) {
	outcome := "success"
	if err != nil {
		outcome = string(FailureReason(err))
	}
	metrics.AuthAttempts.WithLabelValues(method, outcome).Inc()
}
