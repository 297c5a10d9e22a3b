package store

import "time"

// Kind records how an account authenticates.
type Kind string

const (
	KindLocal  Kind = "local"
	KindGoogle Kind = "google"
)

// GoogleSentinel is written to the password column of federated accounts.
// It is not a bcrypt hash and must never be verified.
const GoogleSentinel = "google"

type User struct {
	Email        string    `json:"email"`
	PasswordHash string    `json:"password"`
	Kind         Kind      `json:"kind"`
	Secret       *string   `json:"secret,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type Session struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Identity  []byte `json:"identity"`
	ExpiresAt int64  `json:"expires_at"`
}
