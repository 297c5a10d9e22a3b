package store

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrUserExists      = errors.New("user already exists")
	ErrSessionNotFound = errors.New("session not found")
)

// Store is the credential store plus the server side half of sessions.
// Email lookups are exact and case-sensitive.
type Store interface {
	CreateUser(ctx context.Context, user *User) error
	UserByEmail(ctx context.Context, email string) (*User, error)
	// Secret returns the stored secret and whether one was ever set.
	Secret(ctx context.Context, email string) (string, bool, error)
	UpdateSecret(ctx context.Context, email string, secret string) error

	CreateSession(ctx context.Context, session *Session) error
	SessionByID(ctx context.Context, sessionID string) (*Session, error)
	RefreshSession(ctx context.Context, sessionID string, newExpiresAt int64) error
	DeleteSessionByID(ctx context.Context, sessionID string) error
	DeleteExpiredSessions(ctx context.Context, now int64) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}

// New opens a store for dsn. postgres:// and postgresql:// URLs use the
// Postgres backend, anything else is treated as a SQLite file path.
func New(ctx context.Context, dsn string) (Store, error) {
	if IsPostgres(dsn) {
		s, err := newPostgresStore(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	s, err := newSQLiteStore(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func IsPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}
