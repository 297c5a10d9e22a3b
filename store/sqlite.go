package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

type sqliteStore struct {
	db    *sql.DB
	mutex sync.Mutex
}

func newSQLiteStore(ctx context.Context, path string) (*sqliteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	// pragmas are per connection
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("error enabling WAL mode: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("error enabling foreign keys: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	if err := migrate(ctx, db, goose.DialectSQLite3, "migrations/sqlite"); err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing tables: %w", err)
	}

	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) CreateUser(ctx context.Context, user *User) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC().Truncate(time.Second)
	}
	query := `
        INSERT INTO users (email, password, kind, secret, created_at)
        VALUES (?, ?, ?, ?, ?)
    `
	_, err := s.db.ExecContext(ctx, query, user.Email, user.PasswordHash, string(user.Kind), user.Secret, user.CreatedAt.Unix())
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return ErrUserExists
		}
		return fmt.Errorf("error creating user: %w", err)
	}
	return nil
}

func (s *sqliteStore) UserByEmail(ctx context.Context, email string) (*User, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	user := &User{}
	var (
		secret    sql.NullString
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx, `
        SELECT email, password, kind, secret, created_at
        FROM users
        WHERE email = ?
    `, email).Scan(&user.Email, &user.PasswordHash, &user.Kind, &secret, &createdAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error getting user: %w", err)
	}
	if secret.Valid {
		user.Secret = &secret.String
	}
	user.CreatedAt = time.Unix(createdAt, 0).UTC()
	return user, nil
}

func (s *sqliteStore) Secret(ctx context.Context, email string) (string, bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	var secret sql.NullString
	err := s.db.QueryRowContext(ctx, "SELECT secret FROM users WHERE email = ?", email).Scan(&secret)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("error getting secret: %w", err)
	}
	return secret.String, secret.Valid, nil
}

func (s *sqliteStore) UpdateSecret(ctx context.Context, email string, secret string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	_, err := s.db.ExecContext(ctx, "UPDATE users SET secret = ? WHERE email = ?", secret, email)
	if err != nil {
		return fmt.Errorf("error updating secret: %w", err)
	}
	return nil
}

func (s *sqliteStore) CreateSession(ctx context.Context, session *Session) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	err = tx.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE email = ?)", session.Email).Scan(&exists)
	if err != nil {
		return fmt.Errorf("error checking user existence: %w", err)
	}
	if !exists {
		return ErrUserNotFound
	}

	query := "INSERT INTO sessions (id, email, identity, expires_at) VALUES (?, ?, ?, ?)"
	_, err = tx.ExecContext(ctx, query, session.ID, session.Email, session.Identity, session.ExpiresAt)
	if err != nil {
		return fmt.Errorf("error creating session: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}
	return nil
}

func (s *sqliteStore) SessionByID(ctx context.Context, sessionID string) (*Session, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	session := &Session{}
	err := s.db.QueryRowContext(ctx, `
        SELECT id, email, identity, expires_at
        FROM sessions
        WHERE id = ?
    `, sessionID).Scan(&session.ID, &session.Email, &session.Identity, &session.ExpiresAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error getting session: %w", err)
	}
	return session, nil
}

func (s *sqliteStore) RefreshSession(ctx context.Context, sessionID string, newExpiresAt int64) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	_, err := s.db.ExecContext(ctx, "UPDATE sessions SET expires_at = ? WHERE id = ?", newExpiresAt, sessionID)
	if err != nil {
		return fmt.Errorf("error updating session: %w", err)
	}
	return nil
}

func (s *sqliteStore) DeleteSessionByID(ctx context.Context, sessionID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	_, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", sessionID)
	if err != nil {
		return fmt.Errorf("error deleting session by id: %w", err)
	}
	return nil
}

func (s *sqliteStore) DeleteExpiredSessions(ctx context.Context, now int64) (int64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	result, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at <= ?", now)
	if err != nil {
		return 0, fmt.Errorf("error deleting expired sessions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("error getting rows affected: %w", err)
	}
	return n, nil
}

func (s *sqliteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}
