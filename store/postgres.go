package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

type postgresStore struct {
	db *sql.DB
}

func newPostgresStore(ctx context.Context, dsn string) (*postgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	if err := migrate(ctx, db, goose.DialectPostgres, "migrations/postgres"); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	return &postgresStore{db: db}, nil
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func (s *postgresStore) CreateUser(ctx context.Context, user *User) error {
	query :=
		`INSERT INTO users (email, password, kind, secret)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at`

	err := s.db.QueryRowContext(ctx, query,
		user.Email, user.PasswordHash, string(user.Kind), user.Secret).Scan(&user.CreatedAt)
	if err != nil {
		if pgCode(err) == pgUniqueViolation {
			return ErrUserExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (s *postgresStore) UserByEmail(ctx context.Context, email string) (*User, error) {
	query :=
		`SELECT email, password, kind, secret, created_at FROM users
		 WHERE email = $1`

	user := &User{}
	var secret sql.NullString
	err := s.db.QueryRowContext(ctx, query, email).Scan(&user.Email, &user.PasswordHash, &user.Kind, &secret, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if secret.Valid {
		user.Secret = &secret.String
	}
	return user, nil
}

func (s *postgresStore) Secret(ctx context.Context, email string) (string, bool, error) {
	var secret sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT secret FROM users WHERE email = $1`, email).Scan(&secret)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("db error: %w", err)
	}
	return secret.String, secret.Valid, nil
}

func (s *postgresStore) UpdateSecret(ctx context.Context, email string, secret string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET secret = $1 WHERE email = $2`, secret, email)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (s *postgresStore) CreateSession(ctx context.Context, session *Session) error {
	query :=
		`INSERT INTO sessions (id, email, identity, expires_at)
		 VALUES ($1, $2, $3, $4)`

	_, err := s.db.ExecContext(ctx, query, session.ID, session.Email, session.Identity, session.ExpiresAt)
	if err != nil {
		if pgCode(err) == pgForeignKeyViolation {
			return ErrUserNotFound
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (s *postgresStore) SessionByID(ctx context.Context, sessionID string) (*Session, error) {
	query :=
		`SELECT id, email, identity, expires_at FROM sessions
		 WHERE id = $1`

	session := &Session{}
	err := s.db.QueryRowContext(ctx, query, sessionID).Scan(&session.ID, &session.Email, &session.Identity, &session.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return session, nil
}

func (s *postgresStore) RefreshSession(ctx context.Context, sessionID string, newExpiresAt int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET expires_at = $1 WHERE id = $2`, newExpiresAt, sessionID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (s *postgresStore) DeleteSessionByID(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (s *postgresStore) DeleteExpiredSessions(ctx context.Context, now int64) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (s *postgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *postgresStore) Close() error {
	return s.db.Close()
}
