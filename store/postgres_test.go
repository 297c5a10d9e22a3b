package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
)

func newPostgresWithMock(t *testing.T) (*postgresStore, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return &postgresStore{db: db}, mock, db
}

func TestPostgresCreateUser_Success(t *testing.T) {
	s, mock, db := newPostgresWithMock(t)
	defer db.Close()

	q := `(?s)^INSERT\s+INTO\s+users\s*\(email,\s*password,\s*kind,\s*secret\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4\)\s*RETURNING\s+created_at$`
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	mock.ExpectQuery(q).
		WithArgs("alice@example.com", "hash", "local", nil).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))

	u := &User{Email: "alice@example.com", PasswordHash: "hash", Kind: KindLocal}
	if err := s.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser error: %v", err)
	}
	if !u.CreatedAt.Equal(created) {
		t.Fatalf("expected created_at %v, got %v", created, u.CreatedAt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPostgresCreateUser_Duplicate(t *testing.T) {
	s, mock, db := newPostgresWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`INSERT\s+INTO\s+users`).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value"})

	err := s.CreateUser(context.Background(), &User{Email: "alice@example.com", PasswordHash: "hash", Kind: KindLocal})
	if !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestPostgresCreateUser_DBError(t *testing.T) {
	s, mock, db := newPostgresWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`INSERT\s+INTO\s+users`).WillReturnError(errors.New("db down"))

	err := s.CreateUser(context.Background(), &User{Email: "alice@example.com", PasswordHash: "hash", Kind: KindLocal})
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestPostgresUserByEmail(t *testing.T) {
	s, mock, db := newPostgresWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT\s+email,\s*password,\s*kind,\s*secret,\s*created_at\s+FROM\s+users\s+WHERE\s+email\s*=\s*\$1$`
	mock.ExpectQuery(q).
		WithArgs("alice@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"email", "password", "kind", "secret", "created_at"}).
			AddRow("alice@example.com", "google", "google", "shh", time.Now()))
	mock.ExpectQuery(q).
		WithArgs("bob@example.com").
		WillReturnError(sql.ErrNoRows)

	u, err := s.UserByEmail(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("UserByEmail error: %v", err)
	}
	if u.Kind != KindGoogle || u.Secret == nil || *u.Secret != "shh" {
		t.Fatalf("unexpected user: %+v", u)
	}

	if _, err := s.UserByEmail(context.Background(), "bob@example.com"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestPostgresSecret(t *testing.T) {
	s, mock, db := newPostgresWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT\s+secret\s+FROM\s+users`).
		WithArgs("alice@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"secret"}).AddRow(nil))
	mock.ExpectExec(`UPDATE\s+users\s+SET\s+secret\s*=\s*\$1\s+WHERE\s+email\s*=\s*\$2`).
		WithArgs("X", "alice@example.com").
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, ok, err := s.Secret(context.Background(), "alice@example.com")
	if err != nil || ok {
		t.Fatalf("expected unset secret, got ok=%v err=%v", ok, err)
	}
	if err := s.UpdateSecret(context.Background(), "alice@example.com", "X"); err != nil {
		t.Fatalf("UpdateSecret error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPostgresCreateSession_UnknownUser(t *testing.T) {
	s, mock, db := newPostgresWithMock(t)
	defer db.Close()

	mock.ExpectExec(`INSERT\s+INTO\s+sessions`).
		WillReturnError(&pgconn.PgError{Code: "23503"})

	err := s.CreateSession(context.Background(), &Session{ID: "x", Email: "ghost@example.com", Identity: []byte(`{}`)})
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestPostgresSessionLifecycle(t *testing.T) {
	s, mock, db := newPostgresWithMock(t)
	defer db.Close()
	ctx := context.Background()

	mock.ExpectQuery(`SELECT\s+id,\s*email,\s*identity,\s*expires_at\s+FROM\s+sessions`).
		WithArgs("sid").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "identity", "expires_at"}).
			AddRow("sid", "alice@example.com", []byte(`{"email":"alice@example.com"}`), int64(100)))
	mock.ExpectExec(`UPDATE\s+sessions\s+SET\s+expires_at`).
		WithArgs(int64(200), "sid").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE\s+FROM\s+sessions\s+WHERE\s+expires_at\s*<=\s*\$1`).
		WithArgs(int64(150)).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`DELETE\s+FROM\s+sessions\s+WHERE\s+id\s*=\s*\$1`).
		WithArgs("sid").
		WillReturnResult(sqlmock.NewResult(0, 1))

	got, err := s.SessionByID(ctx, "sid")
	if err != nil {
		t.Fatalf("SessionByID error: %v", err)
	}
	if got.Email != "alice@example.com" || got.ExpiresAt != 100 {
		t.Fatalf("unexpected session: %+v", got)
	}
	if err := s.RefreshSession(ctx, "sid", 200); err != nil {
		t.Fatalf("RefreshSession error: %v", err)
	}
	n, err := s.DeleteExpiredSessions(ctx, 150)
	if err != nil || n != 3 {
		t.Fatalf("DeleteExpiredSessions = %d, %v", n, err)
	}
	if err := s.DeleteSessionByID(ctx, "sid"); err != nil {
		t.Fatalf("DeleteSessionByID error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
