// Package config gathers the process settings from flags and the environment.
// Every flag has an environment variable; godotenv loads .env into the
// environment before flags are parsed.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/crypto/bcrypt"
)

const (
	defaultSQLitePath  = "secrets.db"
	defaultCallbackURL = "http://localhost:3000/auth/google/secrets"
)

type Postgres struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

type Config struct {
	Port        int
	DatabaseURL string
	Postgres    Postgres

	SessionSecret  string
	SessionTTL     time.Duration
	SessionRefresh time.Duration
	SecureCookies  bool

	GoogleClientID     string
	GoogleClientSecret string
	GoogleCallbackURL  string

	BcryptCost int
	LogFormat  string
}

func Default() *Config {
	return &Config{
		Port:              3000,
		Postgres:          Postgres{Port: 5432},
		SessionTTL:        30 * 24 * time.Hour,
		SessionRefresh:    15 * 24 * time.Hour,
		GoogleCallbackURL: defaultCallbackURL,
		BcryptCost:        bcrypt.DefaultCost,
		LogFormat:         "text",
	}
}

// DatabaseFlags are shared by every command that opens the store.
func (c *Config) DatabaseFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "database-url",
			Usage:       "Postgres URL or SQLite file path",
			EnvVars:     []string{"DATABASE_URL"},
			Destination: &c.DatabaseURL,
		},
		&cli.StringFlag{
			Name:        "pg-host",
			Usage:       "Postgres host, used when database-url is empty",
			EnvVars:     []string{"PG_HOST"},
			Destination: &c.Postgres.Host,
		},
		&cli.IntFlag{
			Name:        "pg-port",
			EnvVars:     []string{"PG_PORT"},
			Value:       c.Postgres.Port,
			Destination: &c.Postgres.Port,
		},
		&cli.StringFlag{
			Name:        "pg-user",
			EnvVars:     []string{"PG_USER"},
			Destination: &c.Postgres.User,
		},
		&cli.StringFlag{
			Name:        "pg-password",
			EnvVars:     []string{"PG_PASSWORD"},
			Destination: &c.Postgres.Password,
		},
		&cli.StringFlag{
			Name:        "pg-database",
			EnvVars:     []string{"PG_DATABASE"},
			Destination: &c.Postgres.Database,
		},
		c.logFormatFlag(),
	}
}

func (c *Config) ServeFlags() []cli.Flag {
	return append(c.DatabaseFlags(),
		&cli.IntFlag{
			Name:        "port",
			Usage:       "Port to listen on",
			EnvVars:     []string{"PORT"},
			Value:       c.Port,
			Destination: &c.Port,
		},
		&cli.StringFlag{
			Name:        "session-secret",
			Usage:       "Key used to sign session cookies",
			EnvVars:     []string{"SESSION_SECRET"},
			Destination: &c.SessionSecret,
		},
		&cli.DurationFlag{
			Name:        "session-ttl",
			EnvVars:     []string{"SESSION_TTL"},
			Value:       c.SessionTTL,
			Destination: &c.SessionTTL,
		},
		&cli.DurationFlag{
			Name:        "session-refresh",
			Usage:       "Sessions used within this long of expiring are extended",
			EnvVars:     []string{"SESSION_REFRESH_THRESHOLD"},
			Value:       c.SessionRefresh,
			Destination: &c.SessionRefresh,
		},
		&cli.BoolFlag{
			Name:        "secure-cookies",
			Usage:       "Mark cookies Secure (serve over HTTPS)",
			EnvVars:     []string{"SECURE_COOKIES"},
			Destination: &c.SecureCookies,
		},
		&cli.StringFlag{
			Name:        "google-client-id",
			Usage:       "OAuth client id; Google login is disabled when empty",
			EnvVars:     []string{"GOOGLE_CLIENT_ID"},
			Destination: &c.GoogleClientID,
		},
		&cli.StringFlag{
			Name:        "google-client-secret",
			EnvVars:     []string{"GOOGLE_CLIENT_SECRET"},
			Destination: &c.GoogleClientSecret,
		},
		&cli.StringFlag{
			Name:        "google-callback-url",
			Usage:       "Must match the redirect URI registered with Google",
			EnvVars:     []string{"GOOGLE_CALLBACK_URL"},
			Value:       c.GoogleCallbackURL,
			Destination: &c.GoogleCallbackURL,
		},
		&cli.IntFlag{
			Name:        "bcrypt-cost",
			EnvVars:     []string{"BCRYPT_COST"},
			Value:       c.BcryptCost,
			Destination: &c.BcryptCost,
		},
	)
}

func (c *Config) logFormatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:        "log-format",
		Usage:       "text or json",
		EnvVars:     []string{"LOG_FORMAT"},
		Value:       c.LogFormat,
		Destination: &c.LogFormat,
	}
}

// DSN picks the database: an explicit URL, then one built from the Postgres
// settings, then the local SQLite file.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	if c.Postgres.Host == "" {
		return defaultSQLitePath
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(c.Postgres.Host, strconv.Itoa(c.Postgres.Port)),
		Path:   "/" + c.Postgres.Database,
	}
	if c.Postgres.User != "" {
		u.User = url.UserPassword(c.Postgres.User, c.Postgres.Password)
	}
	return u.String()
}

func (c *Config) Validate() error {
	var errs []error
	if c.SessionSecret == "" {
		errs = append(errs, errors.New("session secret is required"))
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("bcrypt cost %d outside [%d, %d]", c.BcryptCost, bcrypt.MinCost, bcrypt.MaxCost))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("session ttl must be positive"))
	}
	if c.SessionRefresh < 0 || c.SessionRefresh > c.SessionTTL {
		errs = append(errs, errors.New("session refresh threshold must be between 0 and the session ttl"))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

func (c *Config) Logger(w io.Writer) *slog.Logger {
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, nil))
	}
	return slog.New(slog.NewTextHandler(w, nil))
}
