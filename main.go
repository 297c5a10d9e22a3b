package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Andre-tech671/secrets-google-signup-webapp/auth"
	"github.com/Andre-tech671/secrets-google-signup-webapp/config"
	"github.com/Andre-tech671/secrets-google-signup-webapp/server"
	"github.com/Andre-tech671/secrets-google-signup-webapp/session"
	"github.com/Andre-tech671/secrets-google-signup-webapp/store"
	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v2"
)

func main() {
	cfg := config.Default()
	app := &cli.App{
		Name:  "secrets",
		Usage: "Share your secrets, anonymously",
		Commands: []*cli.Command{
			serveCmd(cfg),
			migrateCmd(cfg),
		},
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := app.RunContext(ctx, os.Args); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func serveCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the web server",
		Flags: cfg.ServeFlags(),
		Action: func(c *cli.Context) error {
			slog.SetDefault(cfg.Logger(os.Stderr))
			if err := cfg.Validate(); err != nil {
				return err
			}

			st, err := store.New(c.Context, cfg.DSN())
			if err != nil {
				return err
			}
			defer st.Close()

			s, err := server.New(c.Context, server.ServerCfg{
				Port:  cfg.Port,
				Store: st,
				Session: session.Config{
					Secret:           cfg.SessionSecret,
					TTL:              cfg.SessionTTL,
					RefreshThreshold: cfg.SessionRefresh,
					Secure:           cfg.SecureCookies,
				},
				BcryptCost: cfg.BcryptCost,
				Google: auth.GoogleCfg{
					ClientID:     cfg.GoogleClientID,
					ClientSecret: cfg.GoogleClientSecret,
					CallbackURL:  cfg.GoogleCallbackURL,
					Secure:       cfg.SecureCookies,
				},
			})
			if err != nil {
				return err
			}
			if cfg.GoogleClientID == "" {
				slog.Warn("GOOGLE_CLIENT_ID not set, Google login disabled")
			}
			return s.Start(c.Context)
		},
	}
}

func migrateCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply database migrations and exit",
		Flags: cfg.DatabaseFlags(),
		Action: func(c *cli.Context) error {
			slog.SetDefault(cfg.Logger(os.Stderr))
			st, err := store.New(c.Context, cfg.DSN())
			if err != nil {
				return err
			}
			slog.Info("Database is up to date")
			return st.Close()
		},
	}
}
