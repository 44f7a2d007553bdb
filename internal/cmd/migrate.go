package cmd

import (
	"context"
	"log/slog"

	"postsync/internal/cmd/flags"
	"postsync/internal/core"
	"postsync/internal/persistence"
	"postsync/pkg/clicfg"

	"github.com/urfave/cli/v3"
)

var migrateCmd = &cli.Command{
	Name:  "migrate",
	Usage: "Run database migrations",
	Flags: []cli.Flag{
		flags.DatabaseURL,
	},
	Commands: []*cli.Command{
		{
			Name:  "up",
			Usage: "Apply all pending migrations",
			Action: func(ctx context.Context, c *cli.Command) error {
				return withMigrator(ctx, c, func(m *persistence.Migrator) error {
					return m.Up(ctx)
				})
			},
		},
		{
			Name:  "down",
			Usage: "Roll back the last migration",
			Action: func(ctx context.Context, c *cli.Command) error {
				return withMigrator(ctx, c, func(m *persistence.Migrator) error {
					return m.Down(ctx)
				})
			},
		},
	},
}

func withMigrator(ctx context.Context, c *cli.Command, f func(*persistence.Migrator) error) error {
	cfg := core.Config{}
	if err := cfg.LoadEnv(); err != nil {
		return err
	}
	if err := clicfg.ParseFlags(c, &cfg); err != nil {
		return err
	}

	db := &persistence.DB{Config: &cfg}
	if err := db.Init(ctx); err != nil {
		return err
	}
	defer db.Shutdown(ctx) //nolint:errcheck

	migrator := &persistence.Migrator{Logger: slog.Default(), DB: db}
	if err := migrator.Init(ctx); err != nil {
		return err
	}

	return f(migrator)
}
