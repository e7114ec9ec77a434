package main

import (
	"context"
	"fmt"

	"accounts/backend/internal/config"
	"accounts/backend/internal/infrastructure/postgres"
	"accounts/backend/internal/infrastructure/sqlite"

	"github.com/spf13/cobra"
)

// migrator is the schema management both stores expose.
type migrator interface {
	Migrate(ctx context.Context) error
	Rollback(ctx context.Context, steps int) error
	MigrationStatus(ctx context.Context) error
}

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Revert applied migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDatabase(cmd, func(db migrator) error {
				return db.Rollback(cmd.Context(), steps)
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to revert")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withDatabase(cmd, func(db migrator) error {
					return db.Migrate(cmd.Context())
				})
			},
		},
		down,
		&cobra.Command{
			Use:   "status",
			Short: "Show applied and pending migrations",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withDatabase(cmd, func(db migrator) error {
					return db.MigrationStatus(cmd.Context())
				})
			},
		},
	)
	return cmd
}

func withDatabase(cmd *cobra.Command, fn func(migrator) error) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	var db migrator
	switch cfg.StoreDriver {
	case config.StorePostgres:
		pg, err := postgres.New(cmd.Context(), postgres.Config{DSN: cfg.DatabaseURL, MaxConns: cfg.DatabaseMaxConns})
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer pg.Close()
		db = pg
	default:
		lite, err := sqlite.Open(cmd.Context(), sqlite.Config{DSN: cfg.SQLiteDSN})
		if err != nil {
			return fmt.Errorf("failed to open sqlite database: %w", err)
		}
		defer lite.Close()
		db = lite
	}

	if err := fn(db); err != nil {
		return err
	}
	logger.Info().Str("command", cmd.CommandPath()).Msg("migration command completed")
	return nil
}
