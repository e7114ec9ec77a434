package sqlite

import (
	"context"
	"embed"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationsDir = "migrations"

// Migrate applies all pending migrations.
func (db *Database) Migrate(ctx context.Context) error {
	return db.withGoose(func() error {
		return goose.UpContext(ctx, db.DB, migrationsDir)
	})
}

// Rollback reverts the given number of migrations, at least one.
func (db *Database) Rollback(ctx context.Context, steps int) error {
	if steps <= 0 {
		steps = 1
	}
	return db.withGoose(func() error {
		for range steps {
			if err := goose.DownContext(ctx, db.DB, migrationsDir); err != nil {
				return err
			}
		}
		return nil
	})
}

// MigrationStatus logs the applied state of every migration.
func (db *Database) MigrationStatus(ctx context.Context) error {
	return db.withGoose(func() error {
		return goose.StatusContext(ctx, db.DB, migrationsDir)
	})
}

func (db *Database) withGoose(fn func() error) error {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return fn()
}
