package postgres

import (
	"context"
	"database/sql"
	"embed"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationsDir = "migrations"

// Migrate applies all pending migrations.
func (db *Database) Migrate(ctx context.Context) error {
	return db.withGoose(func(sqlDB *sql.DB) error {
		return goose.UpContext(ctx, sqlDB, migrationsDir)
	})
}

// Rollback reverts the given number of migrations, at least one.
func (db *Database) Rollback(ctx context.Context, steps int) error {
	if steps <= 0 {
		steps = 1
	}
	return db.withGoose(func(sqlDB *sql.DB) error {
		for range steps {
			if err := goose.DownContext(ctx, sqlDB, migrationsDir); err != nil {
				return err
			}
		}
		return nil
	})
}

// MigrationStatus logs the applied state of every migration.
func (db *Database) MigrationStatus(ctx context.Context) error {
	return db.withGoose(func(sqlDB *sql.DB) error {
		return goose.StatusContext(ctx, sqlDB, migrationsDir)
	})
}

// withGoose exposes the pool as a database/sql handle for goose.
func (db *Database) withGoose(fn func(*sql.DB) error) error {
	sqlDB := stdlib.OpenDBFromPool(db.Pool)
	defer sqlDB.Close()

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return fn(sqlDB)
}
