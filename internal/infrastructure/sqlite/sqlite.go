// Package sqlite backs repository stores with an embedded SQLite database. It
// serves local and test runs, where no Postgres server is configured.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// pragmas are applied to every connection opened from the DSN.
var pragmas = []string{"foreign_keys(1)", "busy_timeout(5000)"}

// Config selects the database file. ":memory:" is not supported; use a file in a
// temporary directory for throwaway databases.
type Config struct {
	DSN string
}

// Database wraps the database/sql handle.
type Database struct {
	DB *sql.DB
}

// Open opens the database and verifies the connection. The handle is limited to
// one connection, so writers never contend for the file lock.
func Open(ctx context.Context, cfg Config) (*Database, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("sqlite: empty DSN")
	}
	db, err := sql.Open("sqlite", withPragmas(cfg.DSN))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Database{DB: db}, nil
}

// Close releases the database handle.
func (db *Database) Close() {
	if db != nil && db.DB != nil {
		_ = db.DB.Close()
	}
}

func withPragmas(dsn string) string {
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	var b strings.Builder
	b.WriteString(dsn)
	for _, p := range pragmas {
		b.WriteString(sep)
		b.WriteString("_pragma=")
		b.WriteString(p)
		sep = "&"
	}
	return b.String()
}
