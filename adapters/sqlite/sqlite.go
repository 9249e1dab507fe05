// Package sqlite adapts the sqlstore repositories to SQLite via the
// modernc.org/sqlite driver.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/caarlos0/env/v11"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/example/cqrs-es/adapters/sqlstore"
	"github.com/example/cqrs-es/cqrs"
)

// Config holds connection settings, loadable from the environment.
type Config struct {
	// Path is the database file, or ":memory:" for an in-process
	// database.
	Path string `env:"SQLITE_PATH" envDefault:"cqrs.db"`
}

// LoadConfigFromEnv reads Config from SQLITE_* environment variables.
func LoadConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse sqlite config: %w", err)
	}
	return cfg, nil
}

// Connect opens and pings the database file.
func Connect(cfg Config) (*sql.DB, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	// The driver serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent commits.
	db.SetMaxOpenConns(1)
	return db, nil
}

// Dialect is the SQLite SQL dialect.
type Dialect struct{}

func (Dialect) Placeholder(int) string {
	return "?"
}

func (Dialect) IsUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT ||
		code == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
		code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

// NewEventRepository creates an event repository over db using the
// default table names.
func NewEventRepository(db *sql.DB) *sqlstore.EventRepository {
	return sqlstore.NewEventRepository(db, Dialect{})
}

// NewViewRepository creates a view repository over db using the default
// table name.
func NewViewRepository[V cqrs.View[E], E cqrs.DomainEvent](db *sql.DB, newView func() V) *sqlstore.ViewRepository[V, E] {
	return sqlstore.NewViewRepository[V, E](db, Dialect{}, newView)
}

// Schema creates the default tables.
const Schema = `
CREATE TABLE IF NOT EXISTS events (
    aggregate_type TEXT NOT NULL,
    aggregate_id   TEXT NOT NULL,
    sequence       INTEGER NOT NULL CHECK (sequence >= 1),
    event_type     TEXT NOT NULL,
    event_version  TEXT NOT NULL,
    payload        TEXT NOT NULL,
    metadata       TEXT NOT NULL,
    PRIMARY KEY (aggregate_type, aggregate_id, sequence)
);

CREATE TABLE IF NOT EXISTS snapshots (
    aggregate_type   TEXT NOT NULL,
    aggregate_id     TEXT NOT NULL,
    last_sequence    INTEGER NOT NULL,
    current_snapshot INTEGER NOT NULL,
    payload          TEXT NOT NULL,
    PRIMARY KEY (aggregate_type, aggregate_id)
);

CREATE TABLE IF NOT EXISTS views (
    view_id TEXT PRIMARY KEY,
    version INTEGER NOT NULL,
    payload TEXT NOT NULL
);
`
