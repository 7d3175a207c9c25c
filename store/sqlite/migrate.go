package sqlite

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite3 "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrate applies the embedded migrations on the store's own connection
// pool, so ":memory:" databases see the schema.
//
// The migrate instance is not closed: its sqlite3 driver would close the
// shared *sql.DB along with it.
func (s *Store) migrate() error {
	driver, err := migratesqlite3.WithInstance(s.db, &migratesqlite3.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite3 migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}
