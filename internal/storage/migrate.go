package storage

import (
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/ignatij/shopfloor/migrations"
)

// Migrate applies the embedded schema migrations to the database at dsn.
func Migrate(driver, dsn string) error {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %v", err)
	}
	var dbURL string
	switch driver {
	case DriverPostgres:
		dbURL = dsn
	case DriverSQLite:
		dbURL = "sqlite3://" + sqliteDSN(dsn)
	default:
		return fmt.Errorf("unsupported database driver %q", driver)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dbURL)
	if err != nil {
		return fmt.Errorf("failed to initialize migrations: %v", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %v", err)
	}
	return nil
}
