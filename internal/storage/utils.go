package storage

import (
	"fmt"

	"github.com/ignatij/shopfloor/pkg/storage"
)

// InitStore migrates and opens the store for driver.
func InitStore(driver, dsn string) (storage.Store, error) {
	if err := Migrate(driver, dsn); err != nil {
		return nil, err
	}
	var (
		store *SQLStore
		err   error
	)
	switch driver {
	case DriverPostgres:
		store, err = NewPostgresStore(dsn)
	case DriverSQLite:
		store, err = NewSQLiteStore(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}
