package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	internal_storage "github.com/ignatij/shopfloor/internal/storage"
	"github.com/joho/godotenv"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const postgresImage = "postgres:15"

// SetupPostgres starts a throwaway PostgreSQL container, applies the
// migrations and returns a store on it. The container credentials come from
// DB_USERNAME, DB_PASSWORD and DB_NAME (a .env file is honoured); the test is
// skipped when they are missing.
func SetupPostgres(t *testing.T) *internal_storage.SQLStore {
	t.Helper()
	_ = godotenv.Load()
	user, password, name := os.Getenv("DB_USERNAME"), os.Getenv("DB_PASSWORD"), os.Getenv("DB_NAME")
	if user == "" || password == "" || name == "" {
		t.Skip("set DB_USERNAME, DB_PASSWORD and DB_NAME to run Postgres tests")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        postgresImage,
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     user,
				"POSTGRES_PASSWORD": password,
				"POSTGRES_DB":       name,
			},
			// postgres restarts once after initdb
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start %s: %v", postgresImage, err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Errorf("Failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatal(err)
	}
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port.Port(), name)

	if err := internal_storage.Migrate(internal_storage.DriverPostgres, dsn); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}
	store, err := internal_storage.NewPostgresStore(dsn)
	if err != nil {
		t.Fatalf("Failed to open Postgres store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// SetupSQLite creates a migrated SQLite database file under t.TempDir and
// returns a store on it, closed when the test ends.
func SetupSQLite(t *testing.T) *internal_storage.SQLStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shopfloor.db")
	if err := internal_storage.Migrate(internal_storage.DriverSQLite, path); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}
	store, err := internal_storage.NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("Failed to open SQLite store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}
