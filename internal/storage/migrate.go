package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrationsTable keeps schema bookkeeping apart from the record tables.
const migrationsTable = "budgetnest_schema_migrations"

// ErrDirtySchema is returned when a previous migration stopped half way.
// The database needs a manual fix (migrate force) before the app can start.
var ErrDirtySchema = errors.New("schema is dirty")

// SchemaVersion is the migration state after RunMigrations.
type SchemaVersion struct {
	Version uint
	Applied bool // false when the schema was already current
}

// RunMigrations brings the database at dbPath up to the embedded schema and
// reports the version it ended on.
func RunMigrations(dbPath string) (SchemaVersion, error) {
	// The migrator closes its driver, so it gets a handle of its own.
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return SchemaVersion{}, fmt.Errorf("open migration database: %w", err)
	}
	defer db.Close()

	m, err := newMigrator(db)
	if err != nil {
		return SchemaVersion{}, err
	}
	defer m.Close()

	before, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		before = 0
	case err != nil:
		return SchemaVersion{}, fmt.Errorf("read schema version: %w", err)
	case dirty:
		return SchemaVersion{}, fmt.Errorf("%w at version %d", ErrDirtySchema, before)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return SchemaVersion{}, fmt.Errorf("apply migrations from version %d: %w", before, err)
	}

	after, _, err := m.Version()
	if err != nil {
		return SchemaVersion{}, fmt.Errorf("read schema version: %w", err)
	}
	return SchemaVersion{Version: after, Applied: after != before}, nil
}

func newMigrator(db *sql.DB) (*migrate.Migrate, error) {
	driver, err := sqlite.WithInstance(db, &sqlite.Config{MigrationsTable: migrationsTable})
	if err != nil {
		return nil, fmt.Errorf("create sqlite driver: %w", err)
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, nil
}
