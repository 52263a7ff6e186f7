// Package migrate provides database migration support using golang-migrate.
// Each dialect has its own embedded set of migrations; TiDB shares the MySQL set.
package migrate

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	platformdb "github.com/txn2/realty-platform/pkg/database"
)

//go:embed migrations/postgres/*.sql migrations/mysql/*.sql
var migrations embed.FS

// migrator is the subset of *migrate.Migrate used here.
type migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
}

// migratorFactory builds a migrator for a connection. Replaced in tests.
var migratorFactory = newMigrator

// migrationsDir returns the embedded directory holding a dialect's migrations.
func migrationsDir(d platformdb.Dialect) string {
	if d.MySQLCompatible() {
		return "migrations/mysql"
	}
	return "migrations/postgres"
}

func newMigrator(db *sql.DB, d platformdb.Dialect) (migrator, error) {
	var (
		driver database.Driver
		err    error
	)
	if d.MySQLCompatible() {
		driver, err = mysql.WithInstance(db, &mysql.Config{})
	} else {
		driver, err = postgres.WithInstance(db, &postgres.Config{})
	}
	if err != nil {
		return nil, fmt.Errorf("creating %s driver: %w", d, err)
	}

	source, err := iofs.New(migrations, migrationsDir(d))
	if err != nil {
		return nil, fmt.Errorf("creating migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, d.DriverName(), driver)
	if err != nil {
		return nil, fmt.Errorf("creating migrator: %w", err)
	}
	return m, nil
}

// Run executes all pending database migrations.
// It applies migrations in order and is idempotent - already applied migrations are skipped.
func Run(db *sql.DB, d platformdb.Dialect) error {
	m, err := migratorFactory(db, d)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("running migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("getting migration version: %w", err)
	}

	if dirty {
		slog.Warn("database migration state is dirty", "dialect", d, "version", version)
	} else {
		slog.Info("database migrations complete", "dialect", d, "version", version)
	}

	return nil
}

// Version returns the current migration version.
func Version(db *sql.DB, d platformdb.Dialect) (uint, bool, error) {
	m, err := migratorFactory(db, d)
	if err != nil {
		return 0, false, err
	}
	return m.Version()
}

// Down rolls back all migrations.
// Use with caution - this will destroy all data.
func Down(db *sql.DB, d platformdb.Dialect) error {
	m, err := migratorFactory(db, d)
	if err != nil {
		return err
	}

	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("rolling back migrations: %w", err)
	}

	return nil
}

// Steps applies n migrations (positive = up, negative = down).
func Steps(db *sql.DB, d platformdb.Dialect, n int) error {
	m, err := migratorFactory(db, d)
	if err != nil {
		return err
	}

	if err := m.Steps(n); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("stepping migrations: %w", err)
	}

	return nil
}
