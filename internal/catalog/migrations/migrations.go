// Package migrations owns the catalog schema.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed files/*.sql
var migrationFiles embed.FS

// ErrNotMigrated is returned by Check for a catalog that has never been
// migrated.
var ErrNotMigrated = errors.New("catalog has no schema version (needs migration)")

// Check returns nil when the catalog schema matches the newest embedded
// migration.
func Check(db *sql.DB) error {
	m, err := newMigrate(db)
	if err != nil {
		return err
	}
	// m is not closed: that would close db, which belongs to the caller.

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return ErrNotMigrated
	}
	if err != nil {
		return fmt.Errorf("reading catalog schema version: %w", err)
	}
	if dirty {
		return fmt.Errorf("catalog schema is dirty at version %d (an earlier migration failed)", version)
	}

	latest, err := Latest()
	if err != nil {
		return err
	}
	switch {
	case version < latest:
		return fmt.Errorf("catalog schema is at version %d, want %d", version, latest)
	case version > latest:
		return fmt.Errorf("catalog schema version %d is newer than this dupview (%d)", version, latest)
	}
	return nil
}

// Up applies every pending migration. An up-to-date catalog is not an error.
func Up(db *sql.DB) error {
	m, err := newMigrate(db)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrating catalog: %w", err)
	}
	return nil
}

// Latest returns the newest embedded schema version.
func Latest() (uint, error) {
	src, err := iofs.New(migrationFiles, "files")
	if err != nil {
		return 0, fmt.Errorf("reading embedded migrations: %w", err)
	}
	defer src.Close()
	return lastVersion(src)
}

func newMigrate(db *sql.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationFiles, "files")
	if err != nil {
		return nil, fmt.Errorf("reading embedded migrations: %w", err)
	}
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("creating sqlite migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("creating migrator: %w", err)
	}
	return m, nil
}

func lastVersion(src source.Driver) (uint, error) {
	v, err := src.First()
	if err != nil {
		return 0, fmt.Errorf("no embedded migrations: %w", err)
	}
	for {
		next, err := src.Next(v)
		if err != nil {
			return v, nil
		}
		v = next
	}
}
