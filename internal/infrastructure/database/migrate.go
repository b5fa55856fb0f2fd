package database

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// Migrator applies the schema migrations under a source URL such as
// "file://migrations".
type Migrator struct {
	m *migrate.Migrate
}

// NewMigrator prepares migrations against an open connection.
func NewMigrator(db *DB, sourceURL string) (*Migrator, error) {
	driver, err := postgres.WithInstance(db.DB.DB, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(sourceURL, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration instance: %w", err)
	}
	return &Migrator{m: m}, nil
}

// Up applies all pending migrations. It reports whether anything changed.
func (mg *Migrator) Up() (bool, error) {
	return changed(mg.m.Up())
}

// Down reverts steps migrations, or all of them when steps is zero.
func (mg *Migrator) Down(steps int) (bool, error) {
	if steps > 0 {
		return changed(mg.m.Steps(-steps))
	}
	return changed(mg.m.Down())
}

// Version returns the applied version and whether it is dirty. A database
// without migrations reports version zero.
func (mg *Migrator) Version() (uint, bool, error) {
	version, dirty, err := mg.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func changed(err error) (bool, error) {
	if errors.Is(err, migrate.ErrNoChange) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("migration failed: %w", err)
	}
	return true, nil
}
