// Package storage owns the PostgreSQL handle, schema migrations, and the
// schema capability set derived from the applied migration version.
//
// Capabilities replace runtime probing of storage metadata: instead of
// inspecting the live schema to decide which optional columns exist, the
// applied migration version is resolved once at startup and the resulting
// Capabilities value is injected into the stores that need it.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
)

// Capabilities describes which optional schema features the connected
// database carries, keyed off the applied migration version.
type Capabilities struct {
	// SchemaVersion is the applied migration version.
	SchemaVersion uint

	// HasTotalStudyHours is true once migration 2 (total_study_hours
	// column on users) has been applied.
	HasTotalStudyHours bool
}

// ResolveCapabilities maps an applied migration version to the capability
// set it implies.
func ResolveCapabilities(version uint) Capabilities {
	return Capabilities{
		SchemaVersion:      version,
		HasTotalStudyHours: version >= 2,
	}
}

// Open connects to PostgreSQL and verifies the connection with a ping.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: ping: %w", err)
	}
	return db, nil
}

// Migrate applies all pending migrations from sourceURL (e.g.
// "file://migrations") and returns the capabilities of the resulting
// schema. A database already at the latest version is not an error.
func Migrate(db *sql.DB, sourceURL string) (Capabilities, error) {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return Capabilities{}, fmt.Errorf("storage: migrate driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(sourceURL, "postgres", driver)
	if err != nil {
		return Capabilities{}, fmt.Errorf("storage: migrate init: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return Capabilities{}, fmt.Errorf("storage: migrate up: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return Capabilities{}, fmt.Errorf("storage: migrate version: %w", err)
	}
	if dirty {
		return Capabilities{}, fmt.Errorf("storage: schema version %d is dirty", version)
	}

	caps := ResolveCapabilities(version)
	log.Printf("[storage] schema at version %d (total_study_hours=%v)",
		caps.SchemaVersion, caps.HasTotalStudyHours)
	return caps, nil
}
