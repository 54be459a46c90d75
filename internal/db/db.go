// Package db persists feeding observations and fit runs in SQLite.
//
// The schema is owned by the embedded golang-migrate migrations; stores
// never create tables themselves. Open a database with OpenDB and bring it
// to the latest schema with MigrateUp, or use OpenMigrated for both.
package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/sizespectrum/kernelfit/internal/monitoring"
)

var logf = monitoring.Component("db")

// DB wraps the SQLite handle shared by the stores.
type DB struct {
	*sql.DB
}

// pragmas are applied to every database opened by OpenDB.
var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA temp_store=MEMORY",
	"PRAGMA foreign_keys=ON",
}

// OpenDB opens (creating if needed) the SQLite database at path and applies
// the connection pragmas. It does not migrate.
func OpenDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	for _, p := range pragmas {
		if _, err := sqlDB.Exec(p); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("apply %q: %w", p, err)
		}
	}
	return &DB{sqlDB}, nil
}

// OpenMigrated opens the database at path and applies every pending
// embedded migration.
func OpenMigrated(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(Migrations()); err != nil {
		db.Close()
		return nil, err
	}
	version, _, err := db.MigrateVersion(Migrations())
	if err != nil {
		db.Close()
		return nil, err
	}
	logf("opened %s at schema version %d", path, version)
	return db, nil
}
