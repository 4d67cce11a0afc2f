// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package db opens the SQLite databases used by the document cache and
// the graph store and applies their embedded migrations.
package db

import (
	"database/sql"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/pdiddy/indexer/internal/errors"
)

// dsnParams apply to every pooled connection: WAL for concurrent reads
// during writes, foreign keys, and a 5s busy timeout.
const dsnParams = "?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000"

// Open opens (creating if needed) the SQLite database at path. If logger
// is nil the function operates silently.
func Open(path string, logger *zap.SugaredLogger) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "creating database directory %s", dir)
		}
	}
	if logger != nil {
		logger.Debugw("opening database", "path", path)
	}
	conn, err := sql.Open("sqlite3", path+dsnParams)
	if err != nil {
		return nil, errors.Wrapf(err, "opening database %s", path)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, errors.Wrapf(err, "connecting to database %s", path)
	}
	if logger != nil {
		logger.Debugw("database opened", "path", path, "wal_mode", true, "foreign_keys", true)
	}
	return conn, nil
}

// OpenMigrated opens path and applies the migrations of schema.
func OpenMigrated(path string, schema Schema, logger *zap.SugaredLogger) (*sql.DB, error) {
	conn, err := Open(path, logger)
	if err != nil {
		return nil, err
	}
	if err := Migrate(conn, schema, logger); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}
