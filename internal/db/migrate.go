// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package db

import (
	"database/sql"
	"embed"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/indexer/internal/errors"
)

//go:embed sqlite/cache/*.sql sqlite/graph/*.sql
var migrations embed.FS

// Schema selects a migration set.
type Schema string

const (
	// CacheSchema holds cached documents and the work queue.
	CacheSchema Schema = "cache"
	// GraphSchema holds resolved quads and proxy membership.
	GraphSchema Schema = "graph"
)

// Migrate applies every pending migration of schema, one transaction per
// file. Files are applied in name order; the 000 file creates the
// schema_migrations table.
func Migrate(conn *sql.DB, schema Schema, logger *zap.SugaredLogger) error {
	dir := path.Join("sqlite", string(schema))
	entries, err := migrations.ReadDir(dir)
	if err != nil {
		return errors.Wrapf(err, "reading %s migrations", schema)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	applied := 0
	for _, name := range files {
		version := strings.SplitN(name, "_", 2)[0]

		var exists bool
		err := conn.QueryRow("SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = ?)", version).Scan(&exists)
		if err != nil {
			if version != "000" {
				return errors.Newf("schema_migrations table missing before migration %s", name)
			}
		} else if exists {
			continue
		}

		body, err := migrations.ReadFile(path.Join(dir, name))
		if err != nil {
			return errors.Wrapf(err, "reading %s", name)
		}
		if logger != nil {
			logger.Infow("applying migration", "schema", string(schema), "migration", name)
		}

		tx, err := conn.Begin()
		if err != nil {
			return errors.Wrapf(err, "begin %s", name)
		}
		if _, err := tx.Exec(string(body)); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "executing %s", name)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "recording %s", name)
		}
		if err := tx.Commit(); err != nil {
			return errors.Wrapf(err, "commit %s", name)
		}
		applied++
	}

	if logger != nil && applied > 0 {
		logger.Infow("migrations complete", "schema", string(schema), "applied", applied, "total", len(files))
	}
	return nil
}
