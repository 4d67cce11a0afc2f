// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package cache stores harvested documents and the queue of documents
// awaiting processing.
package cache

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/indexer/internal/db"
	"github.com/pdiddy/indexer/internal/errors"
	"github.com/pdiddy/indexer/internal/logging"
	"github.com/pdiddy/indexer/internal/nquads"
	"github.com/pdiddy/indexer/pkg/types"
)

// StoreOutcome tells what Store did with a document.
type StoreOutcome int

const (
	// Created means the document was new and has been queued.
	Created StoreOutcome = iota
	// Updated means the content changed and the document was re-queued.
	Updated
	// Unchanged means the cached content was identical; queue state kept.
	Unchanged
)

func (o StoreOutcome) String() string {
	switch o {
	case Created:
		return "created"
	case Updated:
		return "updated"
	}
	return "unchanged"
}

// Entry describes one cached document and its queue state.
type Entry struct {
	ID           string    `json:"id" yaml:"id"`
	SourceID     string    `json:"source_id" yaml:"source_id"`
	Size         int       `json:"size" yaml:"size"`
	LastUpdated  time.Time `json:"last_updated" yaml:"last_updated"`
	EnqueuedAt   time.Time `json:"enqueued_at" yaml:"enqueued_at"`
	Processed    bool      `json:"processed" yaml:"processed"`
	Parked       bool      `json:"parked" yaml:"parked"`
	ParkedReason string    `json:"parked_reason,omitempty" yaml:"parked_reason,omitempty"`
	Attempts     int       `json:"attempts" yaml:"attempts"`
	LastError    string    `json:"last_error,omitempty" yaml:"last_error,omitempty"`
}

// Stats summarizes the cache.
type Stats struct {
	Documents int `json:"documents" yaml:"documents"`
	Pending   int `json:"pending" yaml:"pending"`
	Processed int `json:"processed" yaml:"processed"`
	Parked    int `json:"parked" yaml:"parked"`
}

// Cache is a SQLite-backed document cache and work queue.
type Cache struct {
	db  *sql.DB
	log *zap.SugaredLogger
	now func() time.Time
}

// Open opens or creates the cache database at path.
func Open(path string, log *zap.SugaredLogger) (*Cache, error) {
	conn, err := db.OpenMigrated(path, db.CacheSchema, log)
	if err != nil {
		return nil, errors.Wrap(err, "opening document cache")
	}
	return &Cache{db: conn, log: logging.OrNop(log), now: time.Now}, nil
}

// Close releases the database connection.
func (c *Cache) Close() error {
	return c.db.Close()
}

// DocumentID is the cache key of a source: the md5 hex of its identifier.
func DocumentID(sourceID string) string {
	sum := md5.Sum([]byte(sourceID))
	return hex.EncodeToString(sum[:])
}

// Store caches g under its name as source identifier and queues it for
// processing. Re-storing identical content leaves the queue state as is.
func (c *Cache) Store(ctx context.Context, g types.Graph) (StoreOutcome, error) {
	if strings.TrimSpace(g.Name) == "" {
		return 0, errors.Mark(errors.New("document has no source identifier"), errors.ErrValidation)
	}
	payload := nquads.Marshal(g.Facts)
	sum := sha256.Sum256(payload)
	hash := hex.EncodeToString(sum[:])
	now := c.now().UTC()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "begin store")
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRowContext(ctx, `SELECT content_hash FROM documents WHERE source_id = ?`, g.Name).Scan(&existing)
	outcome := Updated
	switch {
	case errors.Is(err, sql.ErrNoRows):
		outcome = Created
	case err != nil:
		return 0, errors.Wrapf(err, "reading %s", g.Name)
	case existing == hash:
		return Unchanged, nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (id, source_id, payload, content_hash, size, last_updated, enqueued_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id) DO UPDATE SET
			payload = excluded.payload,
			content_hash = excluded.content_hash,
			size = excluded.size,
			last_updated = excluded.last_updated,
			enqueued_at = excluded.enqueued_at,
			processed = 0,
			processed_at = NULL,
			parked = 0,
			parked_reason = '',
			attempts = 0,
			last_error = ''`,
		DocumentID(g.Name), g.Name, string(payload), hash, len(payload), now, now)
	if err != nil {
		return 0, errors.Wrapf(err, "storing %s", g.Name)
	}
	if err := tx.Commit(); err != nil {
		return 0, errors.Wrapf(err, "commit %s", g.Name)
	}
	c.log.Debugw("document cached", "source", g.Name, "facts", len(g.Facts), "outcome", outcome.String())
	return outcome, nil
}

// Retrieve returns the cached facts of sourceID as a graph named after it.
// A missing document is marked errors.ErrNotFound; a payload that no
// longer parses is marked errors.ErrValidation.
func (c *Cache) Retrieve(ctx context.Context, sourceID string) (types.Graph, error) {
	var payload string
	err := c.db.QueryRowContext(ctx, `SELECT payload FROM documents WHERE source_id = ?`, sourceID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Graph{}, errors.Mark(errors.Newf("document %s is not cached", sourceID), errors.ErrNotFound)
	}
	if err != nil {
		return types.Graph{}, errors.Wrapf(err, "retrieving %s", sourceID)
	}
	g, err := nquads.ReadGraph(strings.NewReader(payload), sourceID)
	if err != nil {
		return types.Graph{}, errors.Wrapf(err, "decoding cached %s", sourceID)
	}
	return g, nil
}

// Contains reports whether sourceID is cached.
func (c *Cache) Contains(ctx context.Context, sourceID string) (bool, error) {
	var exists bool
	err := c.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM documents WHERE source_id = ?)`, sourceID).Scan(&exists)
	if err != nil {
		return false, errors.Wrapf(err, "checking %s", sourceID)
	}
	return exists, nil
}

// Enqueue queues an already cached document for processing again and
// clears its parked state and attempt counter.
func (c *Cache) Enqueue(ctx context.Context, sourceID string) error {
	return c.update(ctx, sourceID, `
		UPDATE documents SET processed = 0, processed_at = NULL, parked = 0, parked_reason = '',
			attempts = 0, last_error = '', enqueued_at = ?
		WHERE source_id = ?`, c.now().UTC(), sourceID)
}

// EnqueueAll queues every cached document again, parked ones included,
// and returns how many there are.
func (c *Cache) EnqueueAll(ctx context.Context) (int64, error) {
	res, err := c.db.ExecContext(ctx, `
		UPDATE documents SET processed = 0, processed_at = NULL, parked = 0, parked_reason = '',
			attempts = 0, last_error = '', enqueued_at = ?`, c.now().UTC())
	if err != nil {
		return 0, errors.Wrap(err, "re-queueing documents")
	}
	return res.RowsAffected()
}

// Queue returns up to limit pending source identifiers, oldest first.
// A limit of 0 returns all of them.
func (c *Cache) Queue(ctx context.Context, limit int) ([]string, error) {
	query := `SELECT source_id FROM documents WHERE processed = 0 AND parked = 0 ORDER BY enqueued_at, source_id`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "reading queue")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scanning queue")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Dequeue returns the oldest pending entry without removing it; the entry
// leaves the queue only through MarkProcessed or Park.
func (c *Cache) Dequeue(ctx context.Context) (string, bool, error) {
	ids, err := c.Queue(ctx, 1)
	if err != nil || len(ids) == 0 {
		return "", false, err
	}
	return ids[0], true, nil
}

// MarkProcessed acknowledges a queue entry.
func (c *Cache) MarkProcessed(ctx context.Context, sourceID string) error {
	return c.update(ctx, sourceID, `
		UPDATE documents SET processed = 1, processed_at = ?, last_error = ''
		WHERE source_id = ?`, c.now().UTC(), sourceID)
}

// RecordFailure increments the attempt counter of an entry, keeps it
// queued and returns the new count.
func (c *Cache) RecordFailure(ctx context.Context, sourceID string, cause error) (int, error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if err := c.update(ctx, sourceID, `
		UPDATE documents SET attempts = attempts + 1, last_error = ?
		WHERE source_id = ?`, msg, sourceID); err != nil {
		return 0, err
	}
	var attempts int
	err := c.db.QueryRowContext(ctx, `SELECT attempts FROM documents WHERE source_id = ?`, sourceID).Scan(&attempts)
	if err != nil {
		return 0, errors.Wrapf(err, "reading attempts of %s", sourceID)
	}
	return attempts, nil
}

// Park removes an entry from the queue without acknowledging it.
func (c *Cache) Park(ctx context.Context, sourceID, reason string) error {
	return c.update(ctx, sourceID, `
		UPDATE documents SET parked = 1, parked_reason = ?, last_error = ?
		WHERE source_id = ?`, reason, reason, sourceID)
}

// Entry returns the bookkeeping of one document.
func (c *Cache) Entry(ctx context.Context, sourceID string) (Entry, error) {
	rows, err := c.db.QueryContext(ctx, selectEntry+` WHERE source_id = ?`, sourceID)
	if err != nil {
		return Entry{}, errors.Wrapf(err, "reading %s", sourceID)
	}
	entries, err := scanEntries(rows)
	if err != nil {
		return Entry{}, err
	}
	if len(entries) == 0 {
		return Entry{}, errors.Mark(errors.Newf("document %s is not cached", sourceID), errors.ErrNotFound)
	}
	return entries[0], nil
}

// Parked lists parked entries, most recently updated first.
func (c *Cache) Parked(ctx context.Context) ([]Entry, error) {
	rows, err := c.db.QueryContext(ctx, selectEntry+` WHERE parked = 1 ORDER BY last_updated DESC, source_id`)
	if err != nil {
		return nil, errors.Wrap(err, "reading parked entries")
	}
	return scanEntries(rows)
}

// Pending lists queued entries, oldest first.
func (c *Cache) Pending(ctx context.Context) ([]Entry, error) {
	rows, err := c.db.QueryContext(ctx, selectEntry+` WHERE processed = 0 AND parked = 0 ORDER BY enqueued_at, source_id`)
	if err != nil {
		return nil, errors.Wrap(err, "reading pending entries")
	}
	return scanEntries(rows)
}

// Stats counts documents by queue state.
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := c.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN processed = 0 AND parked = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(processed), 0),
			COALESCE(SUM(parked), 0)
		FROM documents`).Scan(&s.Documents, &s.Pending, &s.Processed, &s.Parked)
	if err != nil {
		return Stats{}, errors.Wrap(err, "reading cache stats")
	}
	return s, nil
}

// Reset deletes every cached document.
func (c *Cache) Reset(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM documents`); err != nil {
		return errors.Wrap(err, "resetting cache")
	}
	c.log.Infow("document cache reset")
	return nil
}

const selectEntry = `SELECT id, source_id, size, last_updated, enqueued_at, processed, parked,
	parked_reason, attempts, last_error FROM documents`

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.SourceID, &e.Size, &e.LastUpdated, &e.EnqueuedAt,
			&e.Processed, &e.Parked, &e.ParkedReason, &e.Attempts, &e.LastError); err != nil {
			return nil, errors.Wrap(err, "scanning entry")
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (c *Cache) update(ctx context.Context, sourceID, query string, args ...any) error {
	res, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrapf(err, "updating %s", sourceID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrapf(err, "updating %s", sourceID)
	}
	if n == 0 {
		return errors.Mark(errors.Newf("document %s is not cached", sourceID), errors.ErrNotFound)
	}
	return nil
}
