// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package graphstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"time"

	"github.com/pdiddy/indexer/internal/errors"
	"github.com/pdiddy/indexer/pkg/types"
)

// Membership assigns Member to Proxy in the registry.
type Membership struct {
	Member string
	Proxy  string
}

// Document is everything one processing run writes for a source.
type Document struct {
	// Key is the deterministic document graph key.
	Key      string
	SourceID string

	// Graphs replace every graph previously stored under Key.
	Graphs []types.Graph

	// Members are added to the registry; existing rows are kept.
	Members []Membership

	// Relink rewrites objects of previously stored facts from the old
	// identifier (key) to its proxy (value).
	Relink map[string]string

	Conflicts []types.ProxyConflict

	StartedAt time.Time
	EndedAt   time.Time
}

// Facts counts the facts in d's graphs.
func (d Document) Facts() int {
	n := 0
	for _, g := range d.Graphs {
		n += len(g.Facts)
	}
	return n
}

// CommitDocument writes d in a single transaction: prior graphs under
// d.Key are removed, the new graphs, memberships, relinks, conflicts and
// the document record are written, and nothing is visible unless all of
// it commits.
func (s *Store) CommitDocument(ctx context.Context, d Document) error {
	err := s.inTx(ctx, "commit "+d.SourceID, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM quads WHERE document = ?`, d.Key); err != nil {
			return err
		}
		for _, g := range d.Graphs {
			if err := insertFacts(ctx, tx, d.Key, g.Name, g.Facts); err != nil {
				return err
			}
		}
		if err := addMembers(ctx, tx, d.SourceID, d.Members, s.now().UTC()); err != nil {
			return err
		}
		if err := relink(ctx, tx, d.Relink); err != nil {
			return err
		}
		if err := addConflicts(ctx, tx, d.Conflicts, s.now().UTC()); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO documents (document, source_id, started_at, ended_at, facts)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(document) DO UPDATE SET
				source_id = excluded.source_id,
				started_at = excluded.started_at,
				ended_at = excluded.ended_at,
				facts = excluded.facts`,
			d.Key, d.SourceID, d.StartedAt.UTC(), d.EndedAt.UTC(), d.Facts())
		return err
	})
	if err != nil {
		return err
	}
	s.log.Debugw("document committed", "source", d.SourceID, "key", d.Key,
		"graphs", len(d.Graphs), "facts", d.Facts(), "members", len(d.Members), "relinked", len(d.Relink))
	return nil
}

func addMembers(ctx context.Context, tx *sql.Tx, sourceID string, ms []Membership, now time.Time) error {
	if len(ms) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO proxy_members (member, proxy, source_id, created_at)
		VALUES (?, ?, ?, ?) ON CONFLICT(member) DO NOTHING`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, m := range ms {
		if _, err := stmt.ExecContext(ctx, m.Member, m.Proxy, sourceID, now); err != nil {
			return err
		}
	}
	return nil
}

// relink points facts whose object is a superseded identifier at its
// proxy. Only identifiers the registry assigns to that proxy are touched,
// so a member claimed by another proxy keeps its references. Equivalence
// and provenance links keep their original objects. Rows that would
// duplicate an existing quad are dropped.
func relink(ctx context.Context, tx *sql.Tx, m map[string]string) error {
	if len(m) == 0 {
		return nil
	}
	olds := make([]string, 0, len(m))
	for old := range m {
		olds = append(olds, old)
	}
	sort.Strings(olds)

	owner, err := tx.PrepareContext(ctx, `SELECT proxy FROM proxy_members WHERE member = ?`)
	if err != nil {
		return err
	}
	defer owner.Close()
	update, err := tx.PrepareContext(ctx, `UPDATE OR IGNORE quads SET object = ?
		WHERE object_kind = 'iri' AND object = ? AND predicate NOT IN (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer update.Close()
	cleanup, err := tx.PrepareContext(ctx, `DELETE FROM quads
		WHERE object_kind = 'iri' AND object = ? AND predicate NOT IN (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer cleanup.Close()

	for _, old := range olds {
		proxy := m[old]
		if proxy == old {
			continue
		}
		var registered string
		err := owner.QueryRowContext(ctx, old).Scan(&registered)
		if errors.Is(err, sql.ErrNoRows) || err == nil && registered != proxy {
			continue
		}
		if err != nil {
			return err
		}
		if _, err := update.ExecContext(ctx, proxy, old, types.SameAs, types.ProvDerived, types.ProvGenerated); err != nil {
			return err
		}
		if _, err := cleanup.ExecContext(ctx, old, types.SameAs, types.ProvDerived, types.ProvGenerated); err != nil {
			return err
		}
	}
	return nil
}

func addConflicts(ctx context.Context, tx *sql.Tx, cs []types.ProxyConflict, now time.Time) error {
	for _, c := range cs {
		others, err := json.Marshal(c.Others)
		if err != nil {
			return err
		}
		members, err := json.Marshal(c.Members)
		if err != nil {
			return err
		}
		detected := c.Detected
		if detected.IsZero() {
			detected = now
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO proxy_conflicts (source_id, chosen, others, members, detected_at)
			VALUES (?, ?, ?, ?, ?)`, c.SourceID, c.Chosen, string(others), string(members), detected.UTC()); err != nil {
			return err
		}
	}
	return nil
}
