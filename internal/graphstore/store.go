// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package graphstore persists resolved facts as quads in SQLite and keeps
// the proxy membership registry. Every statement is parameterized;
// identifiers and literals never become part of SQL text.
package graphstore

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/indexer/internal/db"
	"github.com/pdiddy/indexer/internal/errors"
	"github.com/pdiddy/indexer/internal/logging"
	"github.com/pdiddy/indexer/pkg/types"
)

// Store is the SQLite graph store.
type Store struct {
	db  *sql.DB
	log *zap.SugaredLogger
	now func() time.Time
}

// Open opens or creates the graph database at path.
func Open(path string, log *zap.SugaredLogger) (*Store, error) {
	conn, err := db.OpenMigrated(path, db.GraphSchema, log)
	if err != nil {
		return nil, errors.Wrap(err, "opening graph store")
	}
	return New(conn, log), nil
}

// New wraps an already migrated database handle.
func New(conn *sql.DB, log *zap.SugaredLogger) *Store {
	return &Store{db: conn, log: logging.OrNop(log), now: time.Now}
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert adds facts to graph. Facts already present are ignored.
func (s *Store) Insert(ctx context.Context, graph string, facts []types.Fact) error {
	return s.inTx(ctx, "insert into "+graph, func(tx *sql.Tx) error {
		return insertFacts(ctx, tx, documentOf(graph), graph, facts)
	})
}

// Delete removes facts from graph.
func (s *Store) Delete(ctx context.Context, graph string, facts []types.Fact) error {
	return s.inTx(ctx, "delete from "+graph, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `DELETE FROM quads WHERE graph = ?
			AND subject_kind = ? AND subject = ? AND predicate = ?
			AND object_kind = ? AND object = ? AND datatype = ? AND lang = ?`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, f := range facts {
			args := append([]any{graph}, factArgs(f)...)
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return err
			}
		}
		return nil
	})
}

// ReplaceGraph swaps the content of graph for facts in one transaction.
func (s *Store) ReplaceGraph(ctx context.Context, graph string, facts []types.Fact) error {
	return s.inTx(ctx, "replace "+graph, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM quads WHERE graph = ?`, graph); err != nil {
			return err
		}
		return insertFacts(ctx, tx, documentOf(graph), graph, facts)
	})
}

// Graph returns the facts of one named graph in canonical order.
func (s *Store) Graph(ctx context.Context, name string) ([]types.Fact, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT subject_kind, subject, predicate, object_kind, object, datatype, lang
		FROM quads WHERE graph = ?`, name)
	if err != nil {
		return nil, errors.Wrapf(err, "reading graph %s", name)
	}
	facts, err := scanFacts(rows)
	if err != nil {
		return nil, err
	}
	return types.SortFacts(facts), nil
}

// DocumentGraphs returns every graph stored under a document key, sorted
// by name.
func (s *Store) DocumentGraphs(ctx context.Context, key string) ([]types.Graph, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT graph, subject_kind, subject, predicate, object_kind, object, datatype, lang
		FROM quads WHERE document = ? ORDER BY graph`, key)
	if err != nil {
		return nil, errors.Wrapf(err, "reading document %s", key)
	}
	defer rows.Close()

	var out []types.Graph
	for rows.Next() {
		var graph string
		f, err := scanFact(rows, &graph)
		if err != nil {
			return nil, err
		}
		if len(out) == 0 || out[len(out)-1].Name != graph {
			out = append(out, types.Graph{Name: graph})
		}
		out[len(out)-1].Facts = append(out[len(out)-1].Facts, f)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "reading document %s", key)
	}
	for i := range out {
		out[i] = out[i].Canonical()
	}
	return out, nil
}

// Stats counts stored quads, graphs and proxies.
type Stats struct {
	Quads     int `json:"quads" yaml:"quads"`
	Graphs    int `json:"graphs" yaml:"graphs"`
	Documents int `json:"documents" yaml:"documents"`
	Proxies   int `json:"proxies" yaml:"proxies"`
	Members   int `json:"members" yaml:"members"`
	Conflicts int `json:"conflicts" yaml:"conflicts"`
}

// Stats summarizes the store.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM quads),
		(SELECT COUNT(DISTINCT graph) FROM quads),
		(SELECT COUNT(*) FROM documents),
		(SELECT COUNT(DISTINCT proxy) FROM proxy_members),
		(SELECT COUNT(*) FROM proxy_members),
		(SELECT COUNT(*) FROM proxy_conflicts)`).Scan(
		&st.Quads, &st.Graphs, &st.Documents, &st.Proxies, &st.Members, &st.Conflicts)
	if err != nil {
		return Stats{}, errors.Wrap(err, "reading store stats")
	}
	return st, nil
}

// Reset removes every quad, document record, membership and conflict.
func (s *Store) Reset(ctx context.Context) error {
	err := s.inTx(ctx, "reset", func(tx *sql.Tx) error {
		for _, table := range []string{"quads", "documents", "proxy_members", "proxy_conflicts"} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
				return err
			}
		}
		return nil
	})
	if err == nil {
		s.log.Infow("graph store reset")
	}
	return err
}

// inTx runs fn in a transaction. Failures are marked
// errors.ErrStoreWrite and roll everything back.
func (s *Store) inTx(ctx context.Context, what string, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "begin %s", what), errors.ErrStoreWrite)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return errors.Mark(errors.Wrap(err, what), errors.ErrStoreWrite)
	}
	if err := tx.Commit(); err != nil {
		return errors.Mark(errors.Wrapf(err, "commit %s", what), errors.ErrStoreWrite)
	}
	return nil
}

// documentOf returns the document key a graph belongs to: the graph name
// without its fragment, so "key#All" is replaced along with "key".
func documentOf(graph string) string {
	doc, _, _ := strings.Cut(graph, "#")
	return doc
}

func insertFacts(ctx context.Context, tx *sql.Tx, document, graph string, facts []types.Fact) error {
	if len(facts) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO quads
		(document, graph, subject_kind, subject, predicate, object_kind, object, datatype, lang)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, f := range facts {
		if err := checkFact(f); err != nil {
			return err
		}
		args := append([]any{document, graph}, factArgs(f)...)
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return errors.Wrapf(err, "inserting into %s", graph)
		}
	}
	return nil
}

func checkFact(f types.Fact) error {
	if !f.Subject.IsIdentifier() || f.Subject.Value == "" {
		return errors.Mark(errors.Newf("invalid subject %s", f.Subject), errors.ErrValidation)
	}
	if f.Predicate.Kind != types.KindIRI || f.Predicate.Value == "" {
		return errors.Mark(errors.Newf("invalid predicate %s", f.Predicate), errors.ErrValidation)
	}
	if f.Object.Kind == 0 {
		return errors.Mark(errors.New("missing object"), errors.ErrValidation)
	}
	return nil
}

// factArgs flattens a fact into the seven term columns, in table order.
func factArgs(f types.Fact) []any {
	return []any{
		f.Subject.Kind.String(), f.Subject.Value,
		f.Predicate.Value,
		f.Object.Kind.String(), f.Object.Value, f.Object.Datatype, f.Object.Lang,
	}
}

type scanner interface {
	Scan(dest ...any) error
}

// scanFact reads the seven term columns, preceded by extra destinations.
func scanFact(row scanner, extra ...any) (types.Fact, error) {
	var sk, sv, p, ok, ov, dt, lang string
	dest := append(extra, &sk, &sv, &p, &ok, &ov, &dt, &lang)
	if err := row.Scan(dest...); err != nil {
		return types.Fact{}, errors.Wrap(err, "scanning quad")
	}
	subjectKind, valid := types.ParseTermKind(sk)
	objectKind, valid2 := types.ParseTermKind(ok)
	if !valid || !valid2 {
		return types.Fact{}, errors.Newf("corrupt term kind %q/%q", sk, ok)
	}
	return types.Fact{
		Subject:   types.Term{Kind: subjectKind, Value: sv},
		Predicate: types.IRI(p),
		Object:    types.Term{Kind: objectKind, Value: ov, Datatype: dt, Lang: lang},
	}, nil
}

func scanFacts(rows *sql.Rows) ([]types.Fact, error) {
	defer rows.Close()
	var out []types.Fact
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
