// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package graphstore

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/pdiddy/indexer/internal/errors"
	"github.com/pdiddy/indexer/pkg/types"
)

// LookupProxy returns the proxy id belongs to. A proxy identifier
// resolves to itself.
func (s *Store) LookupProxy(ctx context.Context, id string) (string, bool, error) {
	var proxy string
	err := s.db.QueryRowContext(ctx, `
		SELECT proxy FROM proxy_members WHERE member = ?
		UNION ALL
		SELECT proxy FROM proxy_members WHERE proxy = ?
		LIMIT 1`, id, id).Scan(&proxy)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "looking up proxy of %s", id)
	}
	return proxy, true, nil
}

// Proxy returns the proxy id belongs to, its members and the merged facts
// stored about it across every document.
func (s *Store) Proxy(ctx context.Context, id string) (types.Proxy, error) {
	proxy, found, err := s.LookupProxy(ctx, id)
	if err != nil {
		return types.Proxy{}, err
	}
	if !found {
		return types.Proxy{}, errors.Mark(errors.Newf("%s has no proxy", id), errors.ErrNotFound)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT member FROM proxy_members WHERE proxy = ? ORDER BY member`, proxy)
	if err != nil {
		return types.Proxy{}, errors.Wrapf(err, "reading members of %s", proxy)
	}
	defer rows.Close()
	p := types.Proxy{ID: proxy}
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return types.Proxy{}, errors.Wrap(err, "scanning member")
		}
		if m != proxy {
			p.Members = append(p.Members, m)
		}
	}
	if err := rows.Err(); err != nil {
		return types.Proxy{}, errors.Wrapf(err, "reading members of %s", proxy)
	}

	frows, err := s.db.QueryContext(ctx, `SELECT subject_kind, subject, predicate, object_kind, object, datatype, lang
		FROM quads WHERE subject_kind = 'iri' AND subject = ?`, proxy)
	if err != nil {
		return types.Proxy{}, errors.Wrapf(err, "reading facts of %s", proxy)
	}
	facts, err := scanFacts(frows)
	if err != nil {
		return types.Proxy{}, err
	}
	p.Facts = types.SortFacts(facts)
	return p, nil
}

// Conflicts lists recorded proxy conflicts, oldest first.
func (s *Store) Conflicts(ctx context.Context) ([]types.ProxyConflict, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT source_id, chosen, others, members, detected_at
		FROM proxy_conflicts ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "reading conflicts")
	}
	defer rows.Close()

	var out []types.ProxyConflict
	for rows.Next() {
		var c types.ProxyConflict
		var others, members string
		if err := rows.Scan(&c.SourceID, &c.Chosen, &others, &members, &c.Detected); err != nil {
			return nil, errors.Wrap(err, "scanning conflict")
		}
		if err := json.Unmarshal([]byte(others), &c.Others); err != nil {
			return nil, errors.Wrap(err, "decoding conflict proxies")
		}
		if err := json.Unmarshal([]byte(members), &c.Members); err != nil {
			return nil, errors.Wrap(err, "decoding conflict members")
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Collection summarizes one stored void:Dataset collection.
type Collection struct {
	IRI         string `json:"iri" yaml:"iri"`
	Label       string `json:"label" yaml:"label"`
	Description string `json:"description" yaml:"description"`
	Members     int    `json:"members" yaml:"members"`
}

// Collections lists the stored collections with the number of distinct
// proxies that are part of each.
func (s *Store) Collections(ctx context.Context) ([]Collection, error) {
	iri, literal := types.KindIRI.String(), types.KindLiteral.String()
	rows, err := s.db.QueryContext(ctx, `SELECT d.subject,
			COALESCE((SELECT MIN(l.object) FROM quads l
				WHERE l.subject = d.subject AND l.predicate = ? AND l.object_kind = ?), ''),
			COALESCE((SELECT MIN(c.object) FROM quads c
				WHERE c.subject = d.subject AND c.predicate = ? AND c.object_kind = ?), ''),
			(SELECT COUNT(DISTINCT m.subject) FROM quads m
				WHERE m.predicate = ? AND m.object_kind = ? AND m.object = d.subject)
		FROM quads d
		WHERE d.subject_kind = ? AND d.predicate = ? AND d.object_kind = ? AND d.object = ?
		GROUP BY d.subject ORDER BY d.subject`,
		types.RDFSLabel, literal,
		types.RDFSComment, literal,
		types.IsPartOf, iri,
		iri, types.RDFType, iri, types.VoidDataset)
	if err != nil {
		return nil, errors.Wrap(err, "reading collections")
	}
	defer rows.Close()

	var out []Collection
	for rows.Next() {
		var c Collection
		if err := rows.Scan(&c.IRI, &c.Label, &c.Description, &c.Members); err != nil {
			return nil, errors.Wrap(err, "scanning collection")
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
