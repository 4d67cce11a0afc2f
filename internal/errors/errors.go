// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package errors re-exports github.com/cockroachdb/errors and defines the
// failure taxonomy shared by every stage of the indexer.
//
// Stages mark the errors they return with one of the kind sentinels:
//
//	return errors.Mark(errors.Wrap(err, "lookup proxy"), errors.ErrResolution)
//
// and the pipeline classifies them with Kind, Retryable and Parkable.
package errors

import (
	"context"
	"strings"

	crdb "github.com/cockroachdb/errors"
	"github.com/mattn/go-sqlite3"
)

var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

var (
	WithHint      = crdb.WithHint
	WithHintf     = crdb.WithHintf
	WithDetail    = crdb.WithDetail
	WithDetailf   = crdb.WithDetailf
	GetAllDetails = crdb.GetAllDetails
	FlattenHints  = crdb.FlattenHints
)

var (
	Is     = crdb.Is
	IsAny  = crdb.IsAny
	As     = crdb.As
	Mark   = crdb.Mark
	Unwrap = crdb.Unwrap
)

// Failure kinds.
var (
	// ErrRuleLoad marks a malformed or unreadable rule base. Fatal.
	ErrRuleLoad = crdb.New("rule load error")
	// ErrFetch marks a failure to retrieve a source document. Retryable.
	ErrFetch = crdb.New("fetch error")
	// ErrNotFound marks an absent cache entry or proxy.
	ErrNotFound = crdb.New("not found")
	// ErrResolution marks an aborted identity resolution. Retryable.
	ErrResolution = crdb.New("resolution error")
	// ErrStoreWrite marks a failed persist. Retryable.
	ErrStoreWrite = crdb.New("store write error")
	// ErrValidation marks malformed input. The entry is parked.
	ErrValidation = crdb.New("validation error")
	// ErrLocked is returned when another process holds the writer lock.
	ErrLocked = crdb.New("writer lock held by another process")
)

// Kind names the failure class of err for logs and metrics.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case crdb.Is(err, ErrValidation):
		return "validation"
	case crdb.Is(err, ErrRuleLoad):
		return "rule_load"
	case crdb.Is(err, ErrFetch):
		return "fetch"
	case crdb.Is(err, ErrResolution):
		return "resolution"
	case crdb.Is(err, ErrStoreWrite):
		return "store_write"
	case crdb.Is(err, ErrNotFound):
		return "not_found"
	}
	return "unknown"
}

// Parkable reports whether the entry that produced err must be parked
// instead of retried.
func Parkable(err error) bool {
	return err != nil && crdb.Is(err, ErrValidation)
}

// Fatal reports whether err must halt the whole run.
func Fatal(err error) bool {
	return err != nil && crdb.Is(err, ErrRuleLoad)
}

// Retryable reports whether the entry stays queued for a later run.
// Everything that is neither parkable nor fatal is retried, so an
// unclassified error never acknowledges an entry.
func Retryable(err error) bool {
	return err != nil && !Parkable(err) && !Fatal(err)
}

// Transient reports whether a single store call may succeed when repeated
// shortly after: SQLite busy/locked conditions and per-attempt deadlines.
// Content and validation failures are never transient.
func Transient(err error) bool {
	if err == nil || Parkable(err) {
		return false
	}
	var sqliteErr sqlite3.Error
	if crdb.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	if crdb.Is(err, context.DeadlineExceeded) {
		return true
	}
	// Driver errors that lost their type through wrapping.
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked")
}
