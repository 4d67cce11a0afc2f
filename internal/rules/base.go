// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package rules

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/pdiddy/indexer/internal/errors"
	"github.com/pdiddy/indexer/internal/logging"
)

// reloadDebounce collapses bursts of editor writes into one reload.
var reloadDebounce = 300 * time.Millisecond

// Base holds the current rule set loaded from a file. The set is
// immutable; Reload swaps in a whole new one, so callers that took a
// snapshot with Rules keep a consistent view.
type Base struct {
	path    string
	log     *zap.SugaredLogger
	current atomic.Pointer[[]Rule]
	loads   atomic.Int64
}

// NewBase loads the rule file at path. A malformed file is a fatal
// RuleLoadError.
func NewBase(path string, log *zap.SugaredLogger) (*Base, error) {
	b := &Base{path: path, log: logging.OrNop(log)}
	if err := b.Reload(); err != nil {
		return nil, err
	}
	return b, nil
}

// Path returns the rule file path.
func (b *Base) Path() string { return b.path }

// Rules returns the current rule set. Callers must not modify it.
func (b *Base) Rules() []Rule {
	p := b.current.Load()
	if p == nil {
		return nil
	}
	return *p
}

// Generation counts successful loads.
func (b *Base) Generation() int64 { return b.loads.Load() }

// Reload re-reads the rule file. On failure the previous set stays active.
func (b *Base) Reload() error {
	rs, err := Load(b.path)
	if err != nil {
		return err
	}
	b.current.Store(&rs)
	gen := b.loads.Add(1)
	b.log.Infow("rules loaded", "path", b.path, "rules", len(rs), "generation", gen)
	return nil
}

// Watch reloads the rule file whenever it changes, until ctx is done.
// The parent directory is watched so that editors replacing the file by
// rename are noticed.
func (b *Base) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "creating rule watcher")
	}
	defer w.Close()

	dir := filepath.Dir(b.path)
	if err := w.Add(dir); err != nil {
		return errors.Wrapf(err, "watching %s", dir)
	}
	target := filepath.Clean(b.path)

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			b.log.Debugw("rule file changed", "path", ev.Name, "op", ev.Op.String())
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
			} else {
				timer.Reset(reloadDebounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			if err := b.Reload(); err != nil {
				b.log.Errorw("rule reload failed, keeping previous rules",
					"path", b.path, "generation", b.Generation(), "error", err)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			b.log.Warnw("rule watcher error", "error", err)
		}
	}
}
