//go:build mage

package main

import (
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Index groups targets that drive the built binary.
type Index mg.Namespace

func indexer(args ...string) error {
	return sh.RunV(filepath.Join(binDir, binName), args...)
}

// Ingest loads every N-Quads file under dumps/ into the cache.
func (Index) Ingest() error {
	mg.Deps(Build)
	files, err := filepath.Glob(filepath.Join("dumps", "*.nq"))
	if err != nil {
		return err
	}
	return indexer(append([]string{"ingest"}, files...)...)
}

// Process drains the queue.
func (Index) Process() error {
	mg.Deps(Build)
	return indexer("process")
}

// Rebuild resets the graph store and processes every cached document.
func (Index) Rebuild() error {
	mg.Deps(Build)
	return indexer("process", "--clean")
}

// Rules compiles the rule file.
func (Index) Rules() error {
	mg.Deps(Build)
	return indexer("rules", "check")
}
