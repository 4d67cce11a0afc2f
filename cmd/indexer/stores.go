// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pdiddy/indexer/internal/cache"
	"github.com/pdiddy/indexer/internal/graphstore"
)

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func openCache() (*cache.Cache, error) {
	return cache.Open(cfg.Cache.Path, log)
}

func openStore() (*graphstore.Store, error) {
	return graphstore.Open(cfg.Store.Path, log)
}
