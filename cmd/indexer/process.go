// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/indexer/internal/errors"
	"github.com/pdiddy/indexer/internal/metrics"
	"github.com/pdiddy/indexer/internal/pipeline"
	"github.com/pdiddy/indexer/internal/rules"
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Drain the queue: extract, resolve and store each document",
	Long: `Process takes the queued documents from the cache, applies the rule file to
each, resolves subjects to canonical proxies and writes the derived graphs,
membership links and provenance to the graph store. An entry is only
acknowledged after its graphs are committed.

With --interval the queue is polled until interrupted; the rule file is
reloaded on change when pipeline.watch_rules is set.`,
	RunE: runProcess,
}

func init() {
	processCmd.Flags().Bool("clean", false, "reset the graph store and re-queue every cached document first")
	processCmd.Flags().Int("workers", 0, "fetch/extract workers (default from config)")
	processCmd.Flags().Duration("interval", 0, "keep polling the queue at this interval")

	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	clean, _ := cmd.Flags().GetBool("clean")
	interval, _ := cmd.Flags().GetDuration("interval")
	if n, _ := cmd.Flags().GetInt("workers"); n > 0 {
		cfg.Pipeline.Workers = n
	}

	ctx, stop := signalContext()
	defer stop()

	base, err := rules.NewBase(cfg.Rules, log)
	if err != nil {
		return err
	}
	if cfg.Pipeline.WatchRules {
		go func() {
			if err := base.Watch(ctx); err != nil && ctx.Err() == nil {
				log.Warnw("rule watcher stopped", "error", err)
			}
		}()
	}

	c, err := openCache()
	if err != nil {
		return err
	}
	defer c.Close()
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	p := pipeline.New(pipeline.Options{
		Config:  cfg,
		Cache:   c,
		Store:   s,
		Rules:   base,
		Log:     log,
		Metrics: metrics.New(),
	})

	if clean {
		n, err := p.Clean(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "graph store cleared, %d documents queued\n", n)
	}

	for {
		sum, err := p.Run(ctx, os.Stdout)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return nil
		case interval > 0 && errors.Is(err, errors.ErrLocked):
			log.Warnw("another process holds the writer lock, waiting", "error", err)
		default:
			return err
		}
		if interval <= 0 {
			if sum.HasFailures() {
				return fmt.Errorf("%d entries failed, %d parked", sum.Failed, sum.Parked)
			}
			return nil
		}
		if err := sleep(ctx, interval); err != nil {
			return nil
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
