// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/indexer/internal/cache"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "List documents waiting to be processed",
	RunE:  runQueue,
}

var parkedCmd = &cobra.Command{
	Use:   "parked",
	Short: "List documents set aside for manual review",
	Long: `Parked lists entries that failed validation, hit a proxy conflict under the
reject policy, or exhausted pipeline.max_attempts. Use --requeue after
fixing the cause to queue them again.`,
	RunE: runParked,
}

func init() {
	queueCmd.Flags().Bool("json", false, "output entries as JSON")
	parkedCmd.Flags().Bool("json", false, "output entries as JSON")
	parkedCmd.Flags().StringSlice("requeue", nil, "queue these parked source identifiers again")

	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(parkedCmd)
}

func runQueue(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	ctx, stop := signalContext()
	defer stop()

	c, err := openCache()
	if err != nil {
		return err
	}
	defer c.Close()

	entries, err := c.Pending(ctx)
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(os.Stdout, entries)
	}
	stats, err := c.Stats(ctx)
	if err != nil {
		return err
	}
	writeEntries(os.Stdout, entries, false)
	fmt.Fprintf(os.Stdout, "\n%d pending, %d processed, %d parked (total: %d)\n",
		stats.Pending, stats.Processed, stats.Parked, stats.Documents)
	return nil
}

func runParked(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	requeue, _ := cmd.Flags().GetStringSlice("requeue")
	ctx, stop := signalContext()
	defer stop()

	c, err := openCache()
	if err != nil {
		return err
	}
	defer c.Close()

	for _, id := range requeue {
		if err := c.Enqueue(ctx, id); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "requeued: %s\n", id)
	}
	if len(requeue) > 0 {
		return nil
	}

	entries, err := c.Parked(ctx)
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(os.Stdout, entries)
	}
	writeEntries(os.Stdout, entries, true)
	fmt.Fprintf(os.Stdout, "\n%d parked\n", len(entries))
	return nil
}

func writeEntries(w io.Writer, entries []cache.Entry, parked bool) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if parked {
		fmt.Fprintln(tw, "SOURCE\tATTEMPTS\tUPDATED\tREASON")
	} else {
		fmt.Fprintln(tw, "SOURCE\tATTEMPTS\tQUEUED\tLAST ERROR")
	}
	for _, e := range entries {
		when, detail := e.EnqueuedAt, e.LastError
		if parked {
			when, detail = e.LastUpdated, e.ParkedReason
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", e.SourceID, e.Attempts, when.Format(time.DateTime), detail)
	}
	tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
