// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/indexer/internal/ingest"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [files...]",
	Short: "Load harvested N-Quads dumps into the document cache",
	Long: `Ingest parses N-Quads files and caches every named graph labelled with an
http(s) IRI as one document, keyed by the label, and queues it for
processing. Graphs whose content has not changed since the last ingest are
skipped and keep their queue state.`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().Bool("clean", false, "delete every cached document before ingesting")

	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	clean, _ := cmd.Flags().GetBool("clean")
	if len(args) == 0 && !clean {
		return fmt.Errorf("provide one or more N-Quads files")
	}

	ctx, stop := signalContext()
	defer stop()

	c, err := openCache()
	if err != nil {
		return err
	}
	defer c.Close()

	if clean {
		if err := c.Reset(ctx); err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, "document cache cleared")
	}
	if len(args) == 0 {
		return nil
	}

	result := ingest.Batch(ctx, c, args, os.Stdout)
	if result.HasFailures() {
		return fmt.Errorf("%d graph(s) or file(s) failed ingest", result.Failed)
	}
	return nil
}
