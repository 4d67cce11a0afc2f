// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the graph store as canonical N-Quads",
	Long: `Export writes every stored quad as sorted, de-duplicated N-Quads, so two
exports of the same content are byte-identical. A summary of the store is
printed to stderr.`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringP("output", "o", "", "write to this file instead of stdout")

	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	output, _ := cmd.Flags().GetString("output")
	ctx, stop := signalContext()
	defer stop()

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("creating %s: %w", output, err)
		}
		defer f.Close()
		w = f
	}
	if err := s.Dump(ctx, w); err != nil {
		return err
	}

	st, err := s.Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "%d quads in %d graphs from %d documents; %d proxies with %d members, %d conflicts\n",
		st.Quads, st.Graphs, st.Documents, st.Proxies, st.Members, st.Conflicts)
	return nil
}
