// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pdiddy/indexer/internal/graphstore"
)

var proxyCmd = &cobra.Command{
	Use:   "proxy <iri>",
	Short: "Show the canonical proxy of an identifier",
	Long: `Proxy resolves an identifier, or a proxy identifier itself, to its
canonical proxy and prints the member identifiers and every fact stored
about the proxy across all documents.`,
	Args: cobra.ExactArgs(1),
	RunE: runProxy,
}

var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "List equivalence classes that spanned several proxies",
	Long: `Conflicts lists the records written under the flag conflict policy: an
equivalence class whose members already belonged to different proxies.
Proxies are never merged automatically.`,
	RunE: runConflicts,
}

var collectionsCmd = &cobra.Command{
	Use:   "collections",
	Short: "List the collections proxies are grouped into",
	Long: `Collections lists every void:Dataset in the graph store with the number of
proxies that are part of it: everything, one collection per source host
and one per recognised type (images, videos).`,
	RunE: runCollections,
}

func init() {
	proxyCmd.Flags().String("format", "nquads", "output format: nquads, json, yaml")
	conflictsCmd.Flags().Bool("json", false, "output conflicts as JSON")
	collectionsCmd.Flags().Bool("json", false, "output collections as JSON")

	rootCmd.AddCommand(proxyCmd)
	rootCmd.AddCommand(conflictsCmd)
	rootCmd.AddCommand(collectionsCmd)
}

func runProxy(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	ctx, stop := signalContext()
	defer stop()

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	p, err := s.Proxy(ctx, strings.Trim(args[0], "<>"))
	if err != nil {
		return err
	}
	return graphstore.WriteProxy(os.Stdout, p, graphstore.Format(format))
}

func runConflicts(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	ctx, stop := signalContext()
	defer stop()

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	cs, err := s.Conflicts(ctx)
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(os.Stdout, cs)
	}
	for _, c := range cs {
		fmt.Fprintf(os.Stdout, "%s\n  chosen: %s\n  others: %s\n  members: %s\n",
			c.SourceID, c.Chosen, strings.Join(c.Others, ", "), strings.Join(c.Members, ", "))
	}
	fmt.Fprintf(os.Stdout, "\n%d conflict(s)\n", len(cs))
	return nil
}

func runCollections(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	ctx, stop := signalContext()
	defer stop()

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	cs, err := s.Collections(ctx)
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(os.Stdout, cs)
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "COLLECTION\tLABEL\tPROXIES")
	for _, c := range cs {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", c.IRI, c.Label, c.Members)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "\n%d collection(s)\n", len(cs))
	return nil
}
