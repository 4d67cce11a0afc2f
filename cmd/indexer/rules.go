// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pdiddy/indexer/internal/rules"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect the extraction rule file",
}

var rulesCheckCmd = &cobra.Command{
	Use:   "check [file]",
	Short: "Compile a rule file and list its rules",
	Long: `Check compiles the rule file (default: the configured rules path) exactly as
process would and lists each rule with the graph fragment its output is
stored under. A malformed file exits non-zero.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRulesCheck,
}

func init() {
	rulesCmd.AddCommand(rulesCheckCmd)
	rootCmd.AddCommand(rulesCmd)
}

func runRulesCheck(cmd *cobra.Command, args []string) error {
	path := cfg.Rules
	if len(args) == 1 {
		path = args[0]
	}
	rs, err := rules.Load(path)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tGRAPH\tWHERE\tCONSTRUCT")
	for _, r := range rs {
		fmt.Fprintf(tw, "%s\t#%s\t%d\t%d\n", r.ID, r.Fragment(), len(r.Where), len(r.Construct))
	}
	tw.Flush()
	fmt.Fprintf(os.Stdout, "\n%s: %d rules OK\n", path, len(rs))
	return nil
}
