package cmd

import (
	"encoding/gob"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	splode "github.com/go-splode/go-splode"
)

var planCmd = &cobra.Command{
	Use:   "plan <document>",
	Short: "Show the export units a document would decompose into",
	Long: `Show the export units a document would decompose into.

Loads the document's entity graph, partitions it into export units,
and prints the units in the order they would be written: dependencies
first, so every container exists before the containers that link to
it.

The selection expression sees one entity at a time through the fields
name, kind and external. Entities the selection rejects still join the
plan when a selected entity references them.

Examples:
  # Plan the decomposition of every exportable entity
  splode plan scene.doc

  # Plan only the meshes and everything they pull in
  splode plan scene.doc --select 'kind == "mesh"'`,
	Args: cobra.ExactArgs(1),
	RunE: runPlan,
}

var planSelect string

func init() {
	rootCmd.AddCommand(planCmd)

	planCmd.Flags().StringVar(&planSelect, "select", "", "Selection expression (default: every exportable entity)")
}

func runPlan(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	var graph splode.Graph
	if err := gob.NewDecoder(f).Decode(&graph); err != nil {
		return fmt.Errorf("decode document %q: %w", args[0], err)
	}

	var selection splode.Selection
	if planSelect != "" {
		selection, err = splode.CompileSelection(planSelect)
		if err != nil {
			return err
		}
	}

	namer := splode.DefaultNamer(viper.GetString("export.root"))
	plan, err := splode.PlanDecomposition(&graph, selection, namer)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, unit := range plan.Units {
		marker := ""
		if unit.Ambiguous {
			marker = "  (ambiguous)"
		}
		kinds := make([]string, len(unit.Kinds))
		for i, k := range unit.Kinds {
			kinds[i] = string(k)
		}
		fmt.Fprintf(out, "%s  [%s]  %d member(s)%s\n", unit.Path, strings.Join(kinds, ", "), len(unit.Members), marker)
	}
	if ambiguous := plan.AmbiguousUnits(); len(ambiguous) > 0 {
		fmt.Fprintf(out, "\n%d unit(s) hold entities of mixed kinds; review before exporting\n", len(ambiguous))
	}
	return nil
}
