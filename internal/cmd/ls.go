package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	splode "github.com/go-splode/go-splode"
)

var lsCmd = &cobra.Command{
	Use:   "ls <container>",
	Short: "List the entities stored in an exported container",
	Long: `List the entities stored in an exported container.

Reads the container file, prints its content hash, and lists every
entity it holds along with the reference edges between them.

Examples:
  # List the contents of an exported mesh container
  splode ls _meshes/suzanne.unit`,
	Args: cobra.ExactArgs(1),
	RunE: runLs,
}

func init() {
	rootCmd.AddCommand(lsCmd)
}

func runLs(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	container, err := splode.DecodeContainer(data)
	if err != nil {
		return err
	}

	hash, err := container.Hash()
	if err != nil {
		return fmt.Errorf("hash container: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s\n", container.Path)
	fmt.Fprintf(out, "  hash: %s\n", hash)
	fmt.Fprintf(out, "  entities: %d\n", len(container.Entities))
	for _, e := range container.Entities {
		fmt.Fprintf(out, "    %-10s %-24q %s\n", e.Kind, e.Name, e.ID)
	}
	if len(container.Edges) > 0 {
		fmt.Fprintf(out, "  edges: %d\n", len(container.Edges))
		for _, edge := range container.Edges {
			fmt.Fprintf(out, "    %s -> %s\n", edge[0], edge[1])
		}
	}
	return nil
}
