package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var graphVars map[string]string

var graphCmd = &cobra.Command{
	Use:   "graph [dir]",
	Short: "Output the dependency graph in DOT format",
	Long: `Generates a visual representation of the resource dependency graph
in Graphviz DOT format. Pipe the output to 'dot' to generate an image:

  stackform graph | dot -Tpng > graph.png

Resources excluded by their condition are drawn dashed.`,
	RunE: runGraph,
}

func init() {
	graphCmd.Flags().StringToStringVar(&graphVars, "var", nil, "Set a variable value (format: name=value)")
}

func runGraph(cmd *cobra.Command, args []string) error {
	dir, err := resolveDir(args)
	if err != nil {
		return err
	}

	_, g, _, err := loadWorkspace(dir, graphVars)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	addrs := make([]string, 0, len(g.Nodes))
	for addr := range g.Nodes {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	fmt.Println("digraph stackform {")
	fmt.Println("  rankdir = \"BT\";")
	fmt.Println("  node [shape = rect];")
	fmt.Println()

	for _, addr := range addrs {
		if g.Nodes[addr].Included {
			fmt.Printf("  %q;\n", addr)
		} else {
			fmt.Printf("  %q [style = dashed];\n", addr)
		}
	}
	fmt.Println()

	for _, addr := range addrs {
		for _, dep := range g.Nodes[addr].Deps {
			fmt.Printf("  %q -> %q;\n", addr, dep)
		}
	}

	fmt.Println("}")
	return nil
}
