package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateVars map[string]string

var validateCmd = &cobra.Command{
	Use:   "validate [dir]",
	Short: "Validate configuration files",
	Long: `Validates the syntax and references of all *.sf.hcl configuration files
in the given directory (default: current directory).

Validation parses every file, binds variables, builds the dependency graph,
and resolves conditional resources, so unknown references, dependency
cycles, and condition violations are all reported.`,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringToStringVar(&validateVars, "var", nil, "Set a variable value (format: name=value)")
}

func runValidate(cmd *cobra.Command, args []string) error {
	dir, err := resolveDir(args)
	if err != nil {
		return err
	}

	fmt.Print("Validating configuration... ")
	cfg, g, _, err := loadWorkspace(dir, validateVars)
	if err != nil {
		fmt.Println("FAILED")
		return fmt.Errorf("validation failed: %w", err)
	}
	fmt.Println("OK")

	included := 0
	for _, n := range g.Nodes {
		if n.Included {
			included++
		}
	}
	fmt.Printf("\nConfiguration is valid: %d resources (%d included), %d outputs, %d pipelines.\n",
		len(cfg.Resources), included, len(cfg.Outputs), len(cfg.Pipelines))
	return nil
}
