package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stackform-io/stackform/internal/engine"
)

var planVars map[string]string

var planCmd = &cobra.Command{
	Use:   "plan [dir]",
	Short: "Generate an execution plan",
	Long: `Generates an execution plan showing what actions Stackform will take
to converge the declared resources.

The plan shows resources to be created, updated (with attribute diff), and
deleted. The process exits 0 when there is nothing to do, 2 when changes are
pending, and 1 on error.`,
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringToStringVar(&planVars, "var", nil, "Set a variable value (format: name=value)")
}

func runPlan(cmd *cobra.Command, args []string) error {
	dir, err := resolveDir(args)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	fmt.Print("Loading configuration... ")
	_, g, _, err := loadWorkspace(dir, planVars)
	if err != nil {
		fmt.Println("FAILED")
		return fmt.Errorf("failed to load config: %w", err)
	}
	fmt.Println("OK")

	stateMgr, err := newStateBackend(dir)
	if err != nil {
		return err
	}
	st, err := stateMgr.Read(ctx)
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	fmt.Print("Calculating plan... ")
	plan := engine.CreatePlan(g, st)
	fmt.Println("OK")

	if !plan.HasChanges() {
		fmt.Println("\nNo changes. Infrastructure is up-to-date.")
		return nil
	}

	fmt.Println("\nStackform will perform the following actions:")
	renderPlanChanges(plan)
	renderPlanSummary(plan)

	return &ExitCodeError{Code: ExitChanges}
}
