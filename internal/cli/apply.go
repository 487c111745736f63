package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stackform-io/stackform/internal/engine"
	"github.com/stackform-io/stackform/internal/provider"
)

var (
	applyAutoApprove bool
	applyVars        map[string]string
)

var applyCmd = &cobra.Command{
	Use:   "apply [dir]",
	Short: "Apply a configuration",
	Long: `Builds or changes infrastructure according to the *.sf.hcl configuration
files in the given directory.

Resources are applied in dependency order, independent resources in
parallel. State is written after every run, including failed ones, so
partial progress survives and a re-run resumes where the last one stopped.`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().BoolVar(&applyAutoApprove, "auto-approve", false, "Skip interactive approval of plan before applying")
	applyCmd.Flags().StringToStringVar(&applyVars, "var", nil, "Set a variable value (format: name=value)")
}

func runApply(cmd *cobra.Command, args []string) error {
	dir, err := resolveDir(args)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	stateMgr, err := newStateBackend(dir)
	if err != nil {
		return err
	}
	if err := stateMgr.Lock(); err != nil {
		return err
	}
	defer stateMgr.Unlock()

	fmt.Print("Loading configuration... ")
	cfg, g, vars, err := loadWorkspace(dir, applyVars)
	if err != nil {
		fmt.Println("FAILED")
		return fmt.Errorf("failed to load config: %w", err)
	}
	fmt.Println("OK")

	registry := provider.NewRegistry()
	if err := loadRequiredProviders(registry, g); err != nil {
		return err
	}

	st, err := stateMgr.Read(ctx)
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	// Resources dropped from the config still need their provider for DELETE.
	if err := loadStateProviders(registry, st); err != nil {
		return err
	}

	fmt.Print("Calculating plan... ")
	plan := engine.CreatePlan(g, st)
	fmt.Println("OK")

	if !plan.HasChanges() {
		fmt.Println("No changes. Infrastructure is up-to-date.")
		return nil
	}

	fmt.Println("\nStackform will perform the following actions:")
	renderPlanChanges(plan)
	renderPlanSummary(plan)

	if !applyAutoApprove {
		fmt.Print("\nDo you want to perform these actions? (y/n): ")
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "yes" {
			fmt.Println("Apply cancelled.")
			return nil
		}
	}

	fmt.Printf("\nApplying %d changes...\n", plan.Summary.Create+plan.Summary.Update+plan.Summary.Delete)

	eng := engine.New(registry)
	applyErr := eng.Apply(ctx, g, plan, st, vars)

	// Write state even on failure so successful changes aren't lost.
	if err := stateMgr.Write(ctx, st); err != nil {
		if applyErr != nil {
			return fmt.Errorf("apply failed (%v) and state write failed: %w", applyErr, err)
		}
		return fmt.Errorf("failed to write state: %w", err)
	}
	if applyErr != nil {
		return fmt.Errorf("apply failed: %w", applyErr)
	}

	pending, err := engine.ResolveOutputs(cfg, st, vars)
	if err != nil {
		return fmt.Errorf("failed to resolve outputs: %w", err)
	}
	if err := stateMgr.Write(ctx, st); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}

	fmt.Printf("\nApply complete! Resources: %d added, %d changed, %d destroyed.\n",
		plan.Summary.Create, plan.Summary.Update, plan.Summary.Delete)

	if len(st.Outputs) > 0 {
		fmt.Println("\nOutputs:")
		for k, v := range st.Outputs {
			fmt.Printf("  %s = %v\n", k, formatValue(v))
		}
	}
	for _, name := range pending {
		fmt.Printf("  %s = (known after apply)\n", name)
	}

	return &ExitCodeError{Code: ExitChanges}
}
