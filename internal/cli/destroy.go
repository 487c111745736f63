package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stackform-io/stackform/internal/engine"
	"github.com/stackform-io/stackform/internal/provider"
)

var destroyAutoApprove bool

var destroyCmd = &cobra.Command{
	Use:   "destroy [dir]",
	Short: "Destroy all managed infrastructure",
	Long: `Destroys all resources tracked in the state file, one at a time, in the
exact reverse of the order they were created.

This command is the inverse of 'stackform apply'. Resources that are
already gone remotely are simply dropped from state, so re-running a
partially failed destroy is safe.`,
	RunE: runDestroy,
}

func init() {
	destroyCmd.Flags().BoolVar(&destroyAutoApprove, "auto-approve", false, "Skip interactive approval before destroying")
}

func runDestroy(cmd *cobra.Command, args []string) error {
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

	st, err := stateMgr.Read(ctx)
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}
	if len(st.Resources) == 0 {
		fmt.Println("Nothing to destroy. State is empty.")
		return nil
	}

	registry := provider.NewRegistry()
	if err := loadStateProviders(registry, st); err != nil {
		return err
	}

	fmt.Printf("The following %d resources will be destroyed:\n", len(st.Resources))
	for _, addr := range engine.DestroyOrder(st) {
		fmt.Printf("\033[31m  - %s\033[0m\n", addr)
	}

	if !destroyAutoApprove {
		fmt.Print("\nDo you really want to destroy all resources? (y/n): ")
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "yes" {
			fmt.Println("Destroy cancelled.")
			return nil
		}
	}

	eng := engine.New(registry)
	destroyErr := eng.Destroy(ctx, st)

	if err := stateMgr.Write(ctx, st); err != nil {
		if destroyErr != nil {
			return fmt.Errorf("destroy failed (%v) and state write failed: %w", destroyErr, err)
		}
		return fmt.Errorf("failed to write state: %w", err)
	}
	if destroyErr != nil {
		return fmt.Errorf("destroy failed: %w", destroyErr)
	}

	fmt.Println("\nDestroy complete! All resources have been deleted.")
	return nil
}
