package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/stackform-io/stackform/internal/engine"
	"github.com/stackform-io/stackform/internal/ir"
	"github.com/stackform-io/stackform/internal/pipeline"
	"github.com/stackform-io/stackform/internal/provider"
)

var (
	pipelineRevision string
	pipelineVars     map[string]string
)

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Run build pipelines",
}

var pipelineRunCmd = &cobra.Command{
	Use:   "run <name> [dir]",
	Short: "Run a pipeline for a revision",
	Long: `Runs the named pipeline. Steps execute in dependency order, independent
steps in parallel. The revision is exposed to step argument templates and as
STACKFORM_REVISION in script steps.

The first step failure aborts the run: in-flight steps finish, everything
not yet started is marked skipped.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPipeline,
}

func init() {
	pipelineRunCmd.Flags().StringVar(&pipelineRevision, "revision", "", "Revision (e.g. a git SHA) the pipeline builds")
	pipelineRunCmd.Flags().StringToStringVar(&pipelineVars, "var", nil, "Set a variable value (format: name=value)")
	pipelineRunCmd.MarkFlagRequired("revision")
	pipelineCmd.AddCommand(pipelineRunCmd)
}

func runPipeline(cmd *cobra.Command, args []string) error {
	name := args[0]
	dir, err := resolveDir(args[1:])
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	fmt.Print("Loading configuration... ")
	cfg, _, vars, err := loadWorkspace(dir, pipelineVars)
	if err != nil {
		fmt.Println("FAILED")
		return fmt.Errorf("failed to load config: %w", err)
	}
	fmt.Println("OK")

	decl := cfg.Pipeline(name)
	if decl == nil {
		return fmt.Errorf("pipeline %q is not defined", name)
	}

	p, err := pipeline.Build(decl)
	if err != nil {
		return fmt.Errorf("failed to build pipeline %s: %w", name, err)
	}

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

	registry := provider.NewRegistry()
	if err := loadStateProviders(registry, st); err != nil {
		return err
	}
	eng := engine.New(registry)

	deploy := func(ctx context.Context, address string, overrides map[string]any) error {
		if err := eng.ApplySingle(ctx, st, address, overrides); err != nil {
			return err
		}
		return stateMgr.Write(ctx, st)
	}

	exec := pipeline.NewExecutor(pipeline.DefaultRunners(deploy), pipelineRevision)
	exec.Vars = vars
	exec.WorkDir = dir

	fmt.Printf("\nRunning pipeline %s for revision %s (%d steps)...\n\n", name, pipelineRevision, len(p.Steps))

	result, runErr := exec.Run(ctx, p)
	renderPipelineResult(result)
	if runErr != nil {
		return runErr
	}

	fmt.Println("\nPipeline complete!")
	return nil
}

func renderPipelineResult(result *pipeline.Result) {
	ids := make([]string, 0, len(result.Steps))
	for id := range result.Steps {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		sr := result.Steps[id]
		color := "\033[0m"
		switch sr.Status {
		case ir.StepSucceeded:
			color = "\033[32m"
		case ir.StepFailed:
			color = "\033[31m"
		case ir.StepSkipped:
			color = "\033[33m"
		}
		fmt.Printf("%s  %-10s %s%s\n", color, sr.Status, id, "\033[0m")
		if sr.Err != nil {
			fmt.Printf("             %v\n", sr.Err)
		}
	}
}
