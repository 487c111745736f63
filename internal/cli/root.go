package cli

import (
	"github.com/spf13/cobra"

	"github.com/stackform-io/stackform/internal/logging"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "stackform",
	Short: "Declarative infrastructure and build pipelines",
	Long: `Stackform converges declared infrastructure against remote APIs and runs
build pipelines over the same configuration.

Resources and pipelines are declared in *.sf.hcl files. Dependencies are
derived from expression references, scheduled in parallel batches, and the
results are recorded in a state file so repeated runs are idempotent.`,
	// Errors reach main through Execute; main prints them and maps exit codes.
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(logLevel)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(destroyCmd)
	rootCmd.AddCommand(outputCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(pipelineCmd)
	rootCmd.AddCommand(versionCmd)
}
