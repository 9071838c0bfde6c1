package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"k8s.io/cli-runtime/pkg/genericiooptions"
)

// NewRootCmd builds the jkube command tree: eval, show, diff, apply, prune,
// export, env list, per spec.md §6.1.
func NewRootCmd(streams genericiooptions.IOStreams) *cobra.Command {
	var verbose bool
	log := newLogger(false)

	rootCmd := &cobra.Command{
		Use:           "jkube",
		Short:         "A config-language evaluator and Kubernetes reconciler.",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log = newLogger(verbose)
			return nil
		},
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(
		newEvalCmd(streams, &log),
		newShowCmd(streams, &log),
		newDiffCmd(streams, &log),
		newApplyCmd(streams, &log),
		newPruneCmd(streams, &log),
		newExportCmd(streams, &log),
		newEnvCmd(streams, &log),
	)
	return rootCmd
}

func newLogger(verbose bool) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	}
	l, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return l
}
