package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"k8s.io/cli-runtime/pkg/genericiooptions"

	"github.com/hashmap-kz/jkube/internal/manifest"
	"github.com/hashmap-kz/jkube/internal/printer"
)

// newEnvCmd builds `env`, whose only subcommand today is `list`: summarize
// one or more entry files as environments, per spec.md §6.1.
func newEnvCmd(streams genericiooptions.IOStreams, log **zap.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "env",
		Short: "Inspect environments",
	}
	cmd.AddCommand(newEnvListCmd(streams, log))
	return cmd
}

func newEnvListCmd(streams genericiooptions.IOStreams, log **zap.Logger) *cobra.Command {
	var extVarFlags []string

	cmd := &cobra.Command{
		Use:   "list ENTRY_FILE...",
		Short: "List environments and how many manifests each produces",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			extVars, err := parseExtVarFlags(extVarFlags)
			if err != nil {
				return err
			}
			summaries := make([]printer.EnvSummary, 0, len(args))
			for _, entry := range args {
				le, err := loadEnvironment(entry, extVars, false)
				if err != nil {
					return err
				}
				label := manifest.EnvironmentLabel(le.Name, le.Spec.Namespace)
				summaries = append(summaries, printer.EnvSummary{
					Name:      le.Name,
					Namespace: le.Spec.Namespace,
					Label:     label,
					Manifests: len(le.List),
				})
			}
			printer.PrintEnvList(streams.Out, summaries)
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&extVarFlags, "ext-str", nil, "external string variable as name=value")
	return cmd
}
