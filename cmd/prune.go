package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"k8s.io/cli-runtime/pkg/genericiooptions"

	"github.com/hashmap-kz/jkube/internal/kube"
	"github.com/hashmap-kz/jkube/internal/manifest"
)

// newPruneCmd builds `prune`: deletes cluster resources carrying the
// environment's label that are no longer in the desired set, per spec.md
// §4.11/§7 ("Prune: injectLabels disabled but prune requested").
func newPruneCmd(streams genericiooptions.IOStreams, log **zap.Logger) *cobra.Command {
	var extVarFlags []string
	var dryRun bool
	var concurrency int

	cmd := &cobra.Command{
		Use:   "prune ENTRY_FILE",
		Short: "Delete orphaned resources belonging to this environment",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			extVars, err := parseExtVarFlags(extVarFlags)
			if err != nil {
				return err
			}
			le, err := loadEnvironment(args[0], extVars, false)
			if err != nil {
				return err
			}
			if !le.Spec.InjectLabels {
				return fmt.Errorf("prune: injectLabels is disabled for this environment")
			}

			client, err := connectClient(le.Spec)
			if err != nil {
				return err
			}
			cache := kube.NewDiscoveryCache(client)

			label := manifest.EnvironmentLabel(le.Name, le.Spec.Namespace)
			orphans, err := kube.Prune(c.Context(), client, cache, le.List, label, kube.PruneOptions{Concurrency: concurrency})
			if err != nil {
				return err
			}

			for _, o := range orphans {
				fmt.Fprintf(streams.Out, "- %s\n", o.Identifier)
				if dryRun {
					continue
				}
				if err := kube.ForegroundDelete(c.Context(), client, cache, o.Identifier); err != nil {
					return fmt.Errorf("deleting %s: %w", o.Identifier, err)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&extVarFlags, "ext-str", nil, "external string variable as name=value")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list orphans without deleting them")
	addConcurrencyFlag(cmd, &concurrency)
	return cmd
}
