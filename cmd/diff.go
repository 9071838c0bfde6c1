package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"k8s.io/cli-runtime/pkg/genericiooptions"

	"github.com/hashmap-kz/jkube/internal/kube"
	"github.com/hashmap-kz/jkube/internal/manifest"
	"github.com/hashmap-kz/jkube/internal/printer"
)

// exitCodeDiffFound is returned by `diff` when changes are detected and
// --exit-zero isn't set, per spec.md §6.1.
const exitCodeDiffFound = 16

// newDiffCmd builds `diff`: connects to the environment's cluster, diffs
// every extracted manifest and prints a summary, per spec.md §4.10/§6.1.
func newDiffCmd(streams genericiooptions.IOStreams, log **zap.Logger) *cobra.Command {
	var extVarFlags []string
	var targets []string
	var exitZero bool
	var strategy string
	var summarize bool
	var concurrency int

	cmd := &cobra.Command{
		Use:   "diff ENTRY_FILE",
		Short: "Diff an environment's manifests against the cluster",
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
			list := le.List
			if len(targets) > 0 {
				list, err = manifest.FilterTargets(list, targets)
				if err != nil {
					return err
				}
			}
			if le.Spec.InjectLabels {
				label := manifest.EnvironmentLabel(le.Name, le.Spec.Namespace)
				manifest.InjectLabel(list, manifest.EnvironmentLabelKey, label)
			}

			client, err := connectClient(le.Spec)
			if err != nil {
				return err
			}
			cache := kube.NewDiscoveryCache(client)

			opts := kube.DiffOptions{
				Strategy:    resolveDiffStrategy(strategy, le.Spec.DiffStrategy),
				Concurrency: concurrency,
			}
			diffs, err := kube.Diff(c.Context(), client, cache, list, opts)
			if err != nil {
				return err
			}

			if summarize {
				printer.PrintDiffSummary(streams.Out, diffs)
			} else {
				printer.PrintDiffSummary(streams.Out, diffs)
				printer.PrintDiffText(streams.Out, diffs)
			}

			if !exitZero && hasChanges(diffs) {
				os.Exit(exitCodeDiffFound)
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&extVarFlags, "ext-str", nil, "external string variable as name=value")
	cmd.Flags().StringArrayVar(&targets, "target", nil, "limit to resources matching kind/name (regex)")
	cmd.Flags().BoolVar(&exitZero, "exit-zero", false, "always exit 0, even if changes were found")
	cmd.Flags().StringVar(&strategy, "strategy", "", "diff strategy: native|subset|server|validate (default: auto)")
	cmd.Flags().BoolVar(&summarize, "summarize", false, "print only the one-line-per-resource summary")
	addConcurrencyFlag(cmd, &concurrency)
	return cmd
}

func resolveDiffStrategy(flag, specValue string) kube.Strategy {
	if flag != "" {
		return kube.Strategy(flag)
	}
	if specValue != "" {
		return kube.Strategy(specValue)
	}
	return ""
}

func hasChanges(diffs []kube.ResourceDiff) bool {
	for _, d := range diffs {
		if d.Status != kube.StatusUnchanged {
			return true
		}
	}
	return false
}
