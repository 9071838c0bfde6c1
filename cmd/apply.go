package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"k8s.io/cli-runtime/pkg/genericiooptions"

	applypkg "github.com/hashmap-kz/jkube/internal/apply"
	"github.com/hashmap-kz/jkube/internal/kube"
	"github.com/hashmap-kz/jkube/internal/manifest"
)

// newApplyCmd builds `apply`: connects to the environment's cluster and
// applies every extracted manifest, per spec.md §4.12/§6.1.
func newApplyCmd(streams genericiooptions.IOStreams, log **zap.Logger) *cobra.Command {
	var extVarFlags []string
	var targets []string
	var strategy string
	var force bool
	var dryRun bool
	var wait bool
	var rollback bool
	var timeout time.Duration
	var concurrency int

	cmd := &cobra.Command{
		Use:   "apply ENTRY_FILE",
		Short: "Apply an environment's manifests to the cluster",
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

			var backups []applypkg.Backup
			if rollback {
				backups, err = applypkg.CaptureBackups(c.Context(), client, cache, list)
				if err != nil {
					return err
				}
			}

			applyStrategy := kube.ApplyClient
			if strategy == string(kube.ApplyServer) || (strategy == "" && le.Spec.ApplyStrategy == string(kube.ApplyServer)) {
				applyStrategy = kube.ApplyServer
			}

			results, err := kube.Apply(c.Context(), client, cache, list, kube.ApplyOptions{
				Strategy:    applyStrategy,
				Force:       force,
				DryRun:      dryRun,
				Concurrency: concurrency,
			})
			if err != nil {
				if rollback {
					if rbErr := applypkg.Rollback(c.Context(), client, cache, backups); rbErr != nil {
						return fmt.Errorf("apply failed (%w), rollback also failed: %v", err, rbErr)
					}
					return fmt.Errorf("apply failed, rolled back: %w", err)
				}
				return err
			}
			for _, r := range results {
				fmt.Fprintf(streams.Out, "%s %s\n", r.Status, r.Identifier)
			}

			if wait && !dryRun {
				waitErr := applypkg.WaitForReady(c.Context(), client, list, applypkg.WaitOptions{Timeout: timeout})
				if waitErr != nil && rollback {
					if rbErr := applypkg.Rollback(c.Context(), client, cache, backups); rbErr != nil {
						return fmt.Errorf("resources not ready (%w), rollback also failed: %v", waitErr, rbErr)
					}
					return fmt.Errorf("resources not ready, rolled back: %w", waitErr)
				}
				return waitErr
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&extVarFlags, "ext-str", nil, "external string variable as name=value")
	cmd.Flags().StringArrayVar(&targets, "target", nil, "limit to resources matching kind/name (regex)")
	cmd.Flags().StringVar(&strategy, "strategy", "", "apply strategy: client|server (default: client)")
	cmd.Flags().BoolVar(&force, "force", false, "force conflicting changes through")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "don't mutate the cluster")
	addConcurrencyFlag(cmd, &concurrency)

	// Safety flags (own section), matching the connection-flags grouping
	// convention: wait/rollback/timeout govern what happens after the
	// apply call returns, not what gets applied.
	safety := pflag.NewFlagSet("Safety flags", pflag.ContinueOnError)
	safety.BoolVar(&wait, "wait", false, "wait for resources to become ready after applying")
	safety.BoolVar(&rollback, "rollback", false, "roll back to the pre-apply state on failure")
	safety.DurationVar(&timeout, "timeout", 60*time.Second, "max time to wait with --wait")
	cmd.Flags().AddFlagSet(safety)
	return cmd
}
