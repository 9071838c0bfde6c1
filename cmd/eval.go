package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"k8s.io/cli-runtime/pkg/genericiooptions"

	"github.com/hashmap-kz/jkube/internal/kube"
	"github.com/hashmap-kz/jkube/internal/lang/stdlib"
	"github.com/hashmap-kz/jkube/internal/manifest"
)

// newEvalCmd builds `eval`: evaluate an entry file and print its raw JSON
// result, before manifest extraction, per spec.md §6.1.
func newEvalCmd(streams genericiooptions.IOStreams, log **zap.Logger) *cobra.Command {
	var extVarFlags []string

	cmd := &cobra.Command{
		Use:   "eval ENTRY_FILE",
		Short: "Evaluate an entry file and print its raw JSON value",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			extVars, err := parseExtVarFlags(extVarFlags)
			if err != nil {
				return err
			}
			le, err := loadEnvironment(args[0], extVars, true)
			if err != nil {
				return err
			}
			generic, err := manifest.ToGeneric(le.In, le.Value)
			if err != nil {
				return err
			}
			raw, err := json.MarshalIndent(generic, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(streams.Out, string(raw))
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&extVarFlags, "ext-str", nil, "external string variable as name=value")
	return cmd
}

// addConcurrencyFlag registers the --concurrency flag shared by diff, apply
// and prune, which bounds the reconciliation worker pool per spec.md §5.
func addConcurrencyFlag(cmd *cobra.Command, dest *int) {
	cmd.Flags().IntVar(dest, "concurrency", kube.DefaultConcurrency, "max resources reconciled in parallel")
}

// parseExtVarFlags turns repeated --ext-str name=value flags into the
// table std.extVar reads from, per spec.md §4.6.
func parseExtVarFlags(flags []string) (map[string]stdlib.ExtVar, error) {
	if len(flags) == 0 {
		return nil, nil
	}
	out := make(map[string]stdlib.ExtVar, len(flags))
	for _, f := range flags {
		name, value, ok := splitKV(f)
		if !ok {
			return nil, fmt.Errorf("invalid --ext-str %q, expected name=value", f)
		}
		out[name] = stdlib.ExtVar{Value: value}
	}
	return out, nil
}

func splitKV(s string) (string, string, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == '=' {
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}
