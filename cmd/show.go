package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	"k8s.io/cli-runtime/pkg/genericiooptions"

	"github.com/hashmap-kz/jkube/internal/manifest"
)

// newShowCmd builds `show`: evaluate an entry file, extract its manifests
// and print them as a multi-document YAML stream, per spec.md §3.6/§6.1.
func newShowCmd(streams genericiooptions.IOStreams, log **zap.Logger) *cobra.Command {
	var extVarFlags []string
	var targets []string

	cmd := &cobra.Command{
		Use:   "show ENTRY_FILE",
		Short: "Extract and print the manifests an entry file produces",
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
			list := le.List
			if len(targets) > 0 {
				list, err = manifest.FilterTargets(list, targets)
				if err != nil {
					return err
				}
			}
			for i, m := range list {
				if i > 0 {
					fmt.Fprintln(streams.Out, "---")
				}
				raw, err := yaml.Marshal(map[string]interface{}(m))
				if err != nil {
					return err
				}
				fmt.Fprint(streams.Out, string(raw))
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&extVarFlags, "ext-str", nil, "external string variable as name=value")
	cmd.Flags().StringArrayVar(&targets, "target", nil, "limit output to resources matching kind/name (regex)")
	return cmd
}
