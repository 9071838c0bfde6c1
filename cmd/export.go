package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"k8s.io/cli-runtime/pkg/genericiooptions"

	"github.com/hashmap-kz/jkube/internal/export"
)

// newExportCmd builds `export`: writes every extracted manifest to disk
// under a path template, per spec.md §6.4.
func newExportCmd(streams genericiooptions.IOStreams, log **zap.Logger) *cobra.Command {
	var extVarFlags []string
	var outDir string
	var pathTemplate string
	var overwrite bool
	var writeIndex bool

	cmd := &cobra.Command{
		Use:   "export ENTRY_FILE",
		Short: "Export an environment's manifests to files",
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

			merge := export.MergeNone
			if overwrite {
				merge = export.MergeOverwrite
			}
			idx, err := export.Export(list, export.Options{
				OutDir:       outDir,
				PathTemplate: pathTemplate,
				Merge:        merge,
				WriteIndex:   writeIndex,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(streams.Out, "exported %d manifests to %s\n", len(idx.Entries), outDir)
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&extVarFlags, "ext-str", nil, "external string variable as name=value")
	cmd.Flags().StringVar(&outDir, "out", ".", "output directory")
	cmd.Flags().StringVar(&pathTemplate, "path-template", "{namespace}/{kind}-{name}.yaml", "per-manifest path template")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "allow path collisions by overwriting")
	cmd.Flags().BoolVar(&writeIndex, "write-index", true, "write a manifest.json path index")
	return cmd
}
