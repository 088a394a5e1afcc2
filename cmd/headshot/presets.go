package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/menta2k/headshot/pkg/geometry"
)

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List the composition presets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tASPECT\tFACE SHARE\tHEADROOM\tBASIS\tMIN WIDTH")
		for _, name := range geometry.PresetNames() {
			p, err := cfg.CompositionFor(name)
			if err != nil {
				return err
			}
			mark := ""
			if name == cfg.Composition.Preset {
				mark = " *"
			}
			fmt.Fprintf(w, "%s%s\t%.3f\t%.2f\t%.2f\t%s\t%.0f\n",
				name, mark, p.TargetAspectRatio, p.HeadDominanceRatio, p.HeadroomRatio, p.FaceBasis(), p.MinCropWidth)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(presetsCmd)
}
