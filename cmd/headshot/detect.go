package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/menta2k/headshot/internal/config"
	"github.com/menta2k/headshot/pkg/analyzer"
	"github.com/menta2k/headshot/pkg/detection"
	"github.com/menta2k/headshot/pkg/geometry"
	"github.com/menta2k/headshot/pkg/types"
)

var (
	detectJSON       bool
	detectTestVision bool
)

var detectCmd = &cobra.Command{
	Use:   "detect <image|URL>",
	Short: "Show the detected face and the crop box of every preset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if detectTestVision {
			return runTestVision(cmd.Context(), args[0])
		}
		return runDetect(cmd.Context(), args[0])
	},
}

func init() {
	detectCmd.Flags().BoolVar(&detectJSON, "json", false, "print JSON instead of a table")
	detectCmd.Flags().BoolVar(&detectTestVision, "test-vision", false, "ask the model to describe the image instead")
	rootCmd.AddCommand(detectCmd)
}

func runDetect(ctx context.Context, input string) error {
	hc, err := newCropper(cfg)
	if err != nil {
		return err
	}
	a := analyzer.New()
	img, data, err := a.LoadImageSmart(ctx, input)
	if err != nil {
		return &types.StageError{Stage: types.StageLoad, Err: err}
	}
	if err := a.ValidateImage(img); err != nil {
		log.Printf("warning: %v", err)
	}

	names := geometry.PresetNames()
	comps := make([]types.CompositionConfig, 0, len(names))
	for _, name := range names {
		comp, err := cfg.CompositionFor(name)
		if err != nil {
			return err
		}
		comps = append(comps, comp)
	}

	results, err := hc.CropPresets(ctx, data, comps)
	if err != nil {
		return err
	}

	if detectJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	first := results[0]
	info := a.GetImageInfo(img)
	fmt.Printf("Image: %dx%d, ratio %.2f (analysed at %dx%d)\n",
		info.Width, info.Height, info.AspectRatio,
		first.AnalysisDimensions.Width, first.AnalysisDimensions.Height)
	f := first.Face
	fmt.Printf("Face:  x=%.0f y=%.0f w=%.0f h=%.0f\n\n", f.X, f.Y, f.Width, f.Height)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PRESET\tX\tY\tWIDTH\tHEIGHT")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\n", r.Preset, r.CropBox.X, r.CropBox.Y, r.CropBox.Width, r.CropBox.Height)
	}
	return w.Flush()
}

func runTestVision(ctx context.Context, input string) error {
	if cfg.Detector.Backend == config.BackendPigo {
		return fmt.Errorf("--test-vision needs a model backend, not %s", config.BackendPigo)
	}
	vc, err := newVisionClient(cfg)
	if err != nil {
		return err
	}
	img, _, err := analyzer.New().LoadImageSmart(ctx, input)
	if err != nil {
		return &types.StageError{Stage: types.StageLoad, Err: err}
	}

	reply, err := detection.NewVisionDetector(vc, cfg.Detector.Model).TestVision(ctx, img)
	if err != nil {
		return err
	}
	fmt.Println(reply)
	return nil
}
