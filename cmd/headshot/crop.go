package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/menta2k/headshot/internal/utils"
	"github.com/menta2k/headshot/pkg/analyzer"
	"github.com/menta2k/headshot/pkg/cropper"
	"github.com/menta2k/headshot/pkg/processing"
	"github.com/menta2k/headshot/pkg/types"
)

var (
	cropOutput  string
	cropPresets []string
	cropDebug   bool
	cropJSON    bool
)

var cropCmd = &cobra.Command{
	Use:   "crop <image|URL>",
	Short: "Crop a single photo into a headshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCrop(cmd.Context(), args[0])
	},
}

func init() {
	cropCmd.Flags().StringVar(&cropOutput, "output", "", "output file (default: <out>/<name><suffix>.<format>)")
	cropCmd.Flags().StringSliceVar(&cropPresets, "presets", nil, "render several presets from one detection, e.g. portrait,square")
	cropCmd.Flags().BoolVar(&cropDebug, "debug", false, "also write an overlay of the face and crop boxes")
	cropCmd.Flags().BoolVar(&cropJSON, "json", false, "print the crop metadata as JSON")
	rootCmd.AddCommand(cropCmd)
}

func runCrop(ctx context.Context, input string) error {
	hc, err := newCropper(cfg)
	if err != nil {
		return err
	}

	_, data, err := analyzer.New().LoadImageSmart(ctx, input)
	if err != nil {
		return &types.StageError{Stage: types.StageLoad, Err: err}
	}
	if err := utils.EnsureDir(cfg.Output.OutputDir); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var results []*cropper.Result
	if len(cropPresets) > 0 {
		comps := make([]types.CompositionConfig, 0, len(cropPresets))
		for _, name := range cropPresets {
			comp, err := cfg.CompositionFor(strings.TrimSpace(name))
			if err != nil {
				return err
			}
			comps = append(comps, comp)
		}
		results, err = hc.CropPresets(ctx, data, comps)
	} else {
		var res *cropper.Result
		res, err = hc.Crop(ctx, data)
		results = []*cropper.Result{res}
	}
	if err != nil {
		return err
	}

	format := processing.NormalizeFormat(cfg.Output.Format)
	for _, res := range results {
		outPath := cropOutput
		if outPath == "" || len(results) > 1 {
			suffix := cfg.Output.Suffix
			if len(results) > 1 {
				suffix += "_" + res.Preset
			}
			outPath = utils.GenerateOutputFilename(sourceName(input), cfg.Output.OutputDir, "", suffix, format)
		}
		if err := os.WriteFile(outPath, res.Data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", outPath, err)
		}
		log.Printf("wrote %s (%s, %dx%d)", outPath, res.Preset, res.OutputDimensions.Width, res.OutputDimensions.Height)

		if cropDebug {
			if err := writeDebugOverlay(outPath, res); err != nil {
				log.Printf("debug overlay failed: %v", err)
			}
		}
		if !cropJSON {
			fmt.Println(outPath)
		}
	}

	if cropJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	return nil
}

func writeDebugOverlay(outputPath string, res *cropper.Result) error {
	overlay := processing.NewProcessor().CreateDebugOverlay(res.Original, res.Face, res.CropBox)
	dbgPath := strings.TrimSuffix(outputPath, filepath.Ext(outputPath)) + "_debug.png"
	if err := analyzer.New().SaveImage(overlay, dbgPath); err != nil {
		return err
	}
	log.Printf("wrote %s", dbgPath)
	return nil
}

// sourceName returns a file-like name for a path or URL input.
func sourceName(input string) string {
	name := filepath.Base(input)
	if u, err := url.Parse(input); err == nil && u.Scheme != "" && u.Host != "" {
		name = path.Base(u.Path)
	}
	if name == "" || name == "." || name == "/" {
		return "image"
	}
	return name
}
