// Package headshot turns photos into framed headshots.
//
// A face detector locates the face in a downscaled copy of the photo, the
// geometry calculator derives a crop box from the face under a composition
// preset, and the crop is cut from the full-resolution original, optionally
// stripped of its background, resized, and encoded.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"log"
//		"os"
//
//		"github.com/menta2k/headshot"
//		"github.com/menta2k/headshot/pkg/detection"
//		"github.com/menta2k/headshot/pkg/geometry"
//		"github.com/menta2k/headshot/pkg/ollama"
//	)
//
//	func main() {
//		client, err := ollama.NewClient("http://localhost:11434")
//		if err != nil {
//			log.Fatal(err)
//		}
//		detector := detection.NewVisionDetector(client, "qwen2.5vl:7b")
//
//		data, err := os.ReadFile("photo.jpg")
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		out, err := headshot.ComputeHeadshotCrop(context.Background(), data, detector, geometry.Portrait)
//		if err != nil {
//			log.Fatal(err)
//		}
//		if err := os.WriteFile("photo_headshot.jpg", out, 0o644); err != nil {
//			log.Fatal(err)
//		}
//	}
//
// The package consists of these main components:
//
//  1. Geometry (pkg/geometry): face box rescaling, headshot box computation, presets
//  2. Processing (pkg/processing): downscale, region crop, resize and compose, encoding
//  3. Detection (pkg/detection): vision model and pigo cascade face detectors
//  4. Background (pkg/background): rembg background removal
//  5. Cropper (pkg/cropper): the sequential pipeline tying them together
package headshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/menta2k/headshot/pkg/cropper"
	"github.com/menta2k/headshot/pkg/detection"
	"github.com/menta2k/headshot/pkg/geometry"
	"github.com/menta2k/headshot/pkg/processing"
	"github.com/menta2k/headshot/pkg/types"
)

// Version of the headshot library
const Version = "1.0.0"

// ComputeHeadshotCrop runs the full pipeline on an encoded photo and returns
// the encoded headshot as an opaque JPEG sized to the crop box.
func ComputeHeadshotCrop(ctx context.Context, data []byte, detector detection.FaceDetector, cfg types.CompositionConfig) ([]byte, error) {
	opts := cropper.DefaultOptions()
	opts.Composition = cfg
	res, err := cropper.New(detector, opts).Crop(ctx, data)
	if err != nil {
		return nil, err
	}
	return res.Data, nil
}

// Headshot provides a high-level interface over the cropper for file based work
type Headshot struct {
	cropper *cropper.HeadshotCropper
}

// New creates a Headshot that finds faces with detector
func New(detector detection.FaceDetector, opts cropper.Options) *Headshot {
	return &Headshot{cropper: cropper.New(detector, opts)}
}

// Cropper exposes the underlying pipeline, e.g. to attach a background remover.
func (h *Headshot) Cropper() *cropper.HeadshotCropper {
	return h.cropper
}

// Crop runs the pipeline on an encoded photo
func (h *Headshot) Crop(ctx context.Context, data []byte) (*cropper.Result, error) {
	return h.cropper.Crop(ctx, data)
}

// ProcessImageFile crops inputPath once per preset and writes the results to
// outputDir as <name>_<preset>.<format>. It returns the written paths.
func (h *Headshot) ProcessImageFile(ctx context.Context, inputPath, outputDir string, presets []string) ([]string, error) {
	data, err := os.ReadFile(inputPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %s: %v", types.ErrImageLoad, inputPath, err)
	}

	comps := make([]types.CompositionConfig, 0, len(presets))
	for _, name := range presets {
		cfg, err := geometry.Preset(name)
		if err != nil {
			return nil, err
		}
		comps = append(comps, cfg)
	}

	results, err := h.cropper.CropPresets(ctx, data, comps)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", inputPath, err)
	}

	format := processing.NormalizeFormat(h.cropper.Options().Format)
	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))

	paths := make([]string, 0, len(results))
	for _, res := range results {
		outputPath := filepath.Join(outputDir, fmt.Sprintf("%s_%s.%s", base, res.Preset, format))
		if err := os.WriteFile(outputPath, res.Data, 0o644); err != nil {
			return paths, fmt.Errorf("failed to save crop %s: %w", res.Preset, err)
		}
		paths = append(paths, outputPath)
	}
	return paths, nil
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
