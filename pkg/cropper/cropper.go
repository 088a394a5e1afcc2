package cropper

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log"

	"github.com/menta2k/headshot/pkg/analyzer"
	"github.com/menta2k/headshot/pkg/background"
	"github.com/menta2k/headshot/pkg/detection"
	"github.com/menta2k/headshot/pkg/geometry"
	"github.com/menta2k/headshot/pkg/processing"
	"github.com/menta2k/headshot/pkg/types"
)

// White is the default backfill for formats without transparency.
var White = color.NRGBA{R: 255, G: 255, B: 255, A: 255}

// Options controls composition and output encoding of a crop request.
type Options struct {
	Composition types.CompositionConfig

	// OutputWidth and OutputHeight size the final image. Zero keeps the crop
	// box size; when only one is set the other follows the crop aspect ratio.
	OutputWidth  int
	OutputHeight int

	Format   string
	Quality  int
	Lossless bool

	// Backfill is painted under the image when the output is flattened.
	// Nil means white.
	Backfill *color.NRGBA
	// Flatten forces an opaque result. It is implied for formats without alpha.
	Flatten bool

	RemoveBackground bool
}

// DefaultOptions returns a portrait headshot encoded as JPEG.
func DefaultOptions() Options {
	return Options{
		Composition: geometry.Portrait,
		Format:      "jpg",
		Quality:     90,
	}
}

// Result is the outcome of one crop request.
type Result struct {
	Data     []byte `json:"-"`
	MimeType string `json:"mime_type"`
	Preset   string `json:"preset,omitempty"`

	// AnalysisFace is in the coordinate space of the downscaled analysis image,
	// Face in that of the original.
	AnalysisFace       types.FaceBox         `json:"analysis_face"`
	Face               types.FaceBox         `json:"face"`
	CropBox            types.Rectangle       `json:"crop_box"`
	Dimensions         types.ImageDimensions `json:"dimensions"`
	AnalysisDimensions types.ImageDimensions `json:"analysis_dimensions"`
	OutputDimensions   types.ImageDimensions `json:"output_dimensions"`

	// Original is the decoded, upright source image.
	Original image.Image `json:"-"`
}

// HeadshotCropper runs the headshot pipeline: decode, detect, compose, crop,
// optionally remove the background, resize and encode. A cropper holds no
// per-request state and may be shared between goroutines.
type HeadshotCropper struct {
	detector  detection.FaceDetector
	remover   background.Remover
	analyzer  *analyzer.ImageAnalyzer
	processor *processing.Processor
	options   Options
}

// New creates a HeadshotCropper using detector to find faces.
func New(detector detection.FaceDetector, options Options) *HeadshotCropper {
	return &HeadshotCropper{
		detector:  detector,
		analyzer:  analyzer.New(),
		processor: processing.NewProcessor(),
		options:   options,
	}
}

// SetRemover sets the background remover used when Options.RemoveBackground is on.
func (c *HeadshotCropper) SetRemover(remover background.Remover) {
	c.remover = remover
}

// SetAnalyzer replaces the image loader, e.g. to change accepted formats.
func (c *HeadshotCropper) SetAnalyzer(a *analyzer.ImageAnalyzer) {
	c.analyzer = a
}

// Options returns the options the cropper was created with.
func (c *HeadshotCropper) Options() Options {
	return c.options
}

// detected is the shared outcome of the stages that precede composition.
type detected struct {
	original     image.Image
	dims         types.ImageDimensions
	analysisDims types.ImageDimensions
	analysisFace types.FaceBox
}

// Crop turns an encoded photo into an encoded headshot.
func (c *HeadshotCropper) Crop(ctx context.Context, data []byte) (*Result, error) {
	return c.CropWithOptions(ctx, data, c.options)
}

// CropWithOptions is Crop with per-request options.
func (c *HeadshotCropper) CropWithOptions(ctx context.Context, data []byte, opts Options) (*Result, error) {
	if err := opts.Composition.Validate(); err != nil {
		return nil, &types.StageError{Stage: types.StageCompose, Err: err}
	}
	det, err := c.detect(ctx, data, opts.Composition.MaxAnalysisDimension)
	if err != nil {
		return nil, err
	}
	return c.compose(ctx, det, opts)
}

// CropPresets detects the face once and renders one headshot per composition.
// The analysis cap of the first composition is used for detection.
func (c *HeadshotCropper) CropPresets(ctx context.Context, data []byte, compositions []types.CompositionConfig) ([]*Result, error) {
	if len(compositions) == 0 {
		return nil, &types.StageError{Stage: types.StageCompose, Err: fmt.Errorf("%w: no compositions requested", types.ErrInvalidConfiguration)}
	}
	for _, comp := range compositions {
		if err := comp.Validate(); err != nil {
			return nil, &types.StageError{Stage: types.StageCompose, Err: err}
		}
	}

	det, err := c.detect(ctx, data, compositions[0].MaxAnalysisDimension)
	if err != nil {
		return nil, err
	}

	results := make([]*Result, 0, len(compositions))
	for _, comp := range compositions {
		opts := c.options
		opts.Composition = comp
		res, err := c.compose(ctx, det, opts)
		if err != nil {
			return nil, fmt.Errorf("preset %s: %w", comp.Name, err)
		}
		results = append(results, res)
	}
	return results, nil
}

func (c *HeadshotCropper) detect(ctx context.Context, data []byte, maxDim int) (*detected, error) {
	probed, format, err := c.analyzer.Probe(data)
	if err != nil {
		return nil, &types.StageError{Stage: types.StageLoad, Err: err}
	}

	original, _, err := c.analyzer.DecodeBytes(data)
	if err != nil {
		return nil, &types.StageError{Stage: types.StageLoad, Err: err}
	}
	dims := processing.Dimensions(original)
	log.Printf("Loaded %s image %dx%d (upright %dx%d)", format, probed.Width, probed.Height, dims.Width, dims.Height)

	analysisImg, analysisDims, err := c.processor.DownscaleForAnalysis(original, maxDim)
	if err != nil {
		return nil, &types.StageError{Stage: types.StageAnalyze, Err: err}
	}

	if c.detector == nil {
		return nil, &types.StageError{Stage: types.StageDetect, Err: errors.New("no face detector configured")}
	}
	face, err := c.detector.Detect(ctx, analysisImg)
	if err != nil {
		return nil, &types.StageError{Stage: types.StageDetect, Err: err}
	}
	if !face.Finite() || face.Width <= 0 || face.Height <= 0 {
		return nil, &types.StageError{Stage: types.StageDetect, Err: fmt.Errorf("%w: detector returned %+v", types.ErrInvalidDetection, face)}
	}
	log.Printf("Face at (%.1f, %.1f) %.1fx%.1f in %dx%d analysis image", face.X, face.Y, face.Width, face.Height, analysisDims.Width, analysisDims.Height)

	return &detected{
		original:     original,
		dims:         dims,
		analysisDims: analysisDims,
		analysisFace: face,
	}, nil
}

func (c *HeadshotCropper) compose(ctx context.Context, det *detected, opts Options) (*Result, error) {
	face := geometry.RescaleFaceBox(det.analysisFace, det.analysisDims, det.dims)
	box := geometry.ComputeHeadshotBox(face, det.dims, opts.Composition)
	log.Printf("Headshot box %s: %+v", opts.Composition.Name, box)

	cropped, err := c.processor.CropRegion(det.original, box)
	if err != nil {
		return nil, &types.StageError{Stage: types.StageCrop, Err: err}
	}

	if opts.RemoveBackground {
		cropped, err = c.removeBackground(ctx, cropped)
		if err != nil {
			return nil, &types.StageError{Stage: types.StageBackground, Err: err}
		}
	}

	outW, outH := outputSize(box, opts.OutputWidth, opts.OutputHeight)
	var backfill *color.NRGBA
	if opts.Flatten || !processing.SupportsAlpha(opts.Format) {
		backfill = opts.Backfill
		if backfill == nil {
			backfill = &White
		}
	}
	final, err := c.processor.ResizeAndCompose(cropped, outW, outH, backfill)
	if err != nil {
		return nil, &types.StageError{Stage: types.StageResize, Err: err}
	}

	encoded, mimeType, err := processing.Encode(final, opts.Format, opts.Quality, opts.Lossless)
	if err != nil {
		return nil, &types.StageError{Stage: types.StageEncode, Err: err}
	}

	return &Result{
		Data:               encoded,
		MimeType:           mimeType,
		Preset:             opts.Composition.Name,
		AnalysisFace:       det.analysisFace,
		Face:               face,
		CropBox:            box,
		Dimensions:         det.dims,
		AnalysisDimensions: det.analysisDims,
		OutputDimensions:   types.ImageDimensions{Width: outW, Height: outH},
		Original:           det.original,
	}, nil
}

func (c *HeadshotCropper) removeBackground(ctx context.Context, img image.Image) (image.Image, error) {
	if c.remover == nil {
		return nil, fmt.Errorf("%w: no background remover configured", types.ErrBackgroundRemoval)
	}

	payload, mimeType, err := processing.Encode(img, "png", 0, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrBackgroundRemoval, err)
	}
	out, outType, err := c.remover.RemoveBackground(ctx, payload, mimeType)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: remover returned no image", types.ErrBackgroundRemoval)
	}

	cutout, _, err := c.analyzer.DecodeBytes(out)
	if err != nil {
		return nil, fmt.Errorf("%w: undecodable %s reply: %v", types.ErrBackgroundRemoval, outType, err)
	}
	log.Printf("Background removed (%s, %d bytes)", outType, len(out))
	return cutout, nil
}

// outputSize resolves the final canvas size for a crop box.
func outputSize(box types.Rectangle, width, height int) (int, int) {
	switch {
	case width > 0 && height > 0:
		return width, height
	case width > 0:
		return width, max(1, int(float64(width)*float64(box.Height)/float64(box.Width)+0.5))
	case height > 0:
		return max(1, int(float64(height)*float64(box.Width)/float64(box.Height)+0.5)), height
	}
	return box.Width, box.Height
}
