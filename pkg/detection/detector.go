package detection

import (
	"context"
	"fmt"
	"image"
	"log"
	"strings"

	"github.com/menta2k/headshot/pkg/client"
	"github.com/menta2k/headshot/pkg/processing"
	"github.com/menta2k/headshot/pkg/types"
)

// FaceDetector locates the single dominant face of an image. The returned
// box is in pixel coordinates of img.
type FaceDetector interface {
	Detect(ctx context.Context, img image.Image) (types.FaceBox, error)
}

// SimpleTestPrompt for testing if the model can see images
const SimpleTestPrompt = `What do you see in this image? Describe it briefly.`

// DefaultPrompt asks the model for the face box of the main person.
const DefaultPrompt = `You are a face locator for headshot cropping.

Return JSON only:
{
  "primary": {
    "label": "face",
    "confidence": 0.0,
    "box": {"x": 0.0, "y": 0.0, "w": 0.0, "h": 0.0}
  },
  "description": "short neutral sentence (<= 20 words)",
  "tags": ["tag1", "tag2", "tag3"]
}

HARD RULES
- All coordinates are normalized to [0,1] (NOT pixels); x,y is the top-left corner.
- The box must tightly enclose the face of the most prominent person: forehead to chin, ear to ear. Exclude hair, neck and shoulders.
- If several people are visible, pick the largest face.
- Do not guess real identities.
- If no human face is visible, return:
  {"primary":{"label":"none","confidence":0.0,"box":null},"description":"no face","tags":[]}
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// DefaultJPEGQuality is used for the payload sent to the model.
const DefaultJPEGQuality = 90

// VisionDetector finds faces by asking a multimodal model
type VisionDetector struct {
	client    client.VisionClient
	model     string
	prompt    string
	processor *processing.Processor
}

var _ FaceDetector = (*VisionDetector)(nil)

// NewVisionDetector creates a new detector with a vision client
func NewVisionDetector(c client.VisionClient, model string) *VisionDetector {
	return &VisionDetector{
		client:    c,
		model:     model,
		prompt:    DefaultPrompt,
		processor: processing.NewProcessor(),
	}
}

// WithPrompt replaces the face-locating prompt.
func (d *VisionDetector) WithPrompt(prompt string) *VisionDetector {
	d.prompt = prompt
	return d
}

// Detect sends img as-is to the model and converts the answer into pixels of img.
func (d *VisionDetector) Detect(ctx context.Context, img image.Image) (types.FaceBox, error) {
	imgB64, err := d.processor.PrepareImageForModel(img, "jpg", 0, DefaultJPEGQuality)
	if err != nil {
		return types.FaceBox{}, fmt.Errorf("failed to prepare image for model: %w", err)
	}

	result, err := d.client.AnalyzeImage(ctx, d.model, d.prompt, imgB64)
	if err != nil {
		return types.FaceBox{}, err
	}
	log.Printf("Model %s answered label=%q confidence=%.2f", d.model, result.Primary.Label, result.Primary.Confidence)

	return FaceBoxFromResult(result, processing.Dimensions(img))
}

// TestVision tests if the model can actually see the image with a simple prompt
func (d *VisionDetector) TestVision(ctx context.Context, img image.Image) (string, error) {
	imgB64, err := d.processor.PrepareImageForModel(img, "jpg", 0, DefaultJPEGQuality)
	if err != nil {
		return "", err
	}
	return d.client.SimpleQuery(ctx, d.model, SimpleTestPrompt, imgB64)
}

// FaceBoxFromResult validates a model answer and maps its normalized box onto
// an image of the given dimensions. Boxes whose values exceed 1 are taken as
// pixel coordinates already.
func FaceBoxFromResult(result *types.AnalysisResult, dims types.ImageDimensions) (types.FaceBox, error) {
	if result == nil {
		return types.FaceBox{}, fmt.Errorf("%w: empty analysis result", types.ErrInvalidDetection)
	}
	label := strings.ToLower(strings.TrimSpace(result.Primary.Label))
	if label == "none" || result.Primary.Confidence <= 0 {
		return types.FaceBox{}, types.ErrNoFaceFound
	}

	b := result.Primary.Box
	if b == nil {
		return types.FaceBox{}, fmt.Errorf("%w: answer has no box", types.ErrInvalidDetection)
	}

	face := types.FaceBox{X: b.X, Y: b.Y, Width: b.W, Height: b.H}
	if !face.Finite() {
		return types.FaceBox{}, fmt.Errorf("%w: non-finite box %+v", types.ErrInvalidDetection, *b)
	}
	if face.Width <= 0 || face.Height <= 0 {
		return types.FaceBox{}, fmt.Errorf("%w: empty box %+v", types.ErrInvalidDetection, *b)
	}
	if face.X < 0 || face.Y < 0 {
		return types.FaceBox{}, fmt.Errorf("%w: negative box origin %+v", types.ErrInvalidDetection, *b)
	}

	if b.X > 1 || b.Y > 1 || b.W > 1 || b.H > 1 {
		return face, nil
	}

	w, h := float64(dims.Width), float64(dims.Height)
	return types.FaceBox{
		X:      face.X * w,
		Y:      face.Y * h,
		Width:  face.Width * w,
		Height: face.Height * h,
	}, nil
}
