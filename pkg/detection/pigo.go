package detection

import (
	"context"
	"fmt"
	"image"
	"log"
	"os"

	pigo "github.com/esimov/pigo/core"

	"github.com/menta2k/headshot/pkg/types"
)

// Pigo detection parameters
const (
	DefaultMinFaceSize      = 20
	DefaultShiftFactor      = 0.1
	DefaultScaleFactor      = 1.1
	DefaultIoUThreshold     = 0.2
	DefaultQualityThreshold = 5.0
)

// PigoDetector finds faces locally with a pigo cascade.
type PigoDetector struct {
	classifier       *pigo.Pigo
	MinSize          int
	QualityThreshold float32
}

var _ FaceDetector = (*PigoDetector)(nil)

// NewPigoDetectorFromFile reads and unpacks the cascade at cascadePath.
func NewPigoDetectorFromFile(cascadePath string) (*PigoDetector, error) {
	cascade, err := os.ReadFile(cascadePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read cascade file: %w", err)
	}
	return NewPigoDetector(cascade)
}

// NewPigoDetector unpacks a cascade already held in memory.
func NewPigoDetector(cascade []byte) (*PigoDetector, error) {
	classifier, err := pigo.NewPigo().Unpack(cascade)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack cascade: %w", err)
	}
	return &PigoDetector{
		classifier:       classifier,
		MinSize:          DefaultMinFaceSize,
		QualityThreshold: DefaultQualityThreshold,
	}, nil
}

// Detect returns the best scoring face. The context is unused; detection is local.
func (d *PigoDetector) Detect(_ context.Context, img image.Image) (types.FaceBox, error) {
	src := pigo.ImgToNRGBA(img)
	cols, rows := src.Bounds().Dx(), src.Bounds().Dy()

	maxSize := max(cols, rows)
	params := pigo.CascadeParams{
		MinSize:     d.MinSize,
		MaxSize:     maxSize,
		ShiftFactor: DefaultShiftFactor,
		ScaleFactor: DefaultScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: pigo.RgbToGrayscale(src),
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}

	dets := d.classifier.RunCascade(params, 0.0)
	dets = d.classifier.ClusterDetections(dets, DefaultIoUThreshold)

	best, ok := bestDetection(dets, d.QualityThreshold)
	if !ok {
		return types.FaceBox{}, types.ErrNoFaceFound
	}
	log.Printf("Pigo found %d candidate(s), best q=%.1f at (%d,%d) size %d", len(dets), best.Q, best.Col, best.Row, best.Scale)

	return detectionToFaceBox(best, types.ImageDimensions{Width: cols, Height: rows}), nil
}

func bestDetection(dets []pigo.Detection, threshold float32) (pigo.Detection, bool) {
	var best pigo.Detection
	found := false
	for _, det := range dets {
		if det.Q < threshold {
			continue
		}
		if !found || det.Q > best.Q {
			best = det
			found = true
		}
	}
	return best, found
}

// detectionToFaceBox converts the centre/size form of a detection into a box,
// trimmed to the image.
func detectionToFaceBox(det pigo.Detection, dims types.ImageDimensions) types.FaceBox {
	half := float64(det.Scale) / 2
	x0 := max(float64(det.Col)-half, 0)
	y0 := max(float64(det.Row)-half, 0)
	x1 := min(float64(det.Col)+half, float64(dims.Width))
	y1 := min(float64(det.Row)+half, float64(dims.Height))
	return types.FaceBox{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}
