package types

import "math"

// Box represents a normalized bounding box with coordinates in [0,1] range
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Primary represents the primary face detected in an image
type Primary struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        *Box    `json:"box"`
}

// AnalysisResult contains the complete analysis result from the vision model
type AnalysisResult struct {
	Primary     Primary  `json:"primary"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// ImageDimensions is the pixel size of a raster image.
type ImageDimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// LongerSide returns the larger of width and height.
func (d ImageDimensions) LongerSide() int {
	if d.Width >= d.Height {
		return d.Width
	}
	return d.Height
}

// Valid reports whether both sides are strictly positive.
func (d ImageDimensions) Valid() bool {
	return d.Width > 0 && d.Height > 0
}

// Rectangle is an integer pixel region of a specific reference image.
type Rectangle struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Within reports whether the rectangle is non-empty and fully contained in an image of the given size.
func (r Rectangle) Within(d ImageDimensions) bool {
	return r.Width > 0 && r.Height > 0 &&
		r.X >= 0 && r.Y >= 0 &&
		r.X+r.Width <= d.Width && r.Y+r.Height <= d.Height
}

// FaceBox is a face rectangle in the coordinate space of whichever image was analyzed.
// Fractional precision is kept until the headshot box is rounded.
type FaceBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Finite reports whether every field is a real number.
func (f FaceBox) Finite() bool {
	for _, v := range []float64{f.X, f.Y, f.Width, f.Height} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// SizeBasis selects which face dimension drives the crop size.
type SizeBasis string

const (
	BasisFaceHeight SizeBasis = "height"
	BasisFaceWidth  SizeBasis = "width"
)

// CompositionConfig holds the tunable ratios of the headshot box calculation.
type CompositionConfig struct {
	Name                 string    `json:"name"`
	HeadDominanceRatio   float64   `json:"head_dominance_ratio"`
	HeadroomRatio        float64   `json:"headroom_ratio"`
	TargetAspectRatio    float64   `json:"target_aspect_ratio"`
	MinCropWidth         float64   `json:"min_crop_width"`
	MaxAnalysisDimension int       `json:"max_analysis_dimension"`
	Basis                SizeBasis `json:"basis,omitempty"`
}
