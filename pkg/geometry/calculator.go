// Package geometry turns a detected face rectangle into a headshot crop box.
//
// All functions are pure: they hold no state between calls and never fail for
// inputs that satisfy the rectangle invariants.
package geometry

import (
	"math"

	"github.com/menta2k/headshot/pkg/types"
)

// RescaleFaceBox maps a face box measured on the analysis image back to the
// original image. The x axis and y axis are scaled independently and no
// rounding is applied.
func RescaleFaceBox(face types.FaceBox, analysis, original types.ImageDimensions) types.FaceBox {
	if !analysis.Valid() || analysis == original {
		return face
	}

	sx := float64(original.Width) / float64(analysis.Width)
	sy := float64(original.Height) / float64(analysis.Height)

	return types.FaceBox{
		X:      face.X * sx,
		Y:      face.Y * sy,
		Width:  face.Width * sx,
		Height: face.Height * sy,
	}
}

// ComputeHeadshotBox computes the crop rectangle framing face inside an image
// of size img. The result always lies within the image bounds.
func ComputeHeadshotBox(face types.FaceBox, img types.ImageDimensions, cfg types.CompositionConfig) types.Rectangle {
	imgW, imgH := float64(img.Width), float64(img.Height)
	ratio := cfg.TargetAspectRatio
	if ratio <= 0 {
		ratio = 1
	}

	basis := face.Height
	if cfg.FaceBasis() == types.BasisFaceWidth {
		basis = face.Width
	}

	height := 0.0
	if cfg.HeadDominanceRatio > 0 {
		height = basis / cfg.HeadDominanceRatio
	}
	width := height * ratio

	// Quality floor.
	if width < cfg.MinCropWidth {
		width = cfg.MinCropWidth
		height = width / ratio
	}

	// Width bound first, then height.
	if width > imgW {
		width = imgW
		height = width / ratio
	}
	if height > imgH {
		height = imgH
		width = height * ratio
	}

	x := face.X + face.Width/2 - width/2
	y := face.Y - height*cfg.HeadroomRatio

	x = clamp(x, 0, imgW-width)
	y = clamp(y, 0, imgH-height)

	return roundWithin(x, y, width, height, img)
}

// roundWithin rounds the box to integers and restores the containment
// invariant that half-up rounding of both origin and size can break.
func roundWithin(x, y, width, height float64, img types.ImageDimensions) types.Rectangle {
	r := types.Rectangle{
		X:      int(math.Round(x)),
		Y:      int(math.Round(y)),
		Width:  int(math.Round(width)),
		Height: int(math.Round(height)),
	}

	r.Width = clampInt(r.Width, 1, img.Width)
	r.Height = clampInt(r.Height, 1, img.Height)
	r.X = clampInt(r.X, 0, img.Width-r.Width)
	r.Y = clampInt(r.Y, 0, img.Height-r.Height)

	return r
}

func clamp(v, lo, hi float64) float64 {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
