package analyzer

import (
	"bytes"
	"image"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
)

// Orientation is the EXIF orientation tag value (1-8).
type Orientation int

const OrientationNormal Orientation = 1

// ReadOrientation returns the EXIF orientation of an encoded image, or
// OrientationNormal when the data carries no usable tag.
func ReadOrientation(data []byte) Orientation {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return OrientationNormal
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return OrientationNormal
	}
	v, err := tag.Int(0)
	if err != nil || v < 1 || v > 8 {
		return OrientationNormal
	}
	return Orientation(v)
}

// ApplyOrientation rotates and flips img so it displays upright.
func ApplyOrientation(img image.Image, o Orientation) image.Image {
	switch o {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	}
	return img
}
