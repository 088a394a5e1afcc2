package processing

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	xdraw "golang.org/x/image/draw"

	"github.com/menta2k/headshot/pkg/types"
)

// MaxCanvasSide is the largest width or height of an output surface.
const MaxCanvasSide = 16384

// Processor handles image transform operations. It keeps no per-image state
// and is safe for concurrent use.
type Processor struct {
	filter imaging.ResampleFilter
}

// NewProcessor creates a new image processor using Lanczos resampling
func NewProcessor() *Processor {
	return &Processor{filter: imaging.Lanczos}
}

// Dimensions returns the pixel size of img.
func Dimensions(img image.Image) types.ImageDimensions {
	b := img.Bounds()
	return types.ImageDimensions{Width: b.Dx(), Height: b.Dy()}
}

// DownscaleForAnalysis shrinks img so its longer side equals maxDim. Images
// that already fit, or a non-positive maxDim, are returned unchanged.
func (p *Processor) DownscaleForAnalysis(img image.Image, maxDim int) (image.Image, types.ImageDimensions, error) {
	if img == nil {
		return nil, types.ImageDimensions{}, fmt.Errorf("%w: nil image", types.ErrImageLoad)
	}
	dims := Dimensions(img)
	if !dims.Valid() {
		return nil, dims, fmt.Errorf("%w: empty image %dx%d", types.ErrImageLoad, dims.Width, dims.Height)
	}
	if maxDim <= 0 || dims.LongerSide() <= maxDim {
		return img, dims, nil
	}

	var scaled *image.NRGBA
	if dims.Width >= dims.Height {
		scaled = imaging.Resize(img, maxDim, 0, p.filter)
	} else {
		scaled = imaging.Resize(img, 0, maxDim, p.filter)
	}
	return scaled, Dimensions(scaled), nil
}

// CropRegion copies the pixels of rect out of img into a new image of exactly
// rect.Width x rect.Height. rect is relative to the image origin.
func (p *Processor) CropRegion(img image.Image, rect types.Rectangle) (image.Image, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", types.ErrImageLoad)
	}
	dims := Dimensions(img)
	if !rect.Within(dims) {
		return nil, fmt.Errorf("%w: region %dx%d@%d,%d outside %dx%d image",
			types.ErrRenderTarget, rect.Width, rect.Height, rect.X, rect.Y, dims.Width, dims.Height)
	}

	origin := img.Bounds().Min
	r := image.Rect(rect.X, rect.Y, rect.X+rect.Width, rect.Y+rect.Height).Add(origin)
	return imaging.Crop(img, r), nil
}

// ResizeAndCompose scales img to width x height. When backfill is set the
// canvas is first filled with it, so transparent source pixels come out as
// the backfill colour and the result is fully opaque.
func (p *Processor) ResizeAndCompose(img image.Image, width, height int, backfill *color.NRGBA) (image.Image, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", types.ErrImageLoad)
	}
	canvas, err := newCanvas(width, height)
	if err != nil {
		return nil, err
	}

	if backfill != nil {
		fill := *backfill
		fill.A = 255
		draw.Draw(canvas, canvas.Bounds(), image.NewUniform(fill), image.Point{}, draw.Src)
	}

	xdraw.CatmullRom.Scale(canvas, canvas.Bounds(), img, img.Bounds(), xdraw.Over, nil)
	return canvas, nil
}

func newCanvas(width, height int) (*image.NRGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: invalid canvas size %dx%d", types.ErrRenderTarget, width, height)
	}
	if width > MaxCanvasSide || height > MaxCanvasSide {
		return nil, fmt.Errorf("%w: canvas %dx%d exceeds %d px per side", types.ErrRenderTarget, width, height, MaxCanvasSide)
	}
	return image.NewNRGBA(image.Rect(0, 0, width, height)), nil
}

// PrepareImageForModel converts an image to base64 for sending to vision models
func (p *Processor) PrepareImageForModel(img image.Image, format string, maxDim int, quality int) (string, error) {
	scaled, _, err := p.DownscaleForAnalysis(img, maxDim)
	if err != nil {
		return "", err
	}

	if NormalizeFormat(format) != "png" {
		format = "jpg"
	}
	data, _, err := Encode(scaled, format, quality, false)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// NormalizeFormat maps file extensions and MIME types onto jpg, png or webp.
// Unknown values come back lowercased and unchanged.
func NormalizeFormat(format string) string {
	f := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(format), "."))
	f = strings.TrimPrefix(f, "image/")
	switch f {
	case "jpg", "jpeg":
		return "jpg"
	case "png":
		return "png"
	case "webp":
		return "webp"
	}
	return f
}

// SupportsAlpha reports whether the output format keeps transparency.
func SupportsAlpha(format string) bool {
	switch NormalizeFormat(format) {
	case "png", "webp":
		return true
	}
	return false
}

// MimeType returns the MIME type of a supported output format.
func MimeType(format string) string {
	switch NormalizeFormat(format) {
	case "png":
		return "image/png"
	case "webp":
		return "image/webp"
	}
	return "image/jpeg"
}

// Encode serializes img in the given format and returns the bytes and MIME type.
func Encode(img image.Image, format string, quality int, lossless bool) ([]byte, string, error) {
	if quality <= 0 || quality > 100 {
		quality = 90
	}

	var buf bytes.Buffer
	var err error
	switch NormalizeFormat(format) {
	case "webp":
		err = webp.Encode(&buf, img, &webp.Options{Lossless: lossless, Quality: float32(quality)})
	case "png":
		err = imaging.Encode(&buf, img, imaging.PNG)
	case "jpg":
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality))
	default:
		return nil, "", fmt.Errorf("unsupported output format: %s", format)
	}
	if err != nil {
		return nil, "", fmt.Errorf("encoding %s: %w", format, err)
	}
	return buf.Bytes(), MimeType(format), nil
}
