package processing

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"

	"github.com/menta2k/headshot/pkg/types"
)

// CreateDebugOverlay draws the detected face box, the headshot crop box and the
// crop centre onto a copy of img. Both boxes are in img pixel coordinates.
func (p *Processor) CreateDebugOverlay(img image.Image, face types.FaceBox, crop types.Rectangle) image.Image {
	nrgba := imaging.Clone(img)
	w := nrgba.Bounds().Dx()
	h := nrgba.Bounds().Dy()

	green := color.NRGBA{0, 255, 0, 255}   // face box
	gold := color.NRGBA{255, 204, 0, 255}  // crop box
	red := color.NRGBA{255, 0, 0, 255}     // crop center
	blue := color.NRGBA{0, 170, 255, 255}  // face center
	stroke := int(math.Max(2, 0.004*float64(min(w, h))))
	cross := int(math.Max(4, 0.01*float64(min(w, h))))

	fx0 := int(math.Round(face.X))
	fy0 := int(math.Round(face.Y))
	fx1 := int(math.Round(face.X + face.Width))
	fy1 := int(math.Round(face.Y + face.Height))
	drawRect(nrgba, fx0, fy0, fx1, fy1, green, stroke)

	if crop.Width > 0 && crop.Height > 0 {
		drawRect(nrgba, crop.X, crop.Y, crop.X+crop.Width, crop.Y+crop.Height, gold, stroke)

		px, py := crop.X+crop.Width/2, crop.Y+crop.Height/2
		drawHLine(nrgba, py, px-cross, px+cross, red)
		drawVLine(nrgba, px, py-cross, py+cross, red)
	}

	ix, iy := (fx0+fx1)/2, (fy0+fy1)/2
	drawHLine(nrgba, iy, ix-6, ix+6, blue)
	drawVLine(nrgba, ix, iy-6, iy+6, blue)

	return nrgba
}

func drawRect(img *image.NRGBA, x0, y0, x1, y1 int, c color.NRGBA, stroke int) {
	if x1 <= x0 {
		x1 = x0 + 1
	}
	if y1 <= y0 {
		y1 = y0 + 1
	}
	for s := 0; s < stroke; s++ {
		drawHLine(img, y0+s, x0, x1, c)
		drawHLine(img, y1-1-s, x0, x1, c)
		drawVLine(img, x0+s, y0, y1, c)
		drawVLine(img, x1-1-s, y0, y1, c)
	}
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if y < 0 || y >= img.Bounds().Dy() {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if x1 <= 0 || x0 >= img.Bounds().Dx() {
		return
	}
	x0 = max(x0, 0)
	x1 = min(x1, img.Bounds().Dx())
	i := y*img.Stride + x0*4
	for x := x0; x < x1; x++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += 4
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	if x < 0 || x >= img.Bounds().Dx() {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	if y1 <= 0 || y0 >= img.Bounds().Dy() {
		return
	}
	y0 = max(y0, 0)
	y1 = min(y1, img.Bounds().Dy())
	i := y0*img.Stride + x*4
	for y := y0; y < y1; y++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += img.Stride
	}
}
