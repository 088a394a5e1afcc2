package cropper

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/headshot/pkg/geometry"
	"github.com/menta2k/headshot/pkg/types"
)

type mockDetector struct {
	mock.Mock
}

func (m *mockDetector) Detect(ctx context.Context, img image.Image) (types.FaceBox, error) {
	args := m.Called(ctx, img)
	return args.Get(0).(types.FaceBox), args.Error(1)
}

type fakeRemover struct {
	out   []byte
	err   error
	calls int
}

func (f *fakeRemover) RemoveBackground(_ context.Context, data []byte, mimeType string) ([]byte, string, error) {
	f.calls++
	if f.err != nil {
		return nil, "", f.err
	}
	return f.out, "image/png", nil
}

// createTestImage creates a simple opaque test image
func createTestImage(width, height int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{uint8(x % 256), uint8(y % 256), 128, 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func decode(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, _, err := image.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

func sized(w, h int) any {
	return mock.MatchedBy(func(img image.Image) bool {
		return img.Bounds().Dx() == w && img.Bounds().Dy() == h
	})
}

func TestCropPortraitExample(t *testing.T) {
	det := new(mockDetector)
	det.On("Detect", mock.Anything, sized(800, 600)).
		Return(types.FaceBox{X: 100, Y: 80, Width: 60, Height: 80}, nil).Once()

	c := New(det, DefaultOptions())
	res, err := c.Crop(context.Background(), encodePNG(t, createTestImage(800, 600)))
	require.NoError(t, err)

	assert.Equal(t, types.Rectangle{X: 0, Y: 58, Width: 300, Height: 450}, res.CropBox)
	assert.Equal(t, "image/jpeg", res.MimeType)
	assert.Equal(t, "portrait", res.Preset)
	assert.Equal(t, types.ImageDimensions{Width: 800, Height: 600}, res.Dimensions)
	assert.Equal(t, res.Dimensions, res.AnalysisDimensions)
	assert.Equal(t, res.AnalysisFace, res.Face)

	out := decode(t, res.Data)
	assert.Equal(t, 300, out.Bounds().Dx())
	assert.Equal(t, 450, out.Bounds().Dy())
	det.AssertExpectations(t)
}

func TestCropRescalesDownscaledDetection(t *testing.T) {
	det := new(mockDetector)
	det.On("Detect", mock.Anything, sized(1024, 512)).
		Return(types.FaceBox{X: 100, Y: 100, Width: 50, Height: 60}, nil)

	opts := DefaultOptions()
	opts.OutputWidth = 200
	c := New(det, opts)

	res, err := c.Crop(context.Background(), encodePNG(t, createTestImage(2048, 1024)))
	require.NoError(t, err)

	assert.Equal(t, types.FaceBox{X: 200, Y: 200, Width: 100, Height: 120}, res.Face)
	assert.Equal(t, types.ImageDimensions{Width: 1024, Height: 512}, res.AnalysisDimensions)
	assert.True(t, res.CropBox.Within(res.Dimensions))
	assert.Equal(t, 200, res.OutputDimensions.Width)
	assert.Equal(t, 300, res.OutputDimensions.Height)
}

func TestCropStageFailures(t *testing.T) {
	valid := encodePNG(t, createTestImage(400, 400))
	boom := errors.New("model offline")

	tests := []struct {
		name      string
		data      []byte
		face      types.FaceBox
		detectErr error
		wantStage string
		wantErr   error
	}{
		{name: "undecodable", data: []byte("not an image"), wantStage: types.StageLoad, wantErr: types.ErrImageLoad},
		{name: "no face", data: valid, detectErr: types.ErrNoFaceFound, wantStage: types.StageDetect, wantErr: types.ErrNoFaceFound},
		{name: "detector error", data: valid, detectErr: boom, wantStage: types.StageDetect, wantErr: boom},
		{name: "degenerate box", data: valid, face: types.FaceBox{X: 10, Y: 10, Width: 0, Height: 20}, wantStage: types.StageDetect, wantErr: types.ErrInvalidDetection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			det := new(mockDetector)
			det.On("Detect", mock.Anything, mock.Anything).Return(tt.face, tt.detectErr)

			_, err := New(det, DefaultOptions()).Crop(context.Background(), tt.data)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.wantStage, types.StageOf(err))
		})
	}
}

func TestCropInvalidComposition(t *testing.T) {
	det := new(mockDetector)
	opts := DefaultOptions()
	opts.Composition.HeadDominanceRatio = 0

	_, err := New(det, opts).Crop(context.Background(), encodePNG(t, createTestImage(50, 50)))
	assert.ErrorIs(t, err, types.ErrInvalidConfiguration)
	assert.Equal(t, types.StageCompose, types.StageOf(err))
	det.AssertNotCalled(t, "Detect", mock.Anything, mock.Anything)
}

func TestCropWithBackgroundRemoval(t *testing.T) {
	transparent := encodePNG(t, image.NewNRGBA(image.Rect(0, 0, 300, 450)))
	face := types.FaceBox{X: 100, Y: 80, Width: 60, Height: 80}

	t.Run("keeps transparency", func(t *testing.T) {
		det := new(mockDetector)
		det.On("Detect", mock.Anything, mock.Anything).Return(face, nil)
		remover := &fakeRemover{out: transparent}

		opts := DefaultOptions()
		opts.Format = "png"
		opts.RemoveBackground = true
		c := New(det, opts)
		c.SetRemover(remover)

		res, err := c.Crop(context.Background(), encodePNG(t, createTestImage(800, 600)))
		require.NoError(t, err)
		assert.Equal(t, 1, remover.calls)
		assert.Equal(t, "image/png", res.MimeType)

		_, _, _, a := decode(t, res.Data).At(150, 200).RGBA()
		assert.Equal(t, uint32(0), a)
	})

	t.Run("flattens onto backfill", func(t *testing.T) {
		det := new(mockDetector)
		det.On("Detect", mock.Anything, mock.Anything).Return(face, nil)

		opts := DefaultOptions()
		opts.Format = "png"
		opts.RemoveBackground = true
		opts.Flatten = true
		opts.Backfill = &color.NRGBA{R: 255, A: 255}
		c := New(det, opts)
		c.SetRemover(&fakeRemover{out: transparent})

		res, err := c.Crop(context.Background(), encodePNG(t, createTestImage(800, 600)))
		require.NoError(t, err)

		r, g, b, a := decode(t, res.Data).At(150, 200).RGBA()
		assert.Equal(t, [4]uint32{0xffff, 0, 0, 0xffff}, [4]uint32{r, g, b, a})
	})

	t.Run("remover failure", func(t *testing.T) {
		det := new(mockDetector)
		det.On("Detect", mock.Anything, mock.Anything).Return(face, nil)

		opts := DefaultOptions()
		opts.RemoveBackground = true
		c := New(det, opts)
		c.SetRemover(&fakeRemover{err: types.ErrBackgroundRemoval})

		_, err := c.Crop(context.Background(), encodePNG(t, createTestImage(800, 600)))
		assert.ErrorIs(t, err, types.ErrBackgroundRemoval)
		assert.Equal(t, types.StageBackground, types.StageOf(err))
	})

	t.Run("empty reply", func(t *testing.T) {
		det := new(mockDetector)
		det.On("Detect", mock.Anything, mock.Anything).Return(face, nil)

		opts := DefaultOptions()
		opts.RemoveBackground = true
		c := New(det, opts)
		c.SetRemover(&fakeRemover{})

		_, err := c.Crop(context.Background(), encodePNG(t, createTestImage(800, 600)))
		assert.ErrorIs(t, err, types.ErrBackgroundRemoval)
	})

	t.Run("no remover", func(t *testing.T) {
		det := new(mockDetector)
		det.On("Detect", mock.Anything, mock.Anything).Return(face, nil)

		opts := DefaultOptions()
		opts.RemoveBackground = true

		_, err := New(det, opts).Crop(context.Background(), encodePNG(t, createTestImage(800, 600)))
		assert.ErrorIs(t, err, types.ErrBackgroundRemoval)
	})
}

func TestCropPresetsDetectsOnce(t *testing.T) {
	det := new(mockDetector)
	det.On("Detect", mock.Anything, mock.Anything).
		Return(types.FaceBox{X: 380, Y: 300, Width: 120, Height: 160}, nil).Once()

	c := New(det, DefaultOptions())
	comps := []types.CompositionConfig{geometry.Portrait, geometry.PortraitFixed, geometry.Square}

	results, err := c.CropPresets(context.Background(), encodePNG(t, createTestImage(1000, 1000)), comps)
	require.NoError(t, err)
	require.Len(t, results, 3)

	for i, res := range results {
		assert.Equal(t, comps[i].Name, res.Preset)
		assert.True(t, res.CropBox.Within(res.Dimensions))
	}
	assert.Equal(t, results[2].CropBox.Width, results[2].CropBox.Height)
	det.AssertExpectations(t)
}

func TestCropPresetsEmpty(t *testing.T) {
	_, err := New(new(mockDetector), DefaultOptions()).CropPresets(context.Background(), nil, nil)
	assert.ErrorIs(t, err, types.ErrInvalidConfiguration)
}

func TestOutputSize(t *testing.T) {
	box := types.Rectangle{Width: 300, Height: 450}

	tests := []struct {
		name       string
		w, h       int
		wantW, wantH int
	}{
		{"crop size", 0, 0, 300, 450},
		{"explicit", 600, 600, 600, 600},
		{"width only", 200, 0, 200, 300},
		{"height only", 0, 900, 600, 900},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := outputSize(box, tt.w, tt.h)
			assert.Equal(t, tt.wantW, w)
			assert.Equal(t, tt.wantH, h)
		})
	}
}

func TestCropRefusesOversizedHeader(t *testing.T) {
	// PNG signature + IHDR claiming 12000x12000 RGBA, no pixel data
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	ihdr := []byte("IHDR\x00\x00\x2e\xe0\x00\x00\x2e\xe0\x08\x06\x00\x00\x00")
	require.NoError(t, binary.Write(&buf, binary.BigEndian, uint32(13)))
	buf.Write(ihdr)
	require.NoError(t, binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(ihdr)))

	det := new(mockDetector)
	_, err := New(det, DefaultOptions()).Crop(context.Background(), buf.Bytes())

	require.ErrorIs(t, err, types.ErrImageLoad)
	assert.Equal(t, types.StageLoad, types.StageOf(err))
	assert.Contains(t, err.Error(), "exceeds")
	det.AssertNotCalled(t, "Detect", mock.Anything, mock.Anything)
}
