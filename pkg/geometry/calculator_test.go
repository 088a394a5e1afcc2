package geometry

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/headshot/pkg/types"
)

func TestComputeHeadshotBoxExample(t *testing.T) {
	face := types.FaceBox{X: 100, Y: 80, Width: 60, Height: 80}
	img := types.ImageDimensions{Width: 800, Height: 600}
	cfg := types.CompositionConfig{
		HeadDominanceRatio: 0.7,
		HeadroomRatio:      0.05,
		TargetAspectRatio:  200.0 / 300.0,
		MinCropWidth:       300,
	}

	got := ComputeHeadshotBox(face, img, cfg)

	assert.Equal(t, types.Rectangle{X: 0, Y: 58, Width: 300, Height: 450}, got)
}

func TestComputeHeadshotBoxCases(t *testing.T) {
	tests := []struct {
		name string
		face types.FaceBox
		img  types.ImageDimensions
		cfg  types.CompositionConfig
		want types.Rectangle
	}{
		{
			name: "no clamp triggers",
			face: types.FaceBox{X: 900, Y: 400, Width: 200, Height: 280},
			img:  types.ImageDimensions{Width: 2000, Height: 2000},
			cfg:  types.CompositionConfig{HeadDominanceRatio: 0.7, HeadroomRatio: 0.05, TargetAspectRatio: 2.0 / 3.0, MinCropWidth: 100},
			// height 400, width 266.67, x = 1000-133.33, y = 400-20
			want: types.Rectangle{X: 867, Y: 380, Width: 267, Height: 400},
		},
		{
			name: "width bound then height bound",
			face: types.FaceBox{X: 150, Y: 100, Width: 100, Height: 200},
			img:  types.ImageDimensions{Width: 400, Height: 300},
			cfg:  types.CompositionConfig{HeadDominanceRatio: 0.5, TargetAspectRatio: 2.0 / 3.0},
			// height 400 -> width 266.67 fits, height 400 > 300 -> height 300, width 200
			want: types.Rectangle{X: 100, Y: 0, Width: 200, Height: 300},
		},
		{
			name: "box pushed past bottom right is clamped",
			face: types.FaceBox{X: 740, Y: 550, Width: 60, Height: 45},
			img:  types.ImageDimensions{Width: 800, Height: 600},
			cfg:  types.CompositionConfig{HeadDominanceRatio: 0.5, TargetAspectRatio: 1},
			want: types.Rectangle{X: 710, Y: 510, Width: 90, Height: 90},
		},
		{
			name: "degenerate zero-width face still centred and clamped",
			face: types.FaceBox{X: 10, Y: 10, Width: 0, Height: 50},
			img:  types.ImageDimensions{Width: 500, Height: 500},
			cfg:  types.CompositionConfig{HeadDominanceRatio: 0.5, TargetAspectRatio: 1},
			want: types.Rectangle{X: 0, Y: 10, Width: 100, Height: 100},
		},
		{
			name: "square width basis",
			face: types.FaceBox{X: 400, Y: 300, Width: 100, Height: 300},
			img:  types.ImageDimensions{Width: 1000, Height: 1000},
			cfg:  types.CompositionConfig{HeadDominanceRatio: 0.5, HeadroomRatio: 0.25, TargetAspectRatio: 1, Basis: types.BasisFaceWidth},
			want: types.Rectangle{X: 350, Y: 250, Width: 200, Height: 200},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeHeadshotBox(tt.face, tt.img, tt.cfg)
			assert.Equal(t, tt.want, got)
			assert.True(t, got.Within(tt.img), "box %+v must lie within %+v", got, tt.img)
		})
	}
}

func TestComputeHeadshotBoxContainmentProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	configs := []types.CompositionConfig{Portrait, PortraitFixed, Square}

	for i := 0; i < 5000; i++ {
		img := types.ImageDimensions{Width: 1 + rng.Intn(4000), Height: 1 + rng.Intn(4000)}
		w := 1 + rng.Float64()*float64(img.Width)
		h := 1 + rng.Float64()*float64(img.Height)
		if w > float64(img.Width) {
			w = float64(img.Width)
		}
		if h > float64(img.Height) {
			h = float64(img.Height)
		}
		face := types.FaceBox{
			X:      rng.Float64() * (float64(img.Width) - w),
			Y:      rng.Float64() * (float64(img.Height) - h),
			Width:  w,
			Height: h,
		}
		cfg := configs[i%len(configs)]

		got := ComputeHeadshotBox(face, img, cfg)
		require.Truef(t, got.Within(img), "iteration %d: box %+v outside %+v (face %+v, preset %s)", i, got, img, face, cfg.Name)
	}
}

func TestComputeHeadshotBoxAspectRatioProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	img := types.ImageDimensions{Width: 10000, Height: 10000}

	for _, ratio := range []float64{2.0 / 3.0, 1, 4.0 / 5.0, 16.0 / 9.0} {
		cfg := types.CompositionConfig{HeadDominanceRatio: 0.6, HeadroomRatio: 0.1, TargetAspectRatio: ratio}
		for i := 0; i < 200; i++ {
			h := 100 + rng.Float64()*1000
			face := types.FaceBox{X: 4000, Y: 4000, Width: h * 0.75, Height: h}

			got := ComputeHeadshotBox(face, img, cfg)
			actual := float64(got.Width) / float64(got.Height)
			assert.Equal(t, math.Round(ratio), math.Round(actual))
			assert.InDelta(t, ratio, actual, 0.02)
		}
	}
}

func TestComputeHeadshotBoxMinWidthBeyondImage(t *testing.T) {
	img := types.ImageDimensions{Width: 800, Height: 1600}
	face := types.FaceBox{X: 300, Y: 200, Width: 60, Height: 80}

	for _, minWidth := range []float64{801, 1000, 5000} {
		cfg := Portrait
		cfg.MinCropWidth = minWidth

		got := ComputeHeadshotBox(face, img, cfg)
		assert.Equal(t, img.Width, got.Width, "min width %g", minWidth)
		assert.Equal(t, 1200, got.Height)
	}
}

func TestRescaleFaceBox(t *testing.T) {
	face := types.FaceBox{X: 10.5, Y: 20, Width: 30, Height: 40}

	t.Run("identity", func(t *testing.T) {
		dims := types.ImageDimensions{Width: 640, Height: 480}
		assert.Equal(t, face, RescaleFaceBox(face, dims, dims))
	})

	t.Run("independent axes without rounding", func(t *testing.T) {
		got := RescaleFaceBox(face,
			types.ImageDimensions{Width: 1024, Height: 768},
			types.ImageDimensions{Width: 4000, Height: 3000})

		sx, sy := 4000.0/1024.0, 3000.0/768.0
		assert.InDelta(t, 10.5*sx, got.X, 1e-9)
		assert.InDelta(t, 20*sy, got.Y, 1e-9)
		assert.InDelta(t, 30*sx, got.Width, 1e-9)
		assert.InDelta(t, 40*sy, got.Height, 1e-9)
	})

	t.Run("invalid analysis dimensions pass through", func(t *testing.T) {
		got := RescaleFaceBox(face, types.ImageDimensions{}, types.ImageDimensions{Width: 10, Height: 10})
		assert.Equal(t, face, got)
	})
}

func TestPresets(t *testing.T) {
	names := PresetNames()
	require.Equal(t, []string{"portrait", "portrait-fixed", "square"}, names)

	for _, name := range names {
		cfg, err := Preset(name)
		require.NoError(t, err)
		assert.Equal(t, name, cfg.Name)
		assert.NoError(t, cfg.Validate())
	}

	assert.InDelta(t, 0.4, PortraitFixed.HeadDominanceRatio, 1e-9)
	assert.Equal(t, types.BasisFaceWidth, Square.Basis)

	_, err := Preset("landscape")
	assert.ErrorIs(t, err, types.ErrInvalidConfiguration)
}

func TestCompositionConfigValidate(t *testing.T) {
	bad := []types.CompositionConfig{
		{HeadDominanceRatio: 0, TargetAspectRatio: 1},
		{HeadDominanceRatio: 1.5, TargetAspectRatio: 1},
		{HeadDominanceRatio: 0.5, HeadroomRatio: 1, TargetAspectRatio: 1},
		{HeadDominanceRatio: 0.5, TargetAspectRatio: 0},
		{HeadDominanceRatio: 0.5, TargetAspectRatio: 1, MinCropWidth: -1},
		{HeadDominanceRatio: 0.5, TargetAspectRatio: 1, Basis: "diagonal"},
	}
	for i, cfg := range bad {
		assert.ErrorIs(t, cfg.Validate(), types.ErrInvalidConfiguration, "config %d", i)
	}
}

func BenchmarkComputeHeadshotBox(b *testing.B) {
	face := types.FaceBox{X: 100, Y: 80, Width: 60, Height: 80}
	img := types.ImageDimensions{Width: 800, Height: 600}

	for i := 0; i < b.N; i++ {
		ComputeHeadshotBox(face, img, Portrait)
	}
}
