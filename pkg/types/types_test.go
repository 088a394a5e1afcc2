package types

import (
	"errors"
	"fmt"
	"math"
	"testing"
)

func TestRectangleWithin(t *testing.T) {
	dims := ImageDimensions{Width: 800, Height: 600}

	tests := []struct {
		name string
		rect Rectangle
		want bool
	}{
		{"inside", Rectangle{X: 0, Y: 58, Width: 300, Height: 450}, true},
		{"full image", Rectangle{Width: 800, Height: 600}, true},
		{"overflows right", Rectangle{X: 501, Width: 300, Height: 10}, false},
		{"negative y", Rectangle{Y: -1, Width: 10, Height: 10}, false},
		{"empty", Rectangle{X: 10, Y: 10}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rect.Within(dims); got != tt.want {
				t.Errorf("Within() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFaceBoxFinite(t *testing.T) {
	if !(FaceBox{X: 1, Y: 2, Width: 3, Height: 4}).Finite() {
		t.Error("expected finite face box")
	}
	if (FaceBox{X: math.NaN(), Width: 3, Height: 4}).Finite() {
		t.Error("NaN must not be finite")
	}
	if (FaceBox{Height: math.Inf(1)}).Finite() {
		t.Error("Inf must not be finite")
	}
}

func TestImageDimensions(t *testing.T) {
	if got := (ImageDimensions{Width: 300, Height: 900}).LongerSide(); got != 900 {
		t.Errorf("LongerSide() = %d, want 900", got)
	}
	if (ImageDimensions{Width: 0, Height: 10}).Valid() {
		t.Error("zero width must be invalid")
	}
}

func TestStageError(t *testing.T) {
	err := fmt.Errorf("crop request: %w", &StageError{Stage: StageDetect, Err: ErrNoFaceFound})

	if !errors.Is(err, ErrNoFaceFound) {
		t.Error("expected errors.Is to find ErrNoFaceFound")
	}
	if got := StageOf(err); got != StageDetect {
		t.Errorf("StageOf() = %q, want %q", got, StageDetect)
	}
	if got := StageOf(errors.New("plain")); got != "" {
		t.Errorf("StageOf(plain) = %q, want empty", got)
	}
}
