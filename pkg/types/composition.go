package types

import "fmt"

// WithFaceMultiplier expresses "crop height is m times the face dimension" as a dominance ratio.
func (c CompositionConfig) WithFaceMultiplier(m float64) CompositionConfig {
	if m > 0 {
		c.HeadDominanceRatio = 1 / m
	}
	return c
}

// FaceBasis returns the configured size basis, defaulting to face height.
func (c CompositionConfig) FaceBasis() SizeBasis {
	if c.Basis == "" {
		return BasisFaceHeight
	}
	return c.Basis
}

// Validate checks that the ratios describe a computable composition.
func (c CompositionConfig) Validate() error {
	if c.HeadDominanceRatio <= 0 || c.HeadDominanceRatio > 1 {
		return fmt.Errorf("%w: head_dominance_ratio must be in (0, 1], got %g", ErrInvalidConfiguration, c.HeadDominanceRatio)
	}
	if c.HeadroomRatio < 0 || c.HeadroomRatio >= 1 {
		return fmt.Errorf("%w: headroom_ratio must be in [0, 1), got %g", ErrInvalidConfiguration, c.HeadroomRatio)
	}
	if c.TargetAspectRatio <= 0 {
		return fmt.Errorf("%w: target_aspect_ratio must be positive, got %g", ErrInvalidConfiguration, c.TargetAspectRatio)
	}
	if c.MinCropWidth < 0 {
		return fmt.Errorf("%w: min_crop_width must not be negative", ErrInvalidConfiguration)
	}
	if c.MaxAnalysisDimension < 0 {
		return fmt.Errorf("%w: max_analysis_dimension must not be negative", ErrInvalidConfiguration)
	}
	switch c.FaceBasis() {
	case BasisFaceHeight, BasisFaceWidth:
	default:
		return fmt.Errorf("%w: unknown basis %q", ErrInvalidConfiguration, c.Basis)
	}
	return nil
}
