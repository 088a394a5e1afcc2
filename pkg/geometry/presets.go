package geometry

import (
	"fmt"
	"sort"

	"github.com/menta2k/headshot/pkg/types"
)

// DefaultMaxAnalysisDimension caps the longer side of the image sent to face detection.
const DefaultMaxAnalysisDimension = 1024

// Portrait is a 2:3 headshot where the face fills 70% of the crop height.
var Portrait = types.CompositionConfig{
	Name:                 "portrait",
	HeadDominanceRatio:   0.7,
	HeadroomRatio:        0.05,
	TargetAspectRatio:    2.0 / 3.0,
	MinCropWidth:         300,
	MaxAnalysisDimension: DefaultMaxAnalysisDimension,
	Basis:                types.BasisFaceHeight,
}

// PortraitFixed is a 2:3 headshot whose height is a fixed multiple of the face height.
var PortraitFixed = types.CompositionConfig{
	Name:                 "portrait-fixed",
	HeadroomRatio:        0.05,
	TargetAspectRatio:    2.0 / 3.0,
	MinCropWidth:         300,
	MaxAnalysisDimension: DefaultMaxAnalysisDimension,
	Basis:                types.BasisFaceHeight,
}.WithFaceMultiplier(2.5)

// Square is a 1:1 avatar sized from the face width with generous headroom.
var Square = types.CompositionConfig{
	Name:                 "square",
	HeadroomRatio:        0.3,
	TargetAspectRatio:    1,
	MinCropWidth:         256,
	MaxAnalysisDimension: DefaultMaxAnalysisDimension,
	Basis:                types.BasisFaceWidth,
}.WithFaceMultiplier(2.2)

var presets = map[string]types.CompositionConfig{
	Portrait.Name:      Portrait,
	PortraitFixed.Name: PortraitFixed,
	Square.Name:        Square,
}

// Preset returns the named composition preset.
func Preset(name string) (types.CompositionConfig, error) {
	cfg, ok := presets[name]
	if !ok {
		return types.CompositionConfig{}, fmt.Errorf("%w: unknown preset %q", types.ErrInvalidConfiguration, name)
	}
	return cfg, nil
}

// PresetNames lists the available presets in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
