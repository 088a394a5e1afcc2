package config

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

// ParseColor parses #rgb, #rrggbb or #rrggbbaa into an NRGBA colour.
// An empty string yields white.
func ParseColor(s string) (color.NRGBA, error) {
	hex := splitHex(s)
	if hex == "" {
		return color.NRGBA{R: 255, G: 255, B: 255, A: 255}, nil
	}
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	if len(hex) != 8 {
		return color.NRGBA{}, fmt.Errorf("invalid colour %q", s)
	}

	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid colour %q: %w", s, err)
	}
	return color.NRGBA{
		R: uint8(v >> 24),
		G: uint8(v >> 16),
		B: uint8(v >> 8),
		A: uint8(v),
	}, nil
}

// splitHex trims a leading # and lowercases s.
func splitHex(s string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "#"))
}
