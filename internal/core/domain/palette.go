package domain

import "fmt"

// RGB is a color with channels in [0, 1].
type RGB struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
}

// Palette is an ordered list of color stops spread evenly over the
// normalized height range [0, 1].
type Palette []RGB

// ParsePalette decodes a list of #rrggbb hex stops. At least two stops
// are required for interpolation to be meaningful.
func ParsePalette(hexes []string) (Palette, error) {
	if len(hexes) < 2 {
		return nil, fmt.Errorf("palette needs at least 2 stops, got %d", len(hexes))
	}
	p := make(Palette, 0, len(hexes))
	for _, h := range hexes {
		var r, g, b uint8
		if _, err := fmt.Sscanf(h, "#%02x%02x%02x", &r, &g, &b); err != nil {
			return nil, fmt.Errorf("palette stop %q: %w", h, err)
		}
		p = append(p, RGB{R: float64(r) / 255, G: float64(g) / 255, B: float64(b) / 255})
	}
	return p, nil
}

// Sample interpolates the palette at t in [0, 1]. Out-of-range inputs
// clamp to the end stops.
func (p Palette) Sample(t float64) RGB {
	if len(p) == 0 {
		return RGB{}
	}
	if t <= 0 || len(p) == 1 {
		return p[0]
	}
	if t >= 1 {
		return p[len(p)-1]
	}
	pos := t * float64(len(p)-1)
	i := int(pos)
	f := pos - float64(i)
	a, b := p[i], p[i+1]
	return RGB{
		R: a.R + (b.R-a.R)*f,
		G: a.G + (b.G-a.G)*f,
		B: a.B + (b.B-a.B)*f,
	}
}
