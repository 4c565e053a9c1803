package domain

import "math"

// NoDataElevation is the sentinel written into grid cells whose source
// tile could not be fetched. It equals the Terrarium encoding of a zero
// RGB pixel, so blank slots in a mosaic and missing tiles decode alike.
const NoDataElevation = -32768.0

// ElevationGrid is a row-major raster of elevation samples in meters.
// Row 0 is the northern edge. Immutable once built: rebuilds swap in a
// whole new grid rather than mutating cells in place.
type ElevationGrid struct {
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Values    []float64 `json:"values"`
	MinHeight float64   `json:"min_height"`
	MaxHeight float64   `json:"max_height"`
}

// NewElevationGrid wraps values (len must be width*height) and scans the
// min/max once so consumers never rescan. No-data cells are excluded from
// the range; an all-no-data grid reports a zero range.
func NewElevationGrid(width, height int, values []float64) *ElevationGrid {
	g := &ElevationGrid{Width: width, Height: height, Values: values}
	minH, maxH := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if v == NoDataElevation {
			continue
		}
		if v < minH {
			minH = v
		}
		if v > maxH {
			maxH = v
		}
	}
	if math.IsInf(minH, 1) {
		minH, maxH = 0, 0
	}
	g.MinHeight, g.MaxHeight = minH, maxH
	return g
}

// At returns the sample at (row, col). Callers are responsible for bounds.
func (g *ElevationGrid) At(row, col int) float64 {
	return g.Values[row*g.Width+col]
}

// Downsample returns a grid whose axes are capped at cap samples, each
// axis reduced independently by nearest-index selection. The mapping is
// DownsampleIndex on both axes, so repeated application is stable and the
// four grid corners are always preserved. Returns the receiver unchanged
// when already within the cap.
func (g *ElevationGrid) Downsample(cap int) *ElevationGrid {
	dstW, dstH := g.Width, g.Height
	if dstW > cap {
		dstW = cap
	}
	if dstH > cap {
		dstH = cap
	}
	if dstW == g.Width && dstH == g.Height {
		return g
	}
	values := make([]float64, 0, dstW*dstH)
	for r := 0; r < dstH; r++ {
		sr := DownsampleIndex(r, dstH, g.Height)
		for c := 0; c < dstW; c++ {
			values = append(values, g.At(sr, DownsampleIndex(c, dstW, g.Width)))
		}
	}
	return NewElevationGrid(dstW, dstH, values)
}

// DownsampleIndex maps a destination sample index onto its source index
// for one axis: floor(dst / (dstSize-1) * (srcSize-1)). Both endpoints map
// exactly (0 -> 0, dstSize-1 -> srcSize-1) and the mapping is monotonic.
func DownsampleIndex(dst, dstSize, srcSize int) int {
	if dstSize <= 1 {
		return 0
	}
	return int(math.Floor(float64(dst) / float64(dstSize-1) * float64(srcSize-1)))
}

// Bilinear samples the grid at fractional (row, col) coordinates using
// bilinear interpolation of the four surrounding cells. Coordinates are
// clamped to the grid edge, so sampling just outside returns the edge value.
func (g *ElevationGrid) Bilinear(row, col float64) float64 {
	row = clampF(row, 0, float64(g.Height-1))
	col = clampF(col, 0, float64(g.Width-1))
	r0 := int(math.Floor(row))
	c0 := int(math.Floor(col))
	r1, c1 := r0+1, c0+1
	if r1 > g.Height-1 {
		r1 = g.Height - 1
	}
	if c1 > g.Width-1 {
		c1 = g.Width - 1
	}
	fr := row - float64(r0)
	fc := col - float64(c0)
	top := g.At(r0, c0)*(1-fc) + g.At(r0, c1)*fc
	bot := g.At(r1, c0)*(1-fc) + g.At(r1, c1)*fc
	return top*(1-fr) + bot*fr
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
