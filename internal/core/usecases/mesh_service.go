package usecases

import (
	"fmt"
	"math"

	"github.com/tbuseth/maquette/internal/core/domain"
	"github.com/tbuseth/maquette/internal/pkg/geospatial"
)

// MeshService builds renderable heightfield meshes from elevation grids.
// Builds are deterministic: the same grid and settings always produce
// identical buffers, which is what lets settings-only rebuilds reuse the
// composite stage's output without re-fetching tiles.
type MeshService struct{}

// NewMeshService creates a new MeshService.
func NewMeshService() *MeshService { return &MeshService{} }

// Build produces the top surface and skirt walls for one terrain snapshot.
// The grid is downsampled to the settings' resolution cap first; heights
// are relief above grid.MinHeight scaled by planSize/minDimension and the
// exaggeration factor. No-data cells sit flat at relief zero instead of
// spiking kilometers below the base.
func (s *MeshService) Build(grid *domain.ElevationGrid, shape domain.ShapeKind, set domain.TerrainSettings, dims geospatial.Dimensions) (*domain.HeightfieldMesh, error) {
	if set.ResolutionCap > 0 {
		grid = grid.Downsample(set.ResolutionCap)
	}
	w, h := grid.Width, grid.Height
	if w < 2 || h < 2 {
		return nil, fmt.Errorf("grid %dx%d too small to mesh", w, h)
	}
	if set.PlanSize <= 0 {
		return nil, fmt.Errorf("plan size must be positive, got %v", set.PlanSize)
	}
	minDim := dims.MinDimension()
	if minDim <= 0 {
		return nil, fmt.Errorf("footprint dimensions must be positive, got %+v", dims)
	}

	exag := set.Exaggeration
	if exag <= 0 {
		exag = 1
	}
	planSize := set.PlanSize
	half := planSize / 2
	heightScale := planSize / minDim * exag
	baseDepth := planSize * set.BaseDepthPct / 100

	var palette domain.Palette
	if len(set.PaletteHex) > 0 {
		p, err := domain.ParsePalette(set.PaletteHex)
		if err != nil {
			return nil, fmt.Errorf("parse palette: %w", err)
		}
		palette = p
	}

	mesh := &domain.HeightfieldMesh{
		GridWidth:    w,
		GridHeight:   h,
		PlanSize:     planSize,
		BaseDepth:    baseDepth,
		HeightScale:  heightScale,
		Exaggeration: exag,
	}

	stepX := planSize / float64(w-1)
	stepY := planSize / float64(h-1)

	// Row 0 is the northern grid edge and maps to +Y.
	mesh.Positions = make([]float32, 0, 3*w*h)
	mesh.RawHeights = make([]float32, 0, w*h)
	for r := 0; r < h; r++ {
		y := half - float64(r)*stepY
		for c := 0; c < w; c++ {
			x := -half + float64(c)*stepX
			raw := grid.At(r, c)
			z := reliefZ(raw, grid.MinHeight, heightScale)
			mesh.Positions = append(mesh.Positions, float32(x), float32(y), float32(z))
			mesh.RawHeights = append(mesh.RawHeights, float32(raw))
		}
	}

	if palette != nil {
		mesh.Colors = s.colorize(grid, shape, palette, half)
	}

	mesh.Indices = make([]uint32, 0, 6*(w-1)*(h-1))
	for r := 0; r < h-1; r++ {
		for c := 0; c < w-1; c++ {
			nw := uint32(r*w + c)
			ne := nw + 1
			sw := nw + uint32(w)
			se := sw + 1
			// Counter-clockwise seen from above (+Z).
			mesh.Indices = append(mesh.Indices, nw, sw, se, nw, se, ne)
		}
	}

	switch shape {
	case domain.ShapeEllipse:
		mesh.Skirts = []domain.SkirtWall{s.ellipseSkirt(grid, set, half, heightScale, baseDepth)}
	default:
		mesh.Skirts = s.rectangleSkirts(mesh, w, h, baseDepth)
	}
	return mesh, nil
}

// reliefZ converts a raw elevation to plan-unit height above the grid
// minimum. No-data cells clamp to zero relief.
func reliefZ(raw, minHeight, heightScale float64) float64 {
	if raw == domain.NoDataElevation || raw < minHeight {
		return 0
	}
	return (raw - minHeight) * heightScale
}

// colorize bakes palette colors keyed by normalized height. For ellipse
// footprints the normalization range is restricted to cells inside the
// footprint, so out-of-shape extremes cannot wash out the visible ramp.
func (s *MeshService) colorize(grid *domain.ElevationGrid, shape domain.ShapeKind, palette domain.Palette, half float64) []float32 {
	w, h := grid.Width, grid.Height
	lo, hi := grid.MinHeight, grid.MaxHeight
	if shape == domain.ShapeEllipse {
		lo, hi = math.Inf(1), math.Inf(-1)
		for r := 0; r < h; r++ {
			y := half - float64(r)/float64(h-1)*2*half
			for c := 0; c < w; c++ {
				x := -half + float64(c)/float64(w-1)*2*half
				v := grid.At(r, c)
				if v == domain.NoDataElevation || !shape.Contains(x, y, half, half) {
					continue
				}
				if v < lo {
					lo = v
				}
				if v > hi {
					hi = v
				}
			}
		}
		if math.IsInf(lo, 1) {
			lo, hi = grid.MinHeight, grid.MaxHeight
		}
	}

	span := hi - lo
	colors := make([]float32, 0, 3*w*h)
	for _, raw := range grid.Values {
		t := 0.5
		if span > 0 {
			t = (raw - lo) / span
		}
		c := palette.Sample(t)
		colors = append(colors, float32(c.R), float32(c.G), float32(c.B))
	}
	return colors
}

// rectangleSkirts closes the four footprint edges with one wall each.
// Runs are ordered so the shared wallFromRun winding yields outward
// normals: north west-to-east, east north-to-south, south east-to-west,
// west south-to-north.
func (s *MeshService) rectangleSkirts(mesh *domain.HeightfieldMesh, w, h int, baseDepth float64) []domain.SkirtWall {
	top := func(r, c int) [3]float64 {
		i := 3 * (r*w + c)
		return [3]float64{float64(mesh.Positions[i]), float64(mesh.Positions[i+1]), float64(mesh.Positions[i+2])}
	}

	north := make([][3]float64, 0, w)
	south := make([][3]float64, 0, w)
	east := make([][3]float64, 0, h)
	west := make([][3]float64, 0, h)
	for c := 0; c < w; c++ {
		north = append(north, top(0, c))
		south = append(south, top(h-1, w-1-c))
	}
	for r := 0; r < h; r++ {
		east = append(east, top(r, w-1))
		west = append(west, top(h-1-r, 0))
	}

	return []domain.SkirtWall{
		wallFromRun(north, [][3]float64{{0, 1, 0}}, baseDepth, false),
		wallFromRun(east, [][3]float64{{1, 0, 0}}, baseDepth, false),
		wallFromRun(south, [][3]float64{{0, -1, 0}}, baseDepth, false),
		wallFromRun(west, [][3]float64{{-1, 0, 0}}, baseDepth, false),
	}
}

// ellipseSkirt builds the single radial wall of an elliptical footprint.
// Top heights are bilinear samples of the grid at the boundary; the ring
// is walked clockwise so the winding faces outward, and normals point
// radially away from the center.
func (s *MeshService) ellipseSkirt(grid *domain.ElevationGrid, set domain.TerrainSettings, half, heightScale, baseDepth float64) domain.SkirtWall {
	n := set.EllipseSegments
	if n < 8 {
		n = 128
	}
	w, h := grid.Width, grid.Height

	top := make([][3]float64, 0, n)
	normals := make([][3]float64, 0, n)
	for i := 0; i < n; i++ {
		theta := -2 * math.Pi * float64(i) / float64(n)
		cos, sin := math.Cos(theta), math.Sin(theta)
		x := half * cos
		y := half * sin

		col := (x + half) / (2 * half) * float64(w-1)
		row := (half - y) / (2 * half) * float64(h-1)
		raw := grid.Bilinear(row, col)
		// Bilinear blends involving no-data neighbors go far below the
		// real minimum; clamp to the grid range like the top surface.
		if raw < grid.MinHeight {
			raw = grid.MinHeight
		}
		z := (raw - grid.MinHeight) * heightScale

		top = append(top, [3]float64{x, y, z})
		normals = append(normals, [3]float64{cos, sin, 0})
	}
	return wallFromRun(top, normals, baseDepth, true)
}

// wallFromRun extrudes a run of top-edge points down to z = -baseDepth.
// Vertices are laid out top run first, bottom run second; triangles are
// wound (top_i, top_j, bottom_i), (top_j, bottom_j, bottom_i), which faces
// run-direction x down. normals holds either one shared normal or one per
// run point; wrap closes the run into a ring.
func wallFromRun(top [][3]float64, normals [][3]float64, baseDepth float64, wrap bool) domain.SkirtWall {
	n := len(top)
	wall := domain.SkirtWall{
		Positions: make([]float32, 0, 3*2*n),
		Normals:   make([]float32, 0, 3*2*n),
	}

	normalAt := func(i int) [3]float64 {
		if len(normals) == 1 {
			return normals[0]
		}
		return normals[i]
	}
	for i := 0; i < n; i++ {
		p := top[i]
		wall.Positions = append(wall.Positions, float32(p[0]), float32(p[1]), float32(p[2]))
		nm := normalAt(i)
		wall.Normals = append(wall.Normals, float32(nm[0]), float32(nm[1]), float32(nm[2]))
	}
	for i := 0; i < n; i++ {
		p := top[i]
		wall.Positions = append(wall.Positions, float32(p[0]), float32(p[1]), float32(-baseDepth))
		nm := normalAt(i)
		wall.Normals = append(wall.Normals, float32(nm[0]), float32(nm[1]), float32(nm[2]))
	}

	quads := n - 1
	if wrap {
		quads = n
	}
	wall.Indices = make([]uint32, 0, 6*quads)
	for i := 0; i < quads; i++ {
		j := (i + 1) % n
		ti, tj := uint32(i), uint32(j)
		bi, bj := uint32(n+i), uint32(n+j)
		wall.Indices = append(wall.Indices, ti, tj, bi, tj, bj, bi)
	}
	return wall
}
