package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/fogleman/gg"

	"github.com/tbuseth/maquette/internal/adapters/tiles"
	"github.com/tbuseth/maquette/internal/core/domain"
	"github.com/tbuseth/maquette/internal/core/usecases"
	"github.com/tbuseth/maquette/internal/pkg/config"
	"github.com/tbuseth/maquette/internal/pkg/geospatial"
)

// Render runs the terrain pipeline once, without the API service, and
// writes a shaded-relief PNG with the contour overlay. Useful for
// checking what a bounds will look like before creating a diorama.

// relief controls how strongly slopes darken the hypsometric tint.
const relief = 0.008

func main() {
	var (
		minLat   = flag.Float64("min-lat", 0, "south edge of the bounds (degrees)")
		minLon   = flag.Float64("min-lon", 0, "west edge of the bounds (degrees)")
		maxLat   = flag.Float64("max-lat", 0, "north edge of the bounds (degrees)")
		maxLon   = flag.Float64("max-lon", 0, "east edge of the bounds (degrees)")
		ctrLat   = flag.Float64("lat", 0, "center latitude, paired with -radius")
		ctrLon   = flag.Float64("lon", 0, "center longitude, paired with -radius")
		radius   = flag.Float64("radius", 0, "half-extent in meters around the center, replaces the corner flags")
		zoom     = flag.Int("zoom", 0, "DEM zoom level (0 = auto from bounds)")
		shape    = flag.String("shape", "rectangle", "plan footprint: rectangle or ellipse")
		interval = flag.Float64("interval", 0, "contour interval in meters (0 = config default)")
		size     = flag.Int("size", 1024, "output image size in pixels")
		out      = flag.String("out", "terrain.png", "output PNG path")
	)
	flag.Parse()

	cfg, err := config.Load("maquette-render")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if *radius > 0 {
		*minLat, *minLon, *maxLat, *maxLon = geospatial.BoundingBox(*ctrLat, *ctrLon, *radius)
	}
	bounds, err := domain.NewBounds(*minLat, *minLon, *maxLat, *maxLon)
	if err != nil {
		log.Fatalf("bounds: %v", err)
	}
	shapeKind, err := domain.ParseShapeKind(*shape)
	if err != nil {
		log.Fatalf("shape: %v", err)
	}

	set := domain.TerrainSettings{
		PlanSize:        cfg.Terrain.PlanSize,
		BaseDepthPct:    cfg.Terrain.BaseDepthPct,
		Exaggeration:    cfg.Terrain.Exaggeration,
		ResolutionCap:   cfg.Terrain.ResolutionCap,
		ContourInterval: cfg.Terrain.ContourInterval,
		MajorEvery:      cfg.Terrain.MajorEvery,
		MaxLabels:       cfg.Terrain.MaxLabels,
		EllipseSegments: cfg.Terrain.EllipseSegments,
		PaletteHex:      cfg.Terrain.Palette,
	}
	if *interval > 0 {
		set.ContourInterval = *interval
	}

	z := *zoom
	if z == 0 {
		z = geospatial.OptimalZoom(bounds.LatSpan(), bounds.LonSpan(), 512, cfg.Tiles.MaxZoom)
	}

	// One-shot renders talk straight to the origin; run prefetch first if
	// you want the bounds cached.
	origin := tiles.NewOrigin(tiles.Config{
		ElevationURL: cfg.Tiles.ElevationURL,
		ImageryURL:   cfg.Tiles.ImageryURL,
		UserAgent:    cfg.Tiles.UserAgent,
		Timeout:      cfg.Tiles.FetchTimeoutDuration(),
	})
	composites := usecases.NewCompositeService(origin, cfg.Tiles.FetchConcurrency)

	ctx := context.Background()
	start := time.Now()

	grid, comp, err := composites.BuildElevationGrid(ctx, bounds, z, set.ResolutionCap)
	if err != nil {
		log.Fatalf("composite: %v", err)
	}
	log.Printf("grid %dx%d from %d tiles at z%d (%d failed), %.0f..%.0f m",
		grid.Width, grid.Height, comp.TilesX*comp.TilesY, z, comp.FailedTiles, grid.MinHeight, grid.MaxHeight)

	dims := geospatial.MeasureBounds(bounds.MinLat, bounds.MinLon, bounds.MaxLat, bounds.MaxLon)
	mesh, err := usecases.NewMeshService().Build(grid, shapeKind, set, dims)
	if err != nil {
		log.Fatalf("mesh: %v", err)
	}
	log.Printf("mesh: %d vertices, %d triangles, %d skirt walls",
		mesh.VertexCount(), mesh.IndexCount()/3, len(mesh.Skirts))

	contours, err := usecases.NewContourService().Extract(grid, shapeKind, set)
	if err != nil {
		log.Fatalf("contours: %v", err)
	}
	log.Printf("contours: %d levels, %d labels (interval %g m)",
		len(contours.Levels), len(contours.Labels), contours.Interval)

	if err := writePNG(*out, grid, contours, shapeKind, set, *size); err != nil {
		log.Fatalf("render: %v", err)
	}
	log.Printf("wrote %s in %s", *out, time.Since(start).Round(time.Millisecond))
}

// writePNG paints the same shaded relief the API preview endpoint serves,
// at a configurable size.
func writePNG(path string, g *domain.ElevationGrid, cs *domain.ContourSet, shape domain.ShapeKind, set domain.TerrainSettings, size int) error {
	palette, _ := domain.ParsePalette(set.PaletteHex)

	dc := gg.NewContext(size, size)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	half := set.PlanSize / 2
	span := g.MaxHeight - g.MinHeight

	for py := 0; py < size; py++ {
		fy := float64(py) / float64(size-1)
		planY := (0.5 - fy) * set.PlanSize
		row := fy * float64(g.Height-1)
		for px := 0; px < size; px++ {
			fx := float64(px) / float64(size-1)
			planX := (fx - 0.5) * set.PlanSize
			if !shape.Contains(planX, planY, half, half) {
				continue
			}
			col := fx * float64(g.Width-1)

			t := 0.0
			if span > 0 {
				t = (g.Bilinear(row, col) - g.MinHeight) / span
			}
			r, gr, b := t, t, t
			if len(palette) > 0 {
				c := palette.Sample(t)
				r, gr, b = c.R, c.G, c.B
			}
			shade := hillshade(g, row, col)
			dc.SetRGB(clamp01(r*shade), clamp01(gr*shade), clamp01(b*shade))
			dc.SetPixel(px, py)
		}
	}

	toPixel := func(p domain.PlanPoint) (float64, float64) {
		return (p.X + half) / set.PlanSize * float64(size),
			(half - p.Y) / set.PlanSize * float64(size)
	}
	for _, level := range cs.Levels {
		if level.IsMajor {
			dc.SetRGBA(0.15, 0.1, 0.05, 0.85)
			dc.SetLineWidth(1.6)
		} else {
			dc.SetRGBA(0.2, 0.15, 0.1, 0.45)
			dc.SetLineWidth(0.8)
		}
		for _, seg := range level.Polylines {
			if len(seg) < 2 {
				continue
			}
			x, y := toPixel(seg[0])
			dc.MoveTo(x, y)
			for _, p := range seg[1:] {
				x, y = toPixel(p)
				dc.LineTo(x, y)
			}
		}
		dc.Stroke()
	}

	dc.SetRGB(0.1, 0.1, 0.1)
	for _, label := range cs.Labels {
		x, y := toPixel(label.At)
		dc.DrawStringAnchored(fmt.Sprintf("%.0f", label.Elevation), x, y, 0.5, 0.5)
	}

	return dc.SavePNG(path)
}

// hillshade returns an illumination factor with the light source in the
// northwest. Same shading as the API preview endpoint.
func hillshade(g *domain.ElevationGrid, row, col float64) float64 {
	dzdx := g.Bilinear(row, col+1) - g.Bilinear(row, col-1)
	dzdy := g.Bilinear(row-1, col) - g.Bilinear(row+1, col)
	s := 1 + (dzdx-dzdy)*relief
	if s < 0.55 {
		s = 0.55
	}
	if s > 1.25 {
		s = 1.25
	}
	return s
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
