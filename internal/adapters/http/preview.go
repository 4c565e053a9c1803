package http

import (
	"bytes"
	"fmt"
	"io"

	"github.com/fogleman/gg"
	"github.com/gofiber/fiber/v2"
	"github.com/tbuseth/maquette/internal/core/domain"
	"github.com/tbuseth/maquette/internal/core/usecases"
)

// previewSize is the pixel extent of the square preview image.
const previewSize = 512

// previewRelief controls how strongly slopes darken the hypsometric tint.
const previewRelief = 0.008

// PreviewHandler renders a shaded-relief PNG of the current snapshot with
// the contour overlay. This is an ops/debug aid; the client does its own
// rendering from the mesh and imagery endpoints.
func PreviewHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		snap := deps.Dioramas.Snapshot(id)
		if snap == nil {
			return errNotFound(c, "diorama not found")
		}
		view, err := deps.Dioramas.Get(c.Context(), id)
		if err != nil || view == nil {
			return errNotFound(c, "diorama not found")
		}

		var buf bytes.Buffer
		if err := renderPreview(&buf, snap, view.Diorama); err != nil {
			return errInternal(c, err.Error())
		}
		c.Set("Content-Type", "image/png")
		c.Set("Cache-Control", "public, max-age=60")
		return c.Send(buf.Bytes())
	}
}

// renderPreview paints hypsometric tints shaded by slope, masked to the
// diorama's footprint shape, then strokes the contour line work on top.
func renderPreview(w io.Writer, snap *usecases.TerrainSnapshot, d domain.Diorama) error {
	g := snap.Grid
	set := d.Settings
	palette, _ := domain.ParsePalette(set.PaletteHex)

	dc := gg.NewContext(previewSize, previewSize)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	half := set.PlanSize / 2
	span := g.MaxHeight - g.MinHeight

	for py := 0; py < previewSize; py++ {
		fy := float64(py) / float64(previewSize-1)
		planY := (0.5 - fy) * set.PlanSize
		row := fy * float64(g.Height-1)
		for px := 0; px < previewSize; px++ {
			fx := float64(px) / float64(previewSize-1)
			planX := (fx - 0.5) * set.PlanSize
			if !d.Shape.Contains(planX, planY, half, half) {
				continue
			}
			col := fx * float64(g.Width-1)

			t := 0.0
			if span > 0 {
				t = (g.Bilinear(row, col) - g.MinHeight) / span
			}
			var r, gr, b float64
			if len(palette) > 0 {
				c := palette.Sample(t)
				r, gr, b = c.R, c.G, c.B
			} else {
				r, gr, b = t, t, t
			}
			shade := hillshade(g, row, col)
			dc.SetRGB(clamp01(r*shade), clamp01(gr*shade), clamp01(b*shade))
			dc.SetPixel(px, py)
		}
	}

	toPixel := func(p domain.PlanPoint) (float64, float64) {
		return (p.X + half) / set.PlanSize * previewSize,
			(half - p.Y) / set.PlanSize * previewSize
	}
	for _, level := range snap.Contours.Levels {
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
	for _, label := range snap.Contours.Labels {
		x, y := toPixel(label.At)
		dc.DrawStringAnchored(fmt.Sprintf("%.0f", label.Elevation), x, y, 0.5, 0.5)
	}

	return dc.EncodePNG(w)
}

// hillshade returns an illumination factor with the light source in the
// northwest: slopes descending toward the northwest face the light and
// brighten, opposite slopes darken. Row 0 of the grid is the northern edge.
func hillshade(g *domain.ElevationGrid, row, col float64) float64 {
	dzdx := g.Bilinear(row, col+1) - g.Bilinear(row, col-1)
	dzdy := g.Bilinear(row-1, col) - g.Bilinear(row+1, col)
	s := 1 + (dzdx-dzdy)*previewRelief
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
