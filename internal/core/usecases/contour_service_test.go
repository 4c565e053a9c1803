package usecases_test

import (
	"testing"

	"github.com/tbuseth/maquette/internal/core/domain"
	"github.com/tbuseth/maquette/internal/core/usecases"
)

func contourSettings() domain.TerrainSettings {
	return domain.TerrainSettings{
		PlanSize:        200,
		ContourInterval: 50,
		MajorEvery:      2,
		MaxLabels:       24,
	}
}

func segEqual(seg []domain.PlanPoint, x1, y1, x2, y2 float64) bool {
	if len(seg) != 2 {
		return false
	}
	a, b := seg[0], seg[1]
	fwd := a.X == x1 && a.Y == y1 && b.X == x2 && b.Y == y2
	rev := a.X == x2 && a.Y == y2 && b.X == x1 && b.Y == y1
	return fwd || rev
}

func TestContourService_SinglePeak(t *testing.T) {
	grid := domain.NewElevationGrid(3, 3, []float64{
		0, 0, 0,
		0, 100, 0,
		0, 0, 0,
	})
	cs, err := usecases.NewContourService().Extract(grid, domain.ShapeRectangle, contourSettings())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Level 0 crosses nothing (every corner >= 0), leaving 50 and 100.
	if len(cs.Levels) != 2 {
		t.Fatalf("levels = %d, want 2", len(cs.Levels))
	}
	if cs.Interval != 50 || cs.MajorInterval != 100 {
		t.Errorf("intervals = (%v, %v), want (50, 100)", cs.Interval, cs.MajorInterval)
	}

	l50 := cs.Levels[0]
	if l50.Elevation != 50 || l50.IsMajor {
		t.Errorf("first level = %v major=%v, want 50 minor", l50.Elevation, l50.IsMajor)
	}
	if len(l50.Polylines) != 4 {
		t.Fatalf("level 50 segments = %d, want a diamond of 4", len(l50.Polylines))
	}
	// North-west cell: crossing from the bottom edge midpoint to the
	// right edge midpoint in plan units.
	if !segEqual(l50.Polylines[0], -50, 0, 0, 50) {
		t.Errorf("nw segment = %+v, want (-50,0)-(0,50)", l50.Polylines[0])
	}

	l100 := cs.Levels[1]
	if l100.Elevation != 100 || !l100.IsMajor {
		t.Errorf("second level = %v major=%v, want 100 major", l100.Elevation, l100.IsMajor)
	}

	// One label, anchored on the major level.
	if len(cs.Labels) != 1 || cs.Labels[0].Elevation != 100 {
		t.Fatalf("labels = %+v, want one at elevation 100", cs.Labels)
	}
}

func TestContourService_SaddleMeanRule(t *testing.T) {
	set := contourSettings()

	// High NW+SE corners, cell mean exactly at the level: the mean rule
	// connects through the middle, pairing top-right and left-bottom.
	ridge := domain.NewElevationGrid(2, 2, []float64{
		100, 0,
		0, 100,
	})
	cs, err := usecases.NewContourService().Extract(ridge, domain.ShapeRectangle, set)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Level 0 crosses nothing, leaving 50 and 100.
	if len(cs.Levels) != 2 {
		t.Fatalf("levels = %d, want 2 (50, 100)", len(cs.Levels))
	}
	l50 := cs.Levels[0]
	if len(l50.Polylines) != 2 {
		t.Fatalf("saddle segments = %d, want 2", len(l50.Polylines))
	}
	if !segEqual(l50.Polylines[0], 0, 100, 100, 0) {
		t.Errorf("first diagonal = %+v, want (0,100)-(100,0)", l50.Polylines[0])
	}
	if !segEqual(l50.Polylines[1], -100, 0, 0, -100) {
		t.Errorf("second diagonal = %+v, want (-100,0)-(0,-100)", l50.Polylines[1])
	}

	// High NE+SW corners with the mean pulled below the level: the high
	// corners stay isolated instead of connecting through the middle.
	valley := domain.NewElevationGrid(2, 2, []float64{
		-60, 100,
		100, 0,
	})
	cs, err = usecases.NewContourService().Extract(valley, domain.ShapeRectangle, set)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var at50 *domain.ContourLevel
	for i := range cs.Levels {
		if cs.Levels[i].Elevation == 50 {
			at50 = &cs.Levels[i]
		}
	}
	if at50 == nil || len(at50.Polylines) != 2 {
		t.Fatalf("saddle level 50 = %+v, want 2 segments", at50)
	}
}

func TestContourService_ShapeClipping(t *testing.T) {
	// A single high corner produces one segment near the NW corner,
	// inside the rectangle but outside the inscribed ellipse. 90 keeps
	// the maximum itself off the level ladder.
	corner := domain.NewElevationGrid(3, 3, []float64{
		90, 0, 0,
		0, 0, 0,
		0, 0, 0,
	})
	svc := usecases.NewContourService()
	set := contourSettings()

	rect, err := svc.Extract(corner, domain.ShapeRectangle, set)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := rect.SegmentCount(); n != 1 {
		t.Fatalf("rectangle segments = %d, want 1", n)
	}

	ellipse, err := svc.Extract(corner, domain.ShapeEllipse, set)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := ellipse.SegmentCount(); n != 0 {
		t.Errorf("ellipse segments = %d, want corner segment clipped", n)
	}
}

func TestContourService_BelowSeaLevelMajors(t *testing.T) {
	grid := domain.NewElevationGrid(2, 2, []float64{
		-120, -10,
		-10, -120,
	})
	set := contourSettings()
	cs, err := usecases.NewContourService().Extract(grid, domain.ShapeRectangle, set)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, lv := range cs.Levels {
		// With interval 50 and majorEvery 2, -100 is a major level.
		if lv.Elevation == -100 && !lv.IsMajor {
			t.Errorf("level -100 not tagged major")
		}
		if lv.Elevation == -50 && lv.IsMajor {
			t.Errorf("level -50 wrongly tagged major")
		}
	}
}

func TestContourService_Guards(t *testing.T) {
	grid := domain.NewElevationGrid(2, 2, []float64{0, 1000, 2000, 8000})
	set := contourSettings()

	set.ContourInterval = 0
	if _, err := usecases.NewContourService().Extract(grid, domain.ShapeRectangle, set); err == nil {
		t.Error("zero interval must fail")
	}

	set.ContourInterval = 0.001
	if _, err := usecases.NewContourService().Extract(grid, domain.ShapeRectangle, set); err == nil {
		t.Error("pathological interval must fail the level budget")
	}
}

func TestContourService_LabelCap(t *testing.T) {
	// A tall ramp crosses many major levels; labels stop at the cap.
	vals := make([]float64, 9)
	for i := range vals {
		vals[i] = float64(i) * 300
	}
	grid := domain.NewElevationGrid(3, 3, vals)
	set := contourSettings()
	set.MaxLabels = 3
	cs, err := usecases.NewContourService().Extract(grid, domain.ShapeRectangle, set)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cs.Labels) > 3 {
		t.Errorf("labels = %d, want at most 3", len(cs.Labels))
	}
}
