package usecases_test

import (
	"testing"
	"time"

	"github.com/tbuseth/maquette/internal/core/domain"
	"github.com/tbuseth/maquette/internal/core/usecases"
)

func lodConfig() usecases.LODConfig {
	return usecases.LODConfig{
		PollInterval:     100 * time.Millisecond,
		HysteresisLevels: 2,
		MinZoom:          8,
		MaxDemZoom:       15,
		MaxImageryZoom:   19,
	}
}

func TestLODController_DistanceBands(t *testing.T) {
	// minDimension 10000 m; distance picks the band directly.
	cases := []struct {
		distance float64
		wantZoom int
		wantCap  int
	}{
		{10000, 14, 256},  // ratio 1.0
		{20000, 13, 192},  // ratio 2.0
		{40000, 12, 128},  // ratio 4.0
		{80000, 11, 96},   // ratio 8.0
		{200000, 10, 64},  // ratio 20
		{2000000, 10, 64}, // far out still clamps at the coarsest band
	}
	for _, tc := range cases {
		// Start far from every band so hysteresis never suppresses.
		c := usecases.NewLODController(lodConfig(), 99)
		dec := c.Evaluate(tc.distance, 10000, time.Now())
		if dec == nil {
			t.Fatalf("distance %v: no decision", tc.distance)
		}
		if dec.DemZoom != tc.wantZoom || dec.ResolutionCap != tc.wantCap {
			t.Errorf("distance %v: zoom %d cap %d, want %d and %d",
				tc.distance, dec.DemZoom, dec.ResolutionCap, tc.wantZoom, tc.wantCap)
		}
		if dec.ImageryZoom != tc.wantZoom+2 {
			t.Errorf("distance %v: imagery zoom %d, want dem+2", tc.distance, dec.ImageryZoom)
		}
	}
}

func TestLODController_Hysteresis(t *testing.T) {
	c := usecases.NewLODController(lodConfig(), 12)

	// One band of movement (target 13) is absorbed.
	if dec := c.Evaluate(20000, 10000, time.Now()); dec != nil {
		t.Fatalf("one-level move must be absorbed, got %+v", dec)
	}
	st := c.State()
	if st.DemZoom != 12 || st.Phase != domain.LODStable {
		t.Errorf("state after absorbed move = %+v", st)
	}
	if st.DistanceRatio != 2 {
		t.Errorf("distance ratio = %v, want 2", st.DistanceRatio)
	}

	// Two bands of movement (target 14) is accepted.
	dec := c.Evaluate(10000, 10000, time.Now())
	if dec == nil || dec.DemZoom != 14 {
		t.Fatalf("two-level move must be accepted, got %+v", dec)
	}
	if c.State().Phase != domain.LODTransitioning {
		t.Errorf("phase = %v, want transitioning", c.State().Phase)
	}
}

func TestLODController_ConfirmAndSupersede(t *testing.T) {
	c := usecases.NewLODController(lodConfig(), 12)

	first := c.Evaluate(10000, 10000, time.Now()) // -> 14
	if first == nil {
		t.Fatal("expected first decision")
	}
	second := c.Evaluate(200000, 10000, time.Now()) // -> 10
	if second == nil {
		t.Fatal("expected second decision")
	}

	// The first token went stale the moment the second was issued.
	if c.ConfirmApplied(first.Token) {
		t.Error("stale token must not confirm")
	}
	if c.State().Phase != domain.LODTransitioning {
		t.Error("phase must remain transitioning after stale confirm")
	}
	if !c.ConfirmApplied(second.Token) {
		t.Error("current token must confirm")
	}
	if c.State().Phase != domain.LODStable {
		t.Error("phase must be stable after confirm")
	}
}

func TestLODController_ZoomClamps(t *testing.T) {
	cfg := lodConfig()
	cfg.MaxDemZoom = 13
	cfg.MaxImageryZoom = 14
	c := usecases.NewLODController(cfg, 10)

	dec := c.Evaluate(10000, 10000, time.Now()) // band says 14, clamps to 13
	if dec == nil || dec.DemZoom != 13 {
		t.Fatalf("decision = %+v, want dem zoom clamped to 13", dec)
	}
	if dec.ImageryZoom != 14 {
		t.Errorf("imagery zoom = %d, want clamped to 14", dec.ImageryZoom)
	}

	cfg = lodConfig()
	cfg.MinZoom = 11
	c = usecases.NewLODController(cfg, 14)
	dec = c.Evaluate(500000, 10000, time.Now()) // band says 10, floors at 11
	if dec == nil || dec.DemZoom != 11 {
		t.Fatalf("decision = %+v, want dem zoom floored at 11", dec)
	}
}

func TestLODController_IgnoresDegenerateDimension(t *testing.T) {
	c := usecases.NewLODController(lodConfig(), 12)
	if dec := c.Evaluate(10000, 0, time.Now()); dec != nil {
		t.Fatalf("zero dimension must not produce a decision, got %+v", dec)
	}
}
