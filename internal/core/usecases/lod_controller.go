package usecases

import (
	"time"

	"github.com/google/uuid"

	"github.com/tbuseth/maquette/internal/core/domain"
)

// LODConfig tunes the level-of-detail state machine.
type LODConfig struct {
	PollInterval     time.Duration
	HysteresisLevels int
	MinZoom          int
	MaxDemZoom       int
	MaxImageryZoom   int
}

// LODDecision is an accepted detail change. Token identifies the rebuild
// it authorizes; a rebuild finishing with a stale token is discarded.
type LODDecision struct {
	DemZoom       int
	ImageryZoom   int
	ResolutionCap int
	Token         string
}

// LODController maps camera distance to DEM zoom, imagery zoom and mesh
// resolution cap, with hysteresis so oscillating around a band edge never
// triggers rebuild churn. It is not goroutine-safe: each diorama's poller
// owns one controller and is the only writer.
type LODController struct {
	cfg   LODConfig
	state domain.LODState
	token string
}

// NewLODController starts from the zoom of the initial composite so the
// first poll has a real level to compare against.
func NewLODController(cfg LODConfig, initialDemZoom int) *LODController {
	if cfg.HysteresisLevels <= 0 {
		cfg.HysteresisLevels = 2
	}
	imagery := initialDemZoom + 2
	if imagery > cfg.MaxImageryZoom {
		imagery = cfg.MaxImageryZoom
	}
	return &LODController{
		cfg: cfg,
		state: domain.LODState{
			DemZoom:       initialDemZoom,
			ImageryZoom:   imagery,
			ResolutionCap: 256,
			Phase:         domain.LODStable,
		},
	}
}

// demZoomFor buckets a distance ratio (camera distance over the smaller
// footprint dimension) into a DEM zoom. Closer cameras get deeper zooms.
func (c *LODController) demZoomFor(ratio float64) int {
	z := 10
	switch {
	case ratio <= 1.2:
		z = 14
	case ratio <= 2.5:
		z = 13
	case ratio <= 5:
		z = 12
	case ratio <= 10:
		z = 11
	}
	if z < c.cfg.MinZoom {
		z = c.cfg.MinZoom
	}
	if z > c.cfg.MaxDemZoom {
		z = c.cfg.MaxDemZoom
	}
	return z
}

// resolutionCapFor buckets a distance ratio into a mesh vertex budget,
// derived from distance directly rather than from the chosen zoom.
func resolutionCapFor(ratio float64) int {
	switch {
	case ratio <= 1.2:
		return 256
	case ratio <= 2.5:
		return 192
	case ratio <= 5:
		return 128
	case ratio <= 10:
		return 96
	default:
		return 64
	}
}

// Evaluate runs one polling step. The returned decision is nil unless the
// target DEM zoom moved at least HysteresisLevels away from the active
// one; when non-nil the controller is already transitioned onto the new
// levels and the caller owes it a ConfirmApplied or a superseding call.
func (c *LODController) Evaluate(distanceMeters, minDimension float64, now time.Time) *LODDecision {
	if minDimension <= 0 {
		return nil
	}
	ratio := distanceMeters / minDimension
	c.state.DistanceRatio = ratio
	c.state.CheckedAt = now

	target := c.demZoomFor(ratio)
	delta := target - c.state.DemZoom
	if delta < 0 {
		delta = -delta
	}
	if delta < c.cfg.HysteresisLevels {
		return nil
	}

	imagery := target + 2
	if imagery > c.cfg.MaxImageryZoom {
		imagery = c.cfg.MaxImageryZoom
	}

	c.state.DemZoom = target
	c.state.ImageryZoom = imagery
	c.state.ResolutionCap = resolutionCapFor(ratio)
	c.state.Phase = domain.LODTransitioning
	c.token = uuid.NewString()

	return &LODDecision{
		DemZoom:       target,
		ImageryZoom:   imagery,
		ResolutionCap: c.state.ResolutionCap,
		Token:         c.token,
	}
}

// ConfirmApplied marks the transition finished if token is still the
// latest one issued. A stale token reports false and changes nothing, so
// superseded rebuilds land harmlessly.
func (c *LODController) ConfirmApplied(token string) bool {
	if token == "" || token != c.token {
		return false
	}
	c.state.Phase = domain.LODStable
	return true
}

// State returns a copy of the current LOD state.
func (c *LODController) State() domain.LODState {
	return c.state
}
