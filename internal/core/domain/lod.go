package domain

import "time"

// LODPhase describes whether a diorama's detail level is settled or a
// rebuild at a new level is in flight.
type LODPhase string

const (
	LODStable        LODPhase = "stable"
	LODTransitioning LODPhase = "transitioning"
)

// LODState is the currently active level-of-detail selection for one
// diorama. It is mutated only by the diorama's own polling step; readers
// get value copies.
type LODState struct {
	DemZoom       int      `json:"dem_zoom"`
	ImageryZoom   int      `json:"imagery_zoom"`
	ResolutionCap int      `json:"resolution_cap"`
	Phase         LODPhase `json:"phase"`

	// DistanceRatio is camera distance divided by the footprint's
	// smaller real-world dimension, the input the zoom bands key on.
	DistanceRatio float64   `json:"distance_ratio"`
	CheckedAt     time.Time `json:"checked_at"`
}
