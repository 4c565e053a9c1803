package domain

import "time"

// TerrainSettings are the tunable rendering parameters of a diorama.
// All of them can change after creation; only Exaggeration changes take
// the cheap rebuild path that skips refetching tiles.
type TerrainSettings struct {
	PlanSize        float64  `json:"plan_size"`
	BaseDepthPct    float64  `json:"base_depth_pct"`
	Exaggeration    float64  `json:"exaggeration"`
	ResolutionCap   int      `json:"resolution_cap"`
	ContourInterval float64  `json:"contour_interval"`
	MajorEvery      int      `json:"major_every"`
	MaxLabels       int      `json:"max_labels"`
	EllipseSegments int      `json:"ellipse_segments"`
	PaletteHex      []string `json:"palette,omitempty"`
}

// Diorama is one bounded piece of the world being turned into a model.
// The struct is descriptive state only; runtime artifacts (grids, meshes,
// contour sets) live in the snapshot that services swap atomically.
type Diorama struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Bounds    Bounds          `json:"bounds"`
	Shape     ShapeKind       `json:"shape"`
	Settings  TerrainSettings `json:"settings"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// PlanToGeo maps a plan-unit point (footprint-centered, X east, Y north)
// to geographic coordinates. The mapping is linear per axis: the plan
// square spans the bounds exactly, +Y at the northern edge. ok is false
// outside the footprint square.
func (d *Diorama) PlanToGeo(x, y float64) (GeoPoint, bool) {
	half := d.Settings.PlanSize / 2
	if half <= 0 || x < -half || x > half || y < -half || y > half {
		return GeoPoint{}, false
	}
	return GeoPoint{
		Lat: d.Bounds.MaxLat - (half-y)/d.Settings.PlanSize*d.Bounds.LatSpan(),
		Lon: d.Bounds.MinLon + (x+half)/d.Settings.PlanSize*d.Bounds.LonSpan(),
	}, true
}

// GeoToPlan is the inverse of PlanToGeo. ok is false outside the bounds.
func (d *Diorama) GeoToPlan(lat, lon float64) (x, y float64, ok bool) {
	b := d.Bounds
	if lat < b.MinLat || lat > b.MaxLat || lon < b.MinLon || lon > b.MaxLon {
		return 0, 0, false
	}
	half := d.Settings.PlanSize / 2
	x = -half + (lon-b.MinLon)/b.LonSpan()*d.Settings.PlanSize
	y = half - (b.MaxLat-lat)/b.LatSpan()*d.Settings.PlanSize
	return x, y, true
}
