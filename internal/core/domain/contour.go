package domain

// PlanPoint is a 2D point in plan coordinates (footprint-centered, X east,
// Y north), matching the horizontal axes of HeightfieldMesh.
type PlanPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ContourLevel holds all line work extracted for one elevation.
// Polylines are unstitched two-point segments straight out of the
// marching step; renderers that want longer runs can join shared
// endpoints themselves.
type ContourLevel struct {
	Elevation float64       `json:"elevation"`
	IsMajor   bool          `json:"is_major"`
	Polylines [][]PlanPoint `json:"polylines"`
}

// ContourLabel anchors one elevation annotation on a major contour.
type ContourLabel struct {
	Elevation float64   `json:"elevation"`
	At        PlanPoint `json:"at"`
}

// ContourSet is the full isoline extraction for one terrain snapshot.
type ContourSet struct {
	Interval      float64        `json:"interval"`
	MajorInterval float64        `json:"major_interval"`
	Levels        []ContourLevel `json:"levels"`
	Labels        []ContourLabel `json:"labels"`
}

// SegmentCount returns the total number of line segments across levels.
func (c *ContourSet) SegmentCount() int {
	n := 0
	for _, lv := range c.Levels {
		n += len(lv.Polylines)
	}
	return n
}
