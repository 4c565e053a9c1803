package domain

// SkirtWall is one vertical ribbon closing the gap between a terrain
// surface edge and the base plane. A rectangular footprint emits four
// walls (one per edge); an elliptical footprint emits a single radial
// wall. Vertices are duplicated rather than shared with the top surface
// so each wall carries its own outward-facing normals.
type SkirtWall struct {
	Positions []float32 `json:"positions"`
	Normals   []float32 `json:"normals"`
	Indices   []uint32  `json:"indices"`
}

// VertexCount returns the number of vertices in the wall.
func (w SkirtWall) VertexCount() int { return len(w.Positions) / 3 }

// HeightfieldMesh is a renderable terrain surface in plan coordinates:
// X east, Y north, Z up, origin at the footprint center. The top surface
// is an implicit (GridWidth x GridHeight) vertex lattice addressed by
// Indices; Colors is present only when a palette was applied.
type HeightfieldMesh struct {
	GridWidth  int     `json:"grid_width"`
	GridHeight int     `json:"grid_height"`
	PlanSize   float64 `json:"plan_size"`
	BaseDepth  float64 `json:"base_depth"`

	// HeightScale converts meters of relief to plan units and already
	// includes the vertical exaggeration factor.
	HeightScale  float64 `json:"height_scale"`
	Exaggeration float64 `json:"exaggeration"`

	Positions  []float32 `json:"positions"`
	RawHeights []float32 `json:"raw_heights"`
	Colors     []float32 `json:"colors,omitempty"`
	Indices    []uint32  `json:"indices"`

	Skirts []SkirtWall `json:"skirts"`
}

// VertexCount returns the number of top-surface vertices.
func (m *HeightfieldMesh) VertexCount() int { return len(m.Positions) / 3 }

// IndexCount returns the number of top-surface indices.
func (m *HeightfieldMesh) IndexCount() int { return len(m.Indices) }

// SkirtVertexCount returns the total vertex count across all skirt walls.
func (m *HeightfieldMesh) SkirtVertexCount() int {
	n := 0
	for _, w := range m.Skirts {
		n += w.VertexCount()
	}
	return n
}

// HasColors reports whether a palette was baked into the mesh.
func (m *HeightfieldMesh) HasColors() bool { return len(m.Colors) > 0 }
