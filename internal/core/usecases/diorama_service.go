package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tbuseth/maquette/internal/core/domain"
	"github.com/tbuseth/maquette/internal/core/ports"
	"github.com/tbuseth/maquette/internal/pkg/geospatial"
	"github.com/tbuseth/maquette/internal/pkg/metrics"
)

// DioramaConfig carries the engine defaults applied to new dioramas and
// the limits shared by all of them.
type DioramaConfig struct {
	PlanSize        float64
	BaseDepthPct    float64
	Exaggeration    float64
	ResolutionCap   int
	ContourInterval float64
	MajorEvery      int
	MaxLabels       int
	EllipseSegments int
	PaletteHex      []string

	MaxZoom        int
	ImageryMaxZoom int
	LOD            LODConfig
}

// TerrainSnapshot is the complete set of derived artifacts for one
// diorama at one detail level. Snapshots are immutable; every rebuild
// produces a new one and swaps it in whole, so readers never observe a
// half-updated pipeline.
type TerrainSnapshot struct {
	Grid     *domain.ElevationGrid
	Mesh     *domain.HeightfieldMesh
	Contours *domain.ContourSet

	GridVersion    uint64
	MeshVersion    uint64
	ContourVersion uint64

	DemZoom     int
	FailedTiles int
	BuiltAt     time.Time
}

// DioramaView is the read model handlers serve for one diorama.
type DioramaView struct {
	Diorama    domain.Diorama        `json:"diorama"`
	Dimensions geospatial.Dimensions `json:"dimensions"`
	LOD        domain.LODState       `json:"lod"`

	GridVersion    uint64    `json:"grid_version"`
	MeshVersion    uint64    `json:"mesh_version"`
	ContourVersion uint64    `json:"contour_version"`
	FailedTiles    int       `json:"failed_tiles"`
	BuiltAt        time.Time `json:"built_at"`
}

// SettingsPatch is a partial settings update; nil fields keep their
// current value.
type SettingsPatch struct {
	PlanSize        *float64 `json:"plan_size"`
	BaseDepthPct    *float64 `json:"base_depth_pct"`
	Exaggeration    *float64 `json:"exaggeration"`
	ResolutionCap   *int     `json:"resolution_cap"`
	ContourInterval *float64 `json:"contour_interval"`
	MajorEvery      *int     `json:"major_every"`
	MaxLabels       *int     `json:"max_labels"`
	EllipseSegments *int     `json:"ellipse_segments"`
	Palette         []string `json:"palette"`
	Shape           *string  `json:"shape"`
	Name            *string  `json:"name"`
}

// dioramaRuntime is the mutable working state behind one diorama: the
// current snapshot, the raw (uncapped) grid rebuilds derive from, the LOD
// controller and the camera distance feeding it. Guarded by mu; the
// snapshot pointer swaps whole and snapshots themselves are never edited.
type dioramaRuntime struct {
	mu sync.RWMutex

	diorama  domain.Diorama
	dims     geospatial.Dimensions
	snapshot *TerrainSnapshot
	rawGrid  *domain.ElevationGrid
	lod      *LODController

	cameraMeters float64

	// imageryMu keeps at most one imagery composite in flight per diorama.
	imageryMu sync.Mutex

	pending chan *LODDecision
	cancel  context.CancelFunc
}

// DioramaService owns the diorama registry and drives the terrain
// pipeline: composites, grids, meshes, contours, LOD polling and event
// publication.
type DioramaService struct {
	repo       ports.DioramaRepository
	composites *CompositeService
	meshes     *MeshService
	contours   *ContourService
	publisher  ports.EventPublisher
	cfg        DioramaConfig

	mu       sync.RWMutex
	runtimes map[string]*dioramaRuntime
	wg       sync.WaitGroup
}

// NewDioramaService creates a new DioramaService.
func NewDioramaService(
	repo ports.DioramaRepository,
	composites *CompositeService,
	meshes *MeshService,
	contours *ContourService,
	publisher ports.EventPublisher,
	cfg DioramaConfig,
) *DioramaService {
	return &DioramaService{
		repo:       repo,
		composites: composites,
		meshes:     meshes,
		contours:   contours,
		publisher:  publisher,
		cfg:        cfg,
		runtimes:   make(map[string]*dioramaRuntime),
	}
}

func (s *DioramaService) defaultSettings() domain.TerrainSettings {
	return domain.TerrainSettings{
		PlanSize:        s.cfg.PlanSize,
		BaseDepthPct:    s.cfg.BaseDepthPct,
		Exaggeration:    s.cfg.Exaggeration,
		ResolutionCap:   s.cfg.ResolutionCap,
		ContourInterval: s.cfg.ContourInterval,
		MajorEvery:      s.cfg.MajorEvery,
		MaxLabels:       s.cfg.MaxLabels,
		EllipseSegments: s.cfg.EllipseSegments,
		PaletteHex:      s.cfg.PaletteHex,
	}
}

func applyPatch(set domain.TerrainSettings, p SettingsPatch) domain.TerrainSettings {
	if p.PlanSize != nil {
		set.PlanSize = *p.PlanSize
	}
	if p.BaseDepthPct != nil {
		set.BaseDepthPct = *p.BaseDepthPct
	}
	if p.Exaggeration != nil {
		set.Exaggeration = *p.Exaggeration
	}
	if p.ResolutionCap != nil {
		set.ResolutionCap = *p.ResolutionCap
	}
	if p.ContourInterval != nil {
		set.ContourInterval = *p.ContourInterval
	}
	if p.MajorEvery != nil {
		set.MajorEvery = *p.MajorEvery
	}
	if p.MaxLabels != nil {
		set.MaxLabels = *p.MaxLabels
	}
	if p.EllipseSegments != nil {
		set.EllipseSegments = *p.EllipseSegments
	}
	if p.Palette != nil {
		set.PaletteHex = p.Palette
	}
	return set
}

// Create measures the footprint, builds the initial snapshot at the
// optimal zoom for a 512 px target, registers the diorama and starts its
// LOD poller. The build is synchronous: a created diorama always has a
// servable snapshot.
func (s *DioramaService) Create(ctx context.Context, name string, bounds domain.Bounds, shape domain.ShapeKind, patch SettingsPatch) (*domain.Diorama, error) {
	set := applyPatch(s.defaultSettings(), patch)
	if _, err := domain.ParsePalette(set.PaletteHex); len(set.PaletteHex) > 0 && err != nil {
		return nil, fmt.Errorf("invalid palette: %w", err)
	}

	dims := geospatial.MeasureBounds(bounds.MinLat, bounds.MinLon, bounds.MaxLat, bounds.MaxLon)
	if dims.MinDimension() <= 0 {
		return nil, fmt.Errorf("footprint has no measurable extent: %+v", dims)
	}

	demZoom := geospatial.OptimalZoom(bounds.LatSpan(), bounds.LonSpan(), 512, s.cfg.MaxZoom)
	now := time.Now().UTC()
	d := domain.Diorama{
		ID:        uuid.NewString(),
		Name:      name,
		Bounds:    bounds,
		Shape:     shape,
		Settings:  set,
		CreatedAt: now,
		UpdatedAt: now,
	}

	snap, raw, err := s.buildSnapshot(ctx, &d, dims, demZoom, 0)
	if err != nil {
		return nil, fmt.Errorf("initial terrain build: %w", err)
	}
	snap.GridVersion, snap.MeshVersion, snap.ContourVersion = 1, 1, 1

	if err := s.repo.Create(ctx, &d); err != nil {
		return nil, fmt.Errorf("register diorama: %w", err)
	}

	pollCtx, cancel := context.WithCancel(context.Background())
	rt := &dioramaRuntime{
		diorama:  d,
		dims:     dims,
		snapshot: snap,
		rawGrid:  raw,
		lod:      NewLODController(s.cfg.LOD, demZoom),
		pending:  make(chan *LODDecision, 1),
		cancel:   cancel,
	}

	s.mu.Lock()
	s.runtimes[d.ID] = rt
	s.mu.Unlock()
	metrics.ActiveDioramas.Inc()

	s.wg.Add(2)
	go s.pollLOD(pollCtx, rt)
	go s.rebuildWorker(pollCtx, rt)

	s.publishAll(ctx, d.ID, snap)
	slog.Info("diorama created",
		"diorama", d.ID, "shape", shape, "dem_zoom", demZoom,
		"grid", fmt.Sprintf("%dx%d", snap.Grid.Width, snap.Grid.Height),
		"failed_tiles", snap.FailedTiles)
	return &d, nil
}

// buildSnapshot runs the full pipeline for one detail level: DEM
// composite, decode, cap, mesh, contours. lodCap further restricts the
// settings cap when the LOD controller asks for a coarser mesh. Versions
// are left zero; the caller assigns them at swap time.
func (s *DioramaService) buildSnapshot(ctx context.Context, d *domain.Diorama, dims geospatial.Dimensions, demZoom, lodCap int) (*TerrainSnapshot, *domain.ElevationGrid, error) {
	start := time.Now()

	raw, comp, err := s.composites.BuildElevationGrid(ctx, d.Bounds, demZoom, 0)
	if err != nil {
		return nil, nil, err
	}
	grid := raw.Downsample(effectiveCap(d.Settings.ResolutionCap, lodCap))

	mesh, err := s.meshes.Build(grid, d.Shape, d.Settings, dims)
	if err != nil {
		return nil, nil, fmt.Errorf("build mesh: %w", err)
	}
	contours, err := s.contours.Extract(grid, d.Shape, d.Settings)
	if err != nil {
		return nil, nil, fmt.Errorf("extract contours: %w", err)
	}

	metrics.RebuildsTotal.WithLabelValues("snapshot").Inc()
	metrics.RebuildDuration.WithLabelValues("snapshot").Observe(time.Since(start).Seconds())
	metrics.CompositeTiles.WithLabelValues(string(domain.LayerElevation)).Observe(float64(comp.TilesX * comp.TilesY))

	return &TerrainSnapshot{
		Grid:        grid,
		Mesh:        mesh,
		Contours:    contours,
		DemZoom:     demZoom,
		FailedTiles: comp.FailedTiles,
		BuiltAt:     time.Now().UTC(),
	}, raw, nil
}

func effectiveCap(settingsCap, lodCap int) int {
	cap := settingsCap
	if lodCap > 0 && (cap <= 0 || lodCap < cap) {
		cap = lodCap
	}
	return cap
}

// pollLOD is the per-diorama ticker loop: once per interval it feeds the
// stored camera distance to the LOD controller and queues any accepted
// transition for the rebuild worker, newest-wins.
func (s *DioramaService) pollLOD(ctx context.Context, rt *dioramaRuntime) {
	defer s.wg.Done()
	defer close(rt.pending)

	ticker := time.NewTicker(s.cfg.LOD.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		rt.mu.Lock()
		var dec *LODDecision
		if rt.cameraMeters > 0 {
			dec = rt.lod.Evaluate(rt.cameraMeters, rt.dims.MinDimension(), time.Now().UTC())
		}
		state := rt.lod.State()
		id := rt.diorama.ID
		rt.mu.Unlock()

		if dec == nil {
			continue
		}
		metrics.LODTransitions.Inc()
		_ = s.publisher.PublishLODChanged(ctx, id, state)
		slog.Info("lod transition accepted",
			"diorama", id, "dem_zoom", dec.DemZoom,
			"imagery_zoom", dec.ImageryZoom, "resolution_cap", dec.ResolutionCap)

		// Newest decision wins; an unconsumed older one is dropped.
		select {
		case rt.pending <- dec:
		default:
			select {
			case <-rt.pending:
			default:
			}
			rt.pending <- dec
		}
	}
}

// rebuildWorker serializes rebuilds for one diorama: at most one in
// flight, and results are discarded when their token went stale while
// they were building.
func (s *DioramaService) rebuildWorker(ctx context.Context, rt *dioramaRuntime) {
	defer s.wg.Done()
	for dec := range rt.pending {
		s.applyDecision(ctx, rt, dec)
	}
}

func (s *DioramaService) applyDecision(ctx context.Context, rt *dioramaRuntime, dec *LODDecision) {
	rt.mu.RLock()
	d := rt.diorama
	dims := rt.dims
	rt.mu.RUnlock()

	snap, raw, err := s.buildSnapshot(ctx, &d, dims, dec.DemZoom, dec.ResolutionCap)
	if err != nil {
		slog.Error("lod rebuild failed, keeping current snapshot",
			"diorama", d.ID, "dem_zoom", dec.DemZoom, "error", err)
		rt.mu.Lock()
		rt.lod.ConfirmApplied(dec.Token)
		rt.mu.Unlock()
		return
	}

	rt.mu.Lock()
	if !rt.lod.ConfirmApplied(dec.Token) {
		rt.mu.Unlock()
		metrics.RebuildsSuperseded.Inc()
		slog.Info("rebuild superseded, discarding", "diorama", d.ID, "dem_zoom", dec.DemZoom)
		return
	}
	prev := rt.snapshot
	snap.GridVersion = prev.GridVersion + 1
	snap.MeshVersion = prev.MeshVersion + 1
	snap.ContourVersion = prev.ContourVersion + 1
	rt.snapshot = snap
	rt.rawGrid = raw
	rt.mu.Unlock()

	s.publishAll(ctx, d.ID, snap)
	slog.Info("snapshot swapped",
		"diorama", d.ID, "dem_zoom", snap.DemZoom, "grid_version", snap.GridVersion)
}

func (s *DioramaService) publishAll(ctx context.Context, id string, snap *TerrainSnapshot) {
	_ = s.publisher.PublishGridUpdated(ctx, id, snap.GridVersion)
	_ = s.publisher.PublishMeshUpdated(ctx, id, snap.MeshVersion)
	_ = s.publisher.PublishContoursUpdated(ctx, id, snap.ContourVersion)
}

func (s *DioramaService) runtime(id string) *dioramaRuntime {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runtimes[id]
}

// Get returns the read model for one diorama, or (nil, nil) when unknown.
func (s *DioramaService) Get(ctx context.Context, id string) (*DioramaView, error) {
	rt := s.runtime(id)
	if rt == nil {
		return nil, nil
	}
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return &DioramaView{
		Diorama:        rt.diorama,
		Dimensions:     rt.dims,
		LOD:            rt.lod.State(),
		GridVersion:    rt.snapshot.GridVersion,
		MeshVersion:    rt.snapshot.MeshVersion,
		ContourVersion: rt.snapshot.ContourVersion,
		FailedTiles:    rt.snapshot.FailedTiles,
		BuiltAt:        rt.snapshot.BuiltAt,
	}, nil
}

// List returns all registered dioramas.
func (s *DioramaService) List(ctx context.Context) ([]domain.Diorama, error) {
	return s.repo.List(ctx)
}

// Snapshot returns the current immutable snapshot, or nil when unknown.
func (s *DioramaService) Snapshot(id string) *TerrainSnapshot {
	rt := s.runtime(id)
	if rt == nil {
		return nil
	}
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.snapshot
}

// ReportCamera stores a camera distance for the next LOD poll. unit is
// "meters" (default) or "plan"; plan units are converted against the
// footprint's smaller real dimension.
func (s *DioramaService) ReportCamera(ctx context.Context, id string, distance float64, unit string) error {
	if distance <= 0 {
		return fmt.Errorf("camera distance must be positive, got %v", distance)
	}
	rt := s.runtime(id)
	if rt == nil {
		return fmt.Errorf("unknown diorama %s", id)
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()
	switch unit {
	case "", "meters":
		rt.cameraMeters = distance
	case "plan":
		rt.cameraMeters = distance * rt.dims.MinDimension() / rt.diorama.Settings.PlanSize
	default:
		return fmt.Errorf("unknown distance unit %q", unit)
	}
	return nil
}

// UpdateSettings applies a partial settings change and rebuilds exactly
// the artifacts it invalidates: exaggeration or palette alone rebuild the
// mesh from the cached grid, contour tuning alone re-extracts contours,
// anything touching the grid resolution or footprint geometry rebuilds
// mesh and contours. Tiles are never re-fetched here; the raw grid from
// the last composite is the rebuild source.
func (s *DioramaService) UpdateSettings(ctx context.Context, id string, patch SettingsPatch) (*DioramaView, error) {
	rt := s.runtime(id)
	if rt == nil {
		return nil, nil
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()

	d := rt.diorama
	oldSet := d.Settings
	newSet := applyPatch(oldSet, patch)
	if patch.Name != nil {
		d.Name = *patch.Name
	}
	if patch.Shape != nil {
		shape, err := domain.ParseShapeKind(*patch.Shape)
		if err != nil {
			return nil, err
		}
		d.Shape = shape
	}
	if len(newSet.PaletteHex) > 0 {
		if _, err := domain.ParsePalette(newSet.PaletteHex); err != nil {
			return nil, fmt.Errorf("invalid palette: %w", err)
		}
	}
	d.Settings = newSet
	d.UpdatedAt = time.Now().UTC()

	shapeChanged := d.Shape != rt.diorama.Shape
	meshOnly := newSet.Exaggeration != oldSet.Exaggeration || !equalStrings(newSet.PaletteHex, oldSet.PaletteHex)
	contoursOnly := newSet.ContourInterval != oldSet.ContourInterval ||
		newSet.MajorEvery != oldSet.MajorEvery || newSet.MaxLabels != oldSet.MaxLabels
	geometry := shapeChanged ||
		newSet.PlanSize != oldSet.PlanSize ||
		newSet.BaseDepthPct != oldSet.BaseDepthPct ||
		newSet.ResolutionCap != oldSet.ResolutionCap ||
		newSet.EllipseSegments != oldSet.EllipseSegments

	prev := rt.snapshot
	next := *prev

	if geometry {
		start := time.Now()
		grid := rt.rawGrid.Downsample(effectiveCap(newSet.ResolutionCap, rt.lod.State().ResolutionCap))
		mesh, err := s.meshes.Build(grid, d.Shape, newSet, rt.dims)
		if err != nil {
			return nil, fmt.Errorf("rebuild mesh: %w", err)
		}
		contours, err := s.contours.Extract(grid, d.Shape, newSet)
		if err != nil {
			return nil, fmt.Errorf("rebuild contours: %w", err)
		}
		next.Grid = grid
		next.Mesh = mesh
		next.Contours = contours
		next.GridVersion++
		next.MeshVersion++
		next.ContourVersion++
		metrics.RebuildsTotal.WithLabelValues("geometry").Inc()
		metrics.RebuildDuration.WithLabelValues("geometry").Observe(time.Since(start).Seconds())
	} else {
		if meshOnly {
			start := time.Now()
			mesh, err := s.meshes.Build(prev.Grid, d.Shape, newSet, rt.dims)
			if err != nil {
				return nil, fmt.Errorf("rebuild mesh: %w", err)
			}
			next.Mesh = mesh
			next.MeshVersion++
			metrics.RebuildsTotal.WithLabelValues("mesh").Inc()
			metrics.RebuildDuration.WithLabelValues("mesh").Observe(time.Since(start).Seconds())
		}
		if contoursOnly {
			start := time.Now()
			contours, err := s.contours.Extract(prev.Grid, d.Shape, newSet)
			if err != nil {
				return nil, fmt.Errorf("rebuild contours: %w", err)
			}
			next.Contours = contours
			next.ContourVersion++
			metrics.RebuildsTotal.WithLabelValues("contours").Inc()
			metrics.RebuildDuration.WithLabelValues("contours").Observe(time.Since(start).Seconds())
		}
	}

	next.BuiltAt = time.Now().UTC()
	rt.diorama = d
	rt.snapshot = &next
	if err := s.repo.Update(ctx, &d); err != nil {
		return nil, fmt.Errorf("update diorama: %w", err)
	}

	if next.GridVersion != prev.GridVersion {
		_ = s.publisher.PublishGridUpdated(ctx, id, next.GridVersion)
	}
	if next.MeshVersion != prev.MeshVersion {
		_ = s.publisher.PublishMeshUpdated(ctx, id, next.MeshVersion)
	}
	if next.ContourVersion != prev.ContourVersion {
		_ = s.publisher.PublishContoursUpdated(ctx, id, next.ContourVersion)
	}

	return &DioramaView{
		Diorama:        d,
		Dimensions:     rt.dims,
		LOD:            rt.lod.State(),
		GridVersion:    next.GridVersion,
		MeshVersion:    next.MeshVersion,
		ContourVersion: next.ContourVersion,
		FailedTiles:    next.FailedTiles,
		BuiltAt:        next.BuiltAt,
	}, nil
}

// Delete stops the poller and drops the diorama. Idempotent: deleting an
// unknown ID reports false and does nothing.
func (s *DioramaService) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	rt, ok := s.runtimes[id]
	if ok {
		delete(s.runtimes, id)
	}
	s.mu.Unlock()
	if !ok {
		return false, nil
	}

	rt.cancel()
	metrics.ActiveDioramas.Dec()
	if err := s.repo.Delete(ctx, id); err != nil {
		return true, fmt.Errorf("delete diorama: %w", err)
	}
	slog.Info("diorama deleted", "diorama", id)
	return true, nil
}

// ElevationAt samples the current grid at a geographic coordinate.
func (s *DioramaService) ElevationAt(id string, lat, lon float64) (float64, error) {
	rt := s.runtime(id)
	if rt == nil {
		return 0, fmt.Errorf("unknown diorama %s", id)
	}
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	b := rt.diorama.Bounds
	if lat < b.MinLat || lat > b.MaxLat || lon < b.MinLon || lon > b.MaxLon {
		return 0, fmt.Errorf("point (%v, %v) outside bounds", lat, lon)
	}
	g := rt.snapshot.Grid
	row := (b.MaxLat - lat) / b.LatSpan() * float64(g.Height-1)
	col := (lon - b.MinLon) / b.LonSpan() * float64(g.Width-1)
	return g.Bilinear(row, col), nil
}

// Locate maps a plan-unit point back to geographic coordinates.
func (s *DioramaService) Locate(id string, x, y float64) (domain.GeoPoint, error) {
	rt := s.runtime(id)
	if rt == nil {
		return domain.GeoPoint{}, fmt.Errorf("unknown diorama %s", id)
	}
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	p, ok := rt.diorama.PlanToGeo(x, y)
	if !ok {
		return domain.GeoPoint{}, fmt.Errorf("plan point (%v, %v) outside footprint", x, y)
	}
	return p, nil
}

// Imagery composites the satellite layer for a diorama at the current
// imagery zoom. Built on demand, serialized per diorama; the tile cache
// keeps repeats cheap.
func (s *DioramaService) Imagery(ctx context.Context, id string) (*Composite, error) {
	rt := s.runtime(id)
	if rt == nil {
		return nil, fmt.Errorf("unknown diorama %s", id)
	}
	rt.mu.RLock()
	bounds := rt.diorama.Bounds
	zoom := rt.lod.State().ImageryZoom
	rt.mu.RUnlock()

	rt.imageryMu.Lock()
	defer rt.imageryMu.Unlock()
	comp, err := s.composites.BuildComposite(ctx, bounds, domain.LayerImagery, zoom)
	if err != nil {
		return nil, fmt.Errorf("composite imagery: %w", err)
	}
	metrics.CompositeTiles.WithLabelValues(string(domain.LayerImagery)).Observe(float64(comp.TilesX * comp.TilesY))
	return comp, nil
}

// Shutdown stops every poller and waits for in-flight rebuilds, bounded
// by ctx.
func (s *DioramaService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for _, rt := range s.runtimes {
		rt.cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
