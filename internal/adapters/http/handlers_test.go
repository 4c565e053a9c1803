package http_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	handler "github.com/tbuseth/maquette/internal/adapters/http"
	"github.com/tbuseth/maquette/internal/core/domain"
	"github.com/tbuseth/maquette/internal/core/usecases"
	"github.com/tbuseth/maquette/internal/pkg/terrarium"
)

// Phu Kradueng footprint, same fixture the usecase tests build against:
// a 6-tile z12 mosaic with a 487x386 px crop window.
const (
	fixMinLat = 16.828773
	fixMinLon = 101.676558
	fixMaxLat = 16.955233
	fixMaxLon = 101.843331
)

// ---- Fakes behind the real DioramaService ----

type flatTileSource struct {
	mu    sync.Mutex
	calls int
}

func (s *flatTileSource) FetchTile(ctx context.Context, layer domain.TileLayer, tile domain.TileIndex) ([]byte, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	img := image.NewRGBA(image.Rect(0, 0, 256, 256))
	r, g, b := terrarium.Encode(100)
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = r, g, b, 255
	}
	buf := &bytes.Buffer{}
	if err := png.Encode(buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type memDioramaRepo struct {
	mu    sync.Mutex
	store map[string]domain.Diorama
}

func (r *memDioramaRepo) Create(ctx context.Context, d *domain.Diorama) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store[d.ID] = *d
	return nil
}

func (r *memDioramaRepo) GetByID(ctx context.Context, id string) (*domain.Diorama, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.store[id]; ok {
		return &d, nil
	}
	return nil, nil
}

func (r *memDioramaRepo) List(ctx context.Context) ([]domain.Diorama, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Diorama, 0, len(r.store))
	for _, d := range r.store {
		out = append(out, d)
	}
	return out, nil
}

func (r *memDioramaRepo) Update(ctx context.Context, d *domain.Diorama) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store[d.ID] = *d
	return nil
}

func (r *memDioramaRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.store, id)
	return nil
}

type noopPublisher struct{}

func (noopPublisher) PublishGridUpdated(ctx context.Context, id string, v uint64) error     { return nil }
func (noopPublisher) PublishMeshUpdated(ctx context.Context, id string, v uint64) error     { return nil }
func (noopPublisher) PublishContoursUpdated(ctx context.Context, id string, v uint64) error { return nil }
func (noopPublisher) PublishLODChanged(ctx context.Context, id string, st domain.LODState) error {
	return nil
}

// ---- Test helpers ----

func engineConfig() usecases.DioramaConfig {
	return usecases.DioramaConfig{
		PlanSize:        200,
		BaseDepthPct:    10,
		Exaggeration:    1,
		ResolutionCap:   64,
		ContourInterval: 50,
		MajorEvery:      5,
		MaxLabels:       24,
		EllipseSegments: 32,
		MaxZoom:         15,
		ImageryMaxZoom:  19,
		LOD: usecases.LODConfig{
			// Pollers stay idle for the lifetime of a handler test.
			PollInterval:     time.Hour,
			HysteresisLevels: 2,
			MinZoom:          8,
			MaxDemZoom:       15,
			MaxImageryZoom:   19,
		},
	}
}

func makeDeps(t *testing.T) *handler.Dependencies {
	t.Helper()
	svc := usecases.NewDioramaService(
		&memDioramaRepo{store: map[string]domain.Diorama{}},
		usecases.NewCompositeService(&flatTileSource{}, 4),
		usecases.NewMeshService(),
		usecases.NewContourService(),
		noopPublisher{},
		engineConfig(),
	)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := svc.Shutdown(ctx); err != nil {
			t.Errorf("shutdown: %v", err)
		}
	})
	return &handler.Dependencies{Dioramas: svc}
}

func setupApp(deps *handler.Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	handler.SetupRoutes(app, deps)
	return app
}

func createDiorama(t *testing.T, deps *handler.Dependencies) *domain.Diorama {
	t.Helper()
	b, err := domain.NewBounds(fixMinLat, fixMinLon, fixMaxLat, fixMaxLon)
	if err != nil {
		t.Fatalf("fixture bounds: %v", err)
	}
	d, err := deps.Dioramas.Create(context.Background(), "Phu Kradueng", b, domain.ShapeRectangle, usecases.SettingsPatch{})
	if err != nil {
		t.Fatalf("create fixture diorama: %v", err)
	}
	return d
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// ---- Create handler tests ----

func TestCreateDiorama_Success(t *testing.T) {
	deps := makeDeps(t)
	app := setupApp(deps)

	body := `{
		"name": "Phu Kradueng",
		"bounds": {"min_lat": 16.828773, "min_lon": 101.676558, "max_lat": 16.955233, "max_lon": 101.843331},
		"shape": "rectangle"
	}`
	resp, err := app.Test(jsonRequest("POST", "/v1/dioramas", body), -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 201 {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var d domain.Diorama
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		t.Fatal(err)
	}
	if d.ID == "" {
		t.Error("created diorama has no ID")
	}
	if d.Name != "Phu Kradueng" {
		t.Errorf("name = %q", d.Name)
	}
	if d.Settings.PlanSize != 200 || d.Settings.ResolutionCap != 64 {
		t.Errorf("settings = %+v, want engine defaults", d.Settings)
	}

	// Creation is synchronous: the snapshot must be servable immediately.
	if snap := deps.Dioramas.Snapshot(d.ID); snap == nil || snap.GridVersion != 1 {
		t.Error("expected a version-1 snapshot right after create")
	}
}

func TestCreateDiorama_SettingsOverride(t *testing.T) {
	deps := makeDeps(t)
	app := setupApp(deps)

	body := `{
		"bounds": {"min_lat": 16.828773, "min_lon": 101.676558, "max_lat": 16.955233, "max_lon": 101.843331},
		"shape": "ellipse",
		"settings": {"contour_interval": 25, "exaggeration": 1.5}
	}`
	resp, _ := app.Test(jsonRequest("POST", "/v1/dioramas", body), -1)
	if resp.StatusCode != 201 {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var d domain.Diorama
	json.NewDecoder(resp.Body).Decode(&d)
	if d.Shape != domain.ShapeEllipse {
		t.Errorf("shape = %v, want ellipse", d.Shape)
	}
	if d.Settings.ContourInterval != 25 || d.Settings.Exaggeration != 1.5 {
		t.Errorf("settings = %+v, want overrides applied", d.Settings)
	}
	if d.Settings.PlanSize != 200 {
		t.Errorf("plan size = %v, untouched fields must keep defaults", d.Settings.PlanSize)
	}
}

func TestCreateDiorama_InvalidJSON(t *testing.T) {
	app := setupApp(makeDeps(t))

	resp, _ := app.Test(jsonRequest("POST", "/v1/dioramas", "{not json"), -1)
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	var apiErr struct {
		Status int    `json:"status"`
		Code   string `json:"code"`
	}
	json.NewDecoder(resp.Body).Decode(&apiErr)
	if apiErr.Code != "bad_request" {
		t.Errorf("expected bad_request error, got %s", apiErr.Code)
	}
}

func TestCreateDiorama_SwappedBounds(t *testing.T) {
	app := setupApp(makeDeps(t))

	body := `{"bounds": {"min_lat": 17, "min_lon": 101, "max_lat": 16, "max_lon": 102}}`
	resp, _ := app.Test(jsonRequest("POST", "/v1/dioramas", body), -1)
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestCreateDiorama_UnknownShape(t *testing.T) {
	app := setupApp(makeDeps(t))

	body := `{
		"bounds": {"min_lat": 16.828773, "min_lon": 101.676558, "max_lat": 16.955233, "max_lon": 101.843331},
		"shape": "hexagon"
	}`
	resp, _ := app.Test(jsonRequest("POST", "/v1/dioramas", body), -1)
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

// ---- List handler tests ----

func TestListDioramas_Success(t *testing.T) {
	deps := makeDeps(t)
	createDiorama(t, deps)
	createDiorama(t, deps)
	app := setupApp(deps)

	req := httptest.NewRequest("GET", "/v1/dioramas", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Data       []domain.Diorama `json:"data"`
		Pagination struct {
			Total int `json:"total"`
		} `json:"pagination"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if result.Pagination.Total != 2 {
		t.Errorf("expected total 2, got %d", result.Pagination.Total)
	}
	if len(result.Data) != 2 {
		t.Errorf("expected 2 dioramas, got %d", len(result.Data))
	}
}

func TestListDioramas_Pagination(t *testing.T) {
	deps := makeDeps(t)
	for i := 0; i < 5; i++ {
		createDiorama(t, deps)
	}
	app := setupApp(deps)

	req := httptest.NewRequest("GET", "/v1/dioramas?offset=2&limit=2", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Data       []domain.Diorama `json:"data"`
		Pagination struct {
			Offset int `json:"offset"`
			Limit  int `json:"limit"`
			Total  int `json:"total"`
		} `json:"pagination"`
	}
	json.NewDecoder(resp.Body).Decode(&result)
	if result.Pagination.Total != 5 {
		t.Errorf("expected total 5, got %d", result.Pagination.Total)
	}
	if len(result.Data) != 2 {
		t.Errorf("expected 2 dioramas in page, got %d", len(result.Data))
	}
	if result.Pagination.Offset != 2 {
		t.Errorf("expected offset 2, got %d", result.Pagination.Offset)
	}
}

func TestListDioramas_LinkHeader(t *testing.T) {
	deps := makeDeps(t)
	for i := 0; i < 5; i++ {
		createDiorama(t, deps)
	}
	app := setupApp(deps)

	req := httptest.NewRequest("GET", "/v1/dioramas?offset=0&limit=2", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	link := resp.Header.Get("Link")
	if link == "" {
		t.Fatal("expected Link header, got empty")
	}
	if !strings.Contains(link, `rel="next"`) {
		t.Errorf("expected next link, got %s", link)
	}
	if !strings.Contains(link, `rel="first"`) {
		t.Errorf("expected first link, got %s", link)
	}
	if !strings.Contains(link, `rel="last"`) {
		t.Errorf("expected last link, got %s", link)
	}
}

// ---- Get / update / delete handler tests ----

func TestGetDiorama_Success(t *testing.T) {
	deps := makeDeps(t)
	d := createDiorama(t, deps)
	app := setupApp(deps)

	req := httptest.NewRequest("GET", "/v1/dioramas/"+d.ID, nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var view usecases.DioramaView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		t.Fatal(err)
	}
	if view.Diorama.ID != d.ID {
		t.Errorf("view id = %s, want %s", view.Diorama.ID, d.ID)
	}
	if view.GridVersion != 1 || view.MeshVersion != 1 || view.ContourVersion != 1 {
		t.Errorf("versions = %d/%d/%d, want 1/1/1",
			view.GridVersion, view.MeshVersion, view.ContourVersion)
	}
	if view.LOD.DemZoom != 12 {
		t.Errorf("dem zoom = %d, want 12 for this footprint", view.LOD.DemZoom)
	}
	if view.Dimensions.WidthMeters <= 0 || view.Dimensions.HeightMeters <= 0 {
		t.Errorf("dimensions = %+v, want positive extents", view.Dimensions)
	}
}

func TestGetDiorama_NotFound(t *testing.T) {
	app := setupApp(makeDeps(t))

	req := httptest.NewRequest("GET", "/v1/dioramas/nonexistent-id", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 404 {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}

	var apiErr struct {
		Code string `json:"code"`
	}
	json.NewDecoder(resp.Body).Decode(&apiErr)
	if apiErr.Code != "not_found" {
		t.Errorf("expected not_found error, got %s", apiErr.Code)
	}
}

func TestUpdateDiorama_MeshOnlyRebuild(t *testing.T) {
	deps := makeDeps(t)
	d := createDiorama(t, deps)
	app := setupApp(deps)

	resp, _ := app.Test(jsonRequest("PATCH", "/v1/dioramas/"+d.ID, `{"exaggeration": 2}`), -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var view usecases.DioramaView
	json.NewDecoder(resp.Body).Decode(&view)
	if view.MeshVersion != 2 || view.GridVersion != 1 || view.ContourVersion != 1 {
		t.Errorf("versions = %d/%d/%d, want grid 1 mesh 2 contours 1",
			view.GridVersion, view.MeshVersion, view.ContourVersion)
	}
	if view.Diorama.Settings.Exaggeration != 2 {
		t.Errorf("exaggeration = %v, want 2", view.Diorama.Settings.Exaggeration)
	}
}

func TestUpdateDiorama_NotFound(t *testing.T) {
	app := setupApp(makeDeps(t))

	resp, _ := app.Test(jsonRequest("PATCH", "/v1/dioramas/nope", `{"name": "renamed"}`), -1)
	if resp.StatusCode != 404 {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestUpdateDiorama_BadShape(t *testing.T) {
	deps := makeDeps(t)
	d := createDiorama(t, deps)
	app := setupApp(deps)

	resp, _ := app.Test(jsonRequest("PATCH", "/v1/dioramas/"+d.ID, `{"shape": "hexagon"}`), -1)
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestDeleteDiorama(t *testing.T) {
	deps := makeDeps(t)
	d := createDiorama(t, deps)
	app := setupApp(deps)

	req := httptest.NewRequest("DELETE", "/v1/dioramas/"+d.ID, nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 204 {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}

	// Idempotent from the client's view but the second delete is a miss.
	resp, _ = app.Test(httptest.NewRequest("DELETE", "/v1/dioramas/"+d.ID, nil), -1)
	if resp.StatusCode != 404 {
		t.Fatalf("expected 404 on repeat delete, got %d", resp.StatusCode)
	}
}

// ---- Camera handler tests ----

func TestReportCamera_Accepted(t *testing.T) {
	deps := makeDeps(t)
	d := createDiorama(t, deps)
	app := setupApp(deps)

	resp, _ := app.Test(jsonRequest("POST", "/v1/dioramas/"+d.ID+"/camera", `{"distance": 5000}`), -1)
	if resp.StatusCode != 202 {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	var result struct {
		Status string `json:"status"`
	}
	json.NewDecoder(resp.Body).Decode(&result)
	if result.Status != "accepted" {
		t.Errorf("status = %q, want accepted", result.Status)
	}
}

func TestReportCamera_BadDistance(t *testing.T) {
	deps := makeDeps(t)
	d := createDiorama(t, deps)
	app := setupApp(deps)

	resp, _ := app.Test(jsonRequest("POST", "/v1/dioramas/"+d.ID+"/camera", `{"distance": 0}`), -1)
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	resp, _ = app.Test(jsonRequest("POST", "/v1/dioramas/"+d.ID+"/camera", `{"distance": 100, "unit": "furlongs"}`), -1)
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400 for unknown unit, got %d", resp.StatusCode)
	}
}

func TestReportCamera_UnknownDiorama(t *testing.T) {
	app := setupApp(makeDeps(t))

	resp, _ := app.Test(jsonRequest("POST", "/v1/dioramas/nope/camera", `{"distance": 100}`), -1)
	if resp.StatusCode != 404 {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

// ---- Terrain artifact handler tests ----

func TestGrid_JSON(t *testing.T) {
	deps := makeDeps(t)
	d := createDiorama(t, deps)
	app := setupApp(deps)

	req := httptest.NewRequest("GET", "/v1/dioramas/"+d.ID+"/grid", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if v := resp.Header.Get("X-Maquette-Grid-Version"); v != "1" {
		t.Errorf("grid version header = %q, want 1", v)
	}

	var result struct {
		Grid    domain.ElevationGrid `json:"grid"`
		Version uint64               `json:"version"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if result.Grid.Width != 64 || result.Grid.Height != 64 {
		t.Errorf("grid = %dx%d, want capped 64x64", result.Grid.Width, result.Grid.Height)
	}
	if result.Version != 1 {
		t.Errorf("version = %d, want 1", result.Version)
	}
}

func TestGrid_Binary(t *testing.T) {
	deps := makeDeps(t)
	d := createDiorama(t, deps)
	app := setupApp(deps)

	req := httptest.NewRequest("GET", "/v1/dioramas/"+d.ID+"/grid?format=bin", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/octet-stream" {
		t.Errorf("content type = %q", ct)
	}

	body, _ := io.ReadAll(resp.Body)
	// u32 width, u32 height, f32 min, f32 max, then 64x64 f32 samples.
	if want := 16 + 64*64*4; len(body) != want {
		t.Fatalf("frame length = %d, want %d", len(body), want)
	}
	if w := binary.LittleEndian.Uint32(body[0:4]); w != 64 {
		t.Errorf("frame width = %d, want 64", w)
	}
}

func TestGrid_UnknownDiorama(t *testing.T) {
	app := setupApp(makeDeps(t))

	req := httptest.NewRequest("GET", "/v1/dioramas/nope/grid", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 404 {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestMesh_Binary(t *testing.T) {
	deps := makeDeps(t)
	d := createDiorama(t, deps)
	app := setupApp(deps)

	req := httptest.NewRequest("GET", "/v1/dioramas/"+d.ID+"/mesh?format=bin", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if v := resp.Header.Get("X-Maquette-Mesh-Version"); v != "1" {
		t.Errorf("mesh version header = %q, want 1", v)
	}

	body, _ := io.ReadAll(resp.Body)
	if len(body) < 4 || string(body[:4]) != "MQTM" {
		t.Fatalf("frame does not start with the MQTM magic")
	}
	mesh, err := usecases.DecodeMesh(body)
	if err != nil {
		t.Fatalf("decode mesh frame: %v", err)
	}
	if mesh.VertexCount() != 64*64 {
		t.Errorf("mesh vertices = %d, want %d", mesh.VertexCount(), 64*64)
	}
}

func TestContours_JSON(t *testing.T) {
	deps := makeDeps(t)
	d := createDiorama(t, deps)
	app := setupApp(deps)

	req := httptest.NewRequest("GET", "/v1/dioramas/"+d.ID+"/contours", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if v := resp.Header.Get("X-Maquette-Contour-Version"); v != "1" {
		t.Errorf("contour version header = %q, want 1", v)
	}

	var result struct {
		Contours domain.ContourSet `json:"contours"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if result.Contours.Interval != 50 {
		t.Errorf("interval = %v, want 50", result.Contours.Interval)
	}
}

func TestContours_GeoJSON(t *testing.T) {
	deps := makeDeps(t)
	d := createDiorama(t, deps)
	app := setupApp(deps)

	req := httptest.NewRequest("GET", "/v1/dioramas/"+d.ID+"/contours?format=geojson", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/geo+json") {
		t.Errorf("content type = %q", ct)
	}

	var fc struct {
		Type     string            `json:"type"`
		Features []json.RawMessage `json:"features"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&fc); err != nil {
		t.Fatal(err)
	}
	if fc.Type != "FeatureCollection" {
		t.Errorf("type = %q, want FeatureCollection", fc.Type)
	}
}

func TestImagery_PNG(t *testing.T) {
	deps := makeDeps(t)
	d := createDiorama(t, deps)
	app := setupApp(deps)

	req := httptest.NewRequest("GET", "/v1/dioramas/"+d.ID+"/imagery", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("content type = %q", ct)
	}
	if z := resp.Header.Get("X-Maquette-Zoom"); z != "14" {
		t.Errorf("zoom header = %q, want dem+2", z)
	}
	if resp.Header.Get("X-Maquette-Crop-W") == "" {
		t.Error("missing crop window headers")
	}

	img, err := png.Decode(resp.Body)
	if err != nil {
		t.Fatalf("decode mosaic: %v", err)
	}
	if img.Bounds().Dx()%256 != 0 || img.Bounds().Dy()%256 != 0 {
		t.Errorf("mosaic %v is not tile aligned", img.Bounds())
	}
}

func TestPreview_PNG(t *testing.T) {
	deps := makeDeps(t)
	d := createDiorama(t, deps)
	app := setupApp(deps)

	req := httptest.NewRequest("GET", "/v1/dioramas/"+d.ID+"/preview.png", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("content type = %q", ct)
	}

	img, err := png.Decode(resp.Body)
	if err != nil {
		t.Fatalf("decode preview: %v", err)
	}
	if img.Bounds().Dx() != 512 || img.Bounds().Dy() != 512 {
		t.Errorf("preview %v, want 512x512", img.Bounds())
	}
}

// ---- Point query handler tests ----

func TestElevation_Success(t *testing.T) {
	deps := makeDeps(t)
	d := createDiorama(t, deps)
	app := setupApp(deps)

	// Anywhere inside the footprint samples the uniform fixture.
	target := "/v1/dioramas/" + d.ID + "/elevation?lat=16.892&lon=101.76"
	resp, _ := app.Test(httptest.NewRequest("GET", target, nil), -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Elevation float64 `json:"elevation"`
		Unit      string  `json:"unit"`
	}
	json.NewDecoder(resp.Body).Decode(&result)
	if math.Abs(result.Elevation-100) > 1e-9 {
		t.Errorf("elevation = %v, want the uniform 100 m fixture", result.Elevation)
	}
	if result.Unit != "meters" {
		t.Errorf("unit = %q, want meters", result.Unit)
	}
}

func TestElevation_MissingParams(t *testing.T) {
	deps := makeDeps(t)
	d := createDiorama(t, deps)
	app := setupApp(deps)

	req := httptest.NewRequest("GET", "/v1/dioramas/"+d.ID+"/elevation?lat=16.9", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestElevation_OutsideBounds(t *testing.T) {
	deps := makeDeps(t)
	d := createDiorama(t, deps)
	app := setupApp(deps)

	req := httptest.NewRequest("GET", "/v1/dioramas/"+d.ID+"/elevation?lat=40.0&lon=101.7", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestElevation_UnknownDiorama(t *testing.T) {
	app := setupApp(makeDeps(t))

	req := httptest.NewRequest("GET", "/v1/dioramas/nope/elevation?lat=16.9&lon=101.7", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 404 {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestLocate_Center(t *testing.T) {
	deps := makeDeps(t)
	d := createDiorama(t, deps)
	app := setupApp(deps)

	req := httptest.NewRequest("GET", "/v1/dioramas/"+d.ID+"/locate?x=0&y=0", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	}
	json.NewDecoder(resp.Body).Decode(&result)
	if math.Abs(result.Lat-(fixMinLat+fixMaxLat)/2) > 1e-9 {
		t.Errorf("lat = %v, want bounds center", result.Lat)
	}
	if math.Abs(result.Lon-(fixMinLon+fixMaxLon)/2) > 1e-9 {
		t.Errorf("lon = %v, want bounds center", result.Lon)
	}
}

func TestLocate_OutsideFootprint(t *testing.T) {
	deps := makeDeps(t)
	d := createDiorama(t, deps)
	app := setupApp(deps)

	// The plan square is 200 units wide; x=150 is past the +100 edge.
	req := httptest.NewRequest("GET", "/v1/dioramas/"+d.ID+"/locate?x=150&y=0", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

// ---- GraphQL handler tests ----

func TestGraphQL_Dioramas(t *testing.T) {
	deps := makeDeps(t)
	d := createDiorama(t, deps)
	app := setupApp(deps)

	resp, _ := app.Test(jsonRequest("POST", "/graphql", `{"query": "{ dioramas { id name } }"}`), -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Data struct {
			Dioramas []struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			} `json:"dioramas"`
		} `json:"data"`
		Errors []any `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if len(result.Errors) > 0 {
		t.Fatalf("graphql errors: %v", result.Errors)
	}
	if len(result.Data.Dioramas) != 1 || result.Data.Dioramas[0].ID != d.ID {
		t.Errorf("dioramas = %+v, want the fixture", result.Data.Dioramas)
	}
}

func TestGraphQL_ElevationAt(t *testing.T) {
	deps := makeDeps(t)
	d := createDiorama(t, deps)
	app := setupApp(deps)

	query := `{"query": "query($id: String!, $lat: Float!, $lon: Float!) { elevationAt(id: $id, lat: $lat, lon: $lon) }",
		"variables": {"id": "` + d.ID + `", "lat": 16.892, "lon": 101.76}}`
	resp, _ := app.Test(jsonRequest("POST", "/graphql", query), -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Data struct {
			ElevationAt float64 `json:"elevationAt"`
		} `json:"data"`
		Errors []any `json:"errors"`
	}
	json.NewDecoder(resp.Body).Decode(&result)
	if len(result.Errors) > 0 {
		t.Fatalf("graphql errors: %v", result.Errors)
	}
	if math.Abs(result.Data.ElevationAt-100) > 1e-9 {
		t.Errorf("elevationAt = %v, want 100", result.Data.ElevationAt)
	}
}

// ---- Health handler tests ----

func TestHealth_Returns200(t *testing.T) {
	app := setupApp(makeDeps(t))

	req := httptest.NewRequest("GET", "/v1/health", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&result)
	if result["status"] != "healthy" {
		t.Errorf("expected healthy status, got %v", result["status"])
	}
}

func TestReady_NoBackends(t *testing.T) {
	// NATS, valkey and the disk cache are all optional; an instance
	// running without them is still ready to serve.
	app := setupApp(makeDeps(t))

	req := httptest.NewRequest("GET", "/v1/ready", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	json.NewDecoder(resp.Body).Decode(&result)
	if result.Status != "ready" {
		t.Errorf("status = %q, want ready", result.Status)
	}
	if result.Checks["nats"] != "not configured" {
		t.Errorf("nats check = %q, want not configured", result.Checks["nats"])
	}
}

// ---- Middleware header tests ----

func TestAPIVersionHeader(t *testing.T) {
	app := setupApp(makeDeps(t))

	req := httptest.NewRequest("GET", "/v1/health", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	v := resp.Header.Get("X-API-Version")
	if v != "1.0.0" {
		t.Errorf("expected X-API-Version 1.0.0, got %q", v)
	}
}

func TestGrid_CacheControlHeader(t *testing.T) {
	deps := makeDeps(t)
	d := createDiorama(t, deps)
	app := setupApp(deps)

	req := httptest.NewRequest("GET", "/v1/dioramas/"+d.ID+"/grid", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	cc := resp.Header.Get("Cache-Control")
	if cc != "public, max-age=30" {
		t.Errorf("expected Cache-Control header, got %q", cc)
	}
}

// TestAccessLogMiddleware verifies structured access logging is emitted.
func TestAccessLogMiddleware(t *testing.T) {
	app := fiber.New()

	// Register middleware
	app.Use(handler.AccessLogMiddleware())

	// Simple test route
	app.Get("/test", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
	})

	// Make request
	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-Request-ID", "test-req-123")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	// Verify response body
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "ok") {
		t.Errorf("expected response body to contain 'ok', got %s", string(body))
	}
}
