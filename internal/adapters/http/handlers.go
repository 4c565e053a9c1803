package http

import (
	"bytes"
	"image/png"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/tbuseth/maquette/internal/core/domain"
	"github.com/tbuseth/maquette/internal/core/usecases"
)

// createDioramaRequest is the POST /v1/dioramas payload. Settings follow
// SettingsPatch semantics: absent fields take the configured defaults.
type createDioramaRequest struct {
	Name   string `json:"name"`
	Bounds struct {
		MinLat float64 `json:"min_lat"`
		MinLon float64 `json:"min_lon"`
		MaxLat float64 `json:"max_lat"`
		MaxLon float64 `json:"max_lon"`
	} `json:"bounds"`
	Shape    string                 `json:"shape"`
	Settings usecases.SettingsPatch `json:"settings"`
}

// cameraReport is the POST /v1/dioramas/:id/camera payload.
type cameraReport struct {
	Distance float64 `json:"distance"`
	Unit     string  `json:"unit"` // "meters" (default) or "plan"
}

// CreateDioramaHandler builds a new diorama. The initial terrain snapshot
// is built synchronously, so a 201 means grid, mesh, and contours are
// already servable.
func CreateDioramaHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req createDioramaRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid JSON body")
		}

		bounds, err := domain.NewBounds(req.Bounds.MinLat, req.Bounds.MinLon, req.Bounds.MaxLat, req.Bounds.MaxLon)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		shape, err := domain.ParseShapeKind(req.Shape)
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		d, err := deps.Dioramas.Create(c.Context(), req.Name, bounds, shape, req.Settings)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		LoggerFromCtx(c.UserContext()).Info("diorama created", "id", d.ID, "shape", d.Shape)
		return c.Status(201).JSON(d)
	}
}

// ListDioramasHandler returns all registered dioramas.
func ListDioramasHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		dioramas, err := deps.Dioramas.List(c.Context())
		if err != nil {
			return errInternal(c, err.Error())
		}

		// Apply offset/limit pagination on the full list
		offset := c.QueryInt("offset", 0)
		limit := c.QueryInt("limit", 50)
		if offset < 0 {
			offset = 0
		}
		if limit <= 0 || limit > 200 {
			limit = 50
		}

		total := len(dioramas)
		if offset >= total {
			dioramas = nil
		} else {
			end := offset + limit
			if end > total {
				end = total
			}
			dioramas = dioramas[offset:end]
		}

		pg := Pagination{Offset: offset, Limit: limit, Total: total}
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: dioramas, Pagination: pg})
	}
}

// GetDioramaHandler returns one diorama's metadata, dimensions, LOD state
// and snapshot versions.
func GetDioramaHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "diorama id is required")
		}
		view, err := deps.Dioramas.Get(c.Context(), id)
		if err != nil {
			return errInternal(c, err.Error())
		}
		if view == nil {
			return errNotFound(c, "diorama not found")
		}
		return c.JSON(view)
	}
}

// UpdateDioramaHandler applies a partial settings change. The service
// rebuilds only the artifacts the change invalidates.
func UpdateDioramaHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "diorama id is required")
		}
		var patch usecases.SettingsPatch
		if err := c.BodyParser(&patch); err != nil {
			return errBadRequest(c, "invalid JSON body")
		}

		view, err := deps.Dioramas.UpdateSettings(c.Context(), id, patch)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		if view == nil {
			return errNotFound(c, "diorama not found")
		}
		return c.JSON(view)
	}
}

// DeleteDioramaHandler stops the diorama's LOD poller and drops it.
func DeleteDioramaHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "diorama id is required")
		}
		ok, err := deps.Dioramas.Delete(c.Context(), id)
		if err != nil {
			return errInternal(c, err.Error())
		}
		if !ok {
			return errNotFound(c, "diorama not found")
		}
		return c.SendStatus(204)
	}
}

// ReportCameraHandler stores a camera distance for the next LOD poll.
func ReportCameraHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "diorama id is required")
		}
		var req cameraReport
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid JSON body")
		}
		if deps.Dioramas.Snapshot(id) == nil {
			return errNotFound(c, "diorama not found")
		}
		if err := deps.Dioramas.ReportCamera(c.Context(), id, req.Distance, req.Unit); err != nil {
			return errBadRequest(c, err.Error())
		}
		return c.Status(202).JSON(fiber.Map{
			"status":   "accepted",
			"distance": req.Distance,
			"unit":     req.Unit,
		})
	}
}

// GridHandler serves the current elevation grid. format=bin streams the
// little-endian float32 raster frame; the default is JSON.
func GridHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		snap := deps.Dioramas.Snapshot(c.Params("id"))
		if snap == nil {
			return errNotFound(c, "diorama not found")
		}
		c.Set("X-Maquette-Grid-Version", strconv.FormatUint(snap.GridVersion, 10))

		if c.Query("format") == "bin" {
			c.Set("Content-Type", "application/octet-stream")
			return c.Send(usecases.EncodeGrid(snap.Grid))
		}
		return c.JSON(fiber.Map{
			"grid":    snap.Grid,
			"version": snap.GridVersion,
		})
	}
}

// MeshHandler serves the current heightfield mesh. format=bin streams the
// MQTM binary frame; the default is JSON.
func MeshHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		snap := deps.Dioramas.Snapshot(c.Params("id"))
		if snap == nil {
			return errNotFound(c, "diorama not found")
		}
		c.Set("X-Maquette-Mesh-Version", strconv.FormatUint(snap.MeshVersion, 10))

		if c.Query("format") == "bin" {
			c.Set("Content-Type", "application/octet-stream")
			return c.Send(usecases.EncodeMesh(snap.Mesh))
		}
		return c.JSON(fiber.Map{
			"mesh":    snap.Mesh,
			"version": snap.MeshVersion,
		})
	}
}

// ContoursHandler serves the current contour set. format=geojson exports
// a FeatureCollection in geographic coordinates; the default JSON keeps
// plan coordinates.
func ContoursHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		snap := deps.Dioramas.Snapshot(id)
		if snap == nil {
			return errNotFound(c, "diorama not found")
		}
		c.Set("X-Maquette-Contour-Version", strconv.FormatUint(snap.ContourVersion, 10))

		if c.Query("format") != "geojson" {
			return c.JSON(fiber.Map{
				"contours": snap.Contours,
				"version":  snap.ContourVersion,
			})
		}

		view, err := deps.Dioramas.Get(c.Context(), id)
		if err != nil || view == nil {
			return errNotFound(c, "diorama not found")
		}
		body, err := contoursToGeoJSON(&view.Diorama, snap.Contours)
		if err != nil {
			return errInternal(c, err.Error())
		}
		c.Set("Content-Type", "application/geo+json")
		return c.Send(body)
	}
}

// ImageryHandler composites the satellite layer at the current imagery
// zoom and returns the full tile-aligned mosaic as PNG. The sub-pixel
// crop window is carried in X-Maquette-Crop-* headers so the client can
// apply it as a texture transform without the server resampling pixels.
func ImageryHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if deps.Dioramas.Snapshot(id) == nil {
			return errNotFound(c, "diorama not found")
		}

		comp, err := deps.Dioramas.Imagery(c.Context(), id)
		if err != nil {
			return errUnavailable(c, err.Error())
		}

		var buf bytes.Buffer
		if err := png.Encode(&buf, comp.Image); err != nil {
			return errInternal(c, err.Error())
		}

		c.Set("X-Maquette-Zoom", strconv.Itoa(comp.Zoom))
		c.Set("X-Maquette-Crop-X", formatFloat(comp.CropX))
		c.Set("X-Maquette-Crop-Y", formatFloat(comp.CropY))
		c.Set("X-Maquette-Crop-W", formatFloat(comp.CropW))
		c.Set("X-Maquette-Crop-H", formatFloat(comp.CropH))
		c.Set("X-Maquette-Failed-Tiles", strconv.Itoa(comp.FailedTiles))
		c.Set("Content-Type", "image/png")
		c.Set("Cache-Control", "public, max-age=300")
		return c.Send(buf.Bytes())
	}
}

// ElevationHandler samples the current grid at a geographic coordinate.
func ElevationHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if c.Query("lat") == "" || c.Query("lon") == "" {
			return errBadRequest(c, "lat and lon are required")
		}
		lat := c.QueryFloat("lat", 0)
		lon := c.QueryFloat("lon", 0)

		if deps.Dioramas.Snapshot(id) == nil {
			return errNotFound(c, "diorama not found")
		}
		elev, err := deps.Dioramas.ElevationAt(id, lat, lon)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		return c.JSON(fiber.Map{
			"lat":       lat,
			"lon":       lon,
			"elevation": elev,
			"unit":      "meters",
		})
	}
}

// LocateHandler maps a plan-unit point back to geographic coordinates.
func LocateHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if c.Query("x") == "" || c.Query("y") == "" {
			return errBadRequest(c, "x and y are required")
		}
		x := c.QueryFloat("x", 0)
		y := c.QueryFloat("y", 0)

		if deps.Dioramas.Snapshot(id) == nil {
			return errNotFound(c, "diorama not found")
		}
		p, err := deps.Dioramas.Locate(id, x, y)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		return c.JSON(fiber.Map{
			"x":   x,
			"y":   y,
			"lat": p.Lat,
			"lon": p.Lon,
		})
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
