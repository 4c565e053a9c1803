package usecases

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"log/slog"
	"math"
	"sync"

	"github.com/tbuseth/maquette/internal/core/domain"
	"github.com/tbuseth/maquette/internal/core/ports"
	"github.com/tbuseth/maquette/internal/pkg/geospatial"
	"github.com/tbuseth/maquette/internal/pkg/terrarium"
)

// maxMosaicTiles bounds how many tiles one composite may cover. A sane
// bounds/zoom pairing stays far below this; hitting it means the caller
// asked for a zoom the footprint cannot afford.
const maxMosaicTiles = 256

// Composite is one stitched tile mosaic plus the sub-pixel window that
// maps it back to the requested bounds. Image is tile-aligned and larger
// than the bounds; Crop locates the exact geographic footprint inside it
// in fractional mosaic pixels.
type Composite struct {
	Image   *image.RGBA
	Layer   domain.TileLayer
	Zoom    int
	TileMin domain.TileIndex
	TilesX  int
	TilesY  int

	CropX float64
	CropY float64
	CropW float64
	CropH float64

	FailedTiles int
}

// CropRect returns the integer pixel rectangle covering the sub-pixel
// crop window, clamped to the mosaic.
func (c *Composite) CropRect() image.Rectangle {
	r := image.Rect(
		int(math.Floor(c.CropX)),
		int(math.Floor(c.CropY)),
		int(math.Ceil(c.CropX+c.CropW)),
		int(math.Ceil(c.CropY+c.CropH)),
	)
	return r.Intersect(c.Image.Bounds())
}

// CompositeService stitches raster tiles into bounds-aligned mosaics.
type CompositeService struct {
	tiles       ports.TileSource
	concurrency int
}

// NewCompositeService creates a new CompositeService. concurrency bounds
// the number of tile fetches in flight per composite.
func NewCompositeService(tiles ports.TileSource, concurrency int) *CompositeService {
	if concurrency <= 0 {
		concurrency = 8
	}
	return &CompositeService{tiles: tiles, concurrency: concurrency}
}

// BuildComposite fetches every tile covering bounds at the given zoom,
// concurrently, and stitches them into one mosaic. Individual tile
// failures leave their slot blank (zero pixels, which decode to the
// no-data elevation) and are only counted; the mosaic is still returned.
// A cancelled context is the one failure that aborts the whole build.
func (s *CompositeService) BuildComposite(ctx context.Context, bounds domain.Bounds, layer domain.TileLayer, zoom int) (*Composite, error) {
	txMin, tyMin := geospatial.TileForGeo(bounds.MaxLat, bounds.MinLon, zoom)
	txMax, tyMax := geospatial.TileForGeo(bounds.MinLat, bounds.MaxLon, zoom)

	tilesX := txMax - txMin + 1
	tilesY := tyMax - tyMin + 1
	if tilesX*tilesY > maxMosaicTiles {
		return nil, fmt.Errorf("tile range %dx%d at z%d exceeds mosaic budget of %d tiles", tilesX, tilesY, zoom, maxMosaicTiles)
	}

	mosaic := image.NewRGBA(image.Rect(0, 0, tilesX*geospatial.TileSize, tilesY*geospatial.TileSize))

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed int
	)
	sem := make(chan struct{}, s.concurrency)

	for ty := tyMin; ty <= tyMax; ty++ {
		for tx := txMin; tx <= txMax; tx++ {
			wg.Add(1)
			sem <- struct{}{}
			go func(tx, ty int) {
				defer wg.Done()
				defer func() { <-sem }()

				idx := domain.TileIndex{X: tx, Y: ty, Z: zoom}
				img, err := s.fetchDecoded(ctx, layer, idx)
				if err != nil {
					slog.Warn("tile fetch failed, leaving slot blank",
						"layer", layer, "tile", idx.String(), "error", err)
					mu.Lock()
					failed++
					mu.Unlock()
					return
				}

				// Slots are disjoint pixel ranges, safe to draw concurrently.
				origin := image.Pt((tx-txMin)*geospatial.TileSize, (ty-tyMin)*geospatial.TileSize)
				slot := image.Rectangle{Min: origin, Max: origin.Add(image.Pt(geospatial.TileSize, geospatial.TileSize))}
				draw.Draw(mosaic, slot, img, img.Bounds().Min, draw.Src)
			}(tx, ty)
		}
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	nwPx, nwPy := geospatial.PixelForGeo(bounds.MaxLat, bounds.MinLon, zoom)
	sePx, sePy := geospatial.PixelForGeo(bounds.MinLat, bounds.MaxLon, zoom)

	c := &Composite{
		Image:       mosaic,
		Layer:       layer,
		Zoom:        zoom,
		TileMin:     domain.TileIndex{X: txMin, Y: tyMin, Z: zoom},
		TilesX:      tilesX,
		TilesY:      tilesY,
		CropX:       nwPx - float64(txMin)*geospatial.TileSize,
		CropY:       nwPy - float64(tyMin)*geospatial.TileSize,
		CropW:       sePx - nwPx,
		CropH:       sePy - nwPy,
		FailedTiles: failed,
	}
	if failed > 0 {
		slog.Warn("composite finished with blank slots",
			"layer", layer, "zoom", zoom, "failed", failed, "total", tilesX*tilesY)
	}
	return c, nil
}

// BuildElevationGrid composites DEM tiles for bounds, decodes the crop
// window into meters, and caps the grid resolution. The composite is
// returned alongside the grid for callers that also want the raster.
func (s *CompositeService) BuildElevationGrid(ctx context.Context, bounds domain.Bounds, zoom, resolutionCap int) (*domain.ElevationGrid, *Composite, error) {
	comp, err := s.BuildComposite(ctx, bounds, domain.LayerElevation, zoom)
	if err != nil {
		return nil, nil, fmt.Errorf("composite dem: %w", err)
	}

	rect := comp.CropRect()
	if rect.Empty() {
		return nil, nil, fmt.Errorf("crop window %v is empty at z%d", rect, zoom)
	}

	values := terrarium.GridFromRGBA(comp.Image, rect)
	grid := domain.NewElevationGrid(rect.Dx(), rect.Dy(), values)
	if resolutionCap > 0 {
		grid = grid.Downsample(resolutionCap)
	}
	return grid, comp, nil
}

func (s *CompositeService) fetchDecoded(ctx context.Context, layer domain.TileLayer, idx domain.TileIndex) (image.Image, error) {
	raw, err := s.tiles.FetchTile(ctx, layer, idx)
	if err != nil {
		return nil, err
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode tile %s: %w", idx.String(), err)
	}
	return img, nil
}
