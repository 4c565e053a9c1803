package main

import (
	"context"
	"flag"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/tbuseth/maquette/internal/adapters/diskcache"
	"github.com/tbuseth/maquette/internal/adapters/tiles"
	"github.com/tbuseth/maquette/internal/adapters/valkey"
	"github.com/tbuseth/maquette/internal/core/domain"
	"github.com/tbuseth/maquette/internal/core/ports"
	"github.com/tbuseth/maquette/internal/core/usecases"
	"github.com/tbuseth/maquette/internal/pkg/config"
	"github.com/tbuseth/maquette/internal/pkg/geospatial"
)

// Prefetch walks the tile pyramid covering a bounds across a zoom span
// and pulls every tile through the same fetcher the API uses, so the
// cache tiers are warm before the first diorama is created.

func main() {
	var (
		minLat  = flag.Float64("min-lat", 0, "south edge of the bounds (degrees)")
		minLon  = flag.Float64("min-lon", 0, "west edge of the bounds (degrees)")
		maxLat  = flag.Float64("max-lat", 0, "north edge of the bounds (degrees)")
		maxLon  = flag.Float64("max-lon", 0, "east edge of the bounds (degrees)")
		ctrLat  = flag.Float64("lat", 0, "center latitude, paired with -radius")
		ctrLon  = flag.Float64("lon", 0, "center longitude, paired with -radius")
		radius  = flag.Float64("radius", 0, "half-extent in meters around the center, replaces the corner flags")
		zoomMin = flag.Int("zoom-min", 10, "first zoom level to warm")
		zoomMax = flag.Int("zoom-max", 12, "last zoom level to warm (inclusive)")
		layers  = flag.String("layers", "elevation,imagery", "comma-separated tile layers to warm")
		workers = flag.Int("workers", 0, "concurrent fetches (0 = tiles.fetch_concurrency from config)")
	)
	flag.Parse()

	cfg, err := config.Load("maquette-prefetch")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if *radius > 0 {
		*minLat, *minLon, *maxLat, *maxLon = geospatial.BoundingBox(*ctrLat, *ctrLon, *radius)
	}
	bounds, err := domain.NewBounds(*minLat, *minLon, *maxLat, *maxLon)
	if err != nil {
		log.Fatalf("bounds: %v", err)
	}
	if *zoomMin < 1 || *zoomMax < *zoomMin || *zoomMax > cfg.Tiles.ImageryMaxZoom {
		log.Fatalf("zoom span %d..%d out of range (max %d)", *zoomMin, *zoomMax, cfg.Tiles.ImageryMaxZoom)
	}

	concurrency := *workers
	if concurrency <= 0 {
		concurrency = cfg.Tiles.FetchConcurrency
	}

	// Cache tiers. Warming with no tier up would just hammer the origin
	// for nothing, so at least one must be available.
	var hot, cold ports.CacheService

	if cfg.Cache.ValkeyAddr != "" {
		vk, err := valkey.New(cfg.Cache.ValkeyAddr)
		if err != nil {
			log.Printf("WARNING: valkey unavailable: %v", err)
		} else {
			hot = vk
			defer vk.Close()
		}
	}
	if cfg.Cache.DiskEnabled {
		disk, err := diskcache.Open(cfg.Cache.DiskPath)
		if err != nil {
			log.Printf("WARNING: disk cache unavailable: %v", err)
		} else {
			cold = disk
			defer disk.Close()
		}
	}
	if hot == nil && cold == nil {
		log.Fatal("no cache tier available, nothing to warm")
	}

	origin := tiles.NewOrigin(tiles.Config{
		ElevationURL: cfg.Tiles.ElevationURL,
		ImageryURL:   cfg.Tiles.ImageryURL,
		UserAgent:    cfg.Tiles.UserAgent,
		Timeout:      cfg.Tiles.FetchTimeoutDuration(),
	})
	fetcher := usecases.NewTileFetcher(origin, hot, cold, cfg.Cache.TileTTL)

	var tileLayers []domain.TileLayer
	for _, l := range strings.Split(*layers, ",") {
		switch layer := domain.TileLayer(strings.TrimSpace(l)); layer {
		case domain.LayerElevation:
			tileLayers = append(tileLayers, layer)
		case domain.LayerImagery:
			if cfg.Tiles.ImageryURL == "" {
				log.Print("WARNING: no imagery URL configured, skipping imagery layer")
				continue
			}
			tileLayers = append(tileLayers, layer)
		default:
			log.Fatalf("unknown layer %q", l)
		}
	}
	if len(tileLayers) == 0 {
		log.Fatal("no layers to warm")
	}

	center := bounds.Center()
	widthKm := geospatial.Haversine(center.Lat, bounds.MinLon, center.Lat, bounds.MaxLon) / 1000
	heightKm := geospatial.Haversine(bounds.MinLat, center.Lon, bounds.MaxLat, center.Lon) / 1000
	log.Printf("Maquette Tile Prefetch: bounds (%g, %g)..(%g, %g) ~%.1fx%.1f km, z%d..z%d, %d workers",
		bounds.MinLat, bounds.MinLon, bounds.MaxLat, bounds.MaxLon, widthKm, heightKm, *zoomMin, *zoomMax, concurrency)

	ctx := context.Background()
	start := time.Now()
	total, failed := 0, 0

	for z := *zoomMin; z <= *zoomMax; z++ {
		for _, layer := range tileLayers {
			n, bad := warmLayer(ctx, fetcher, bounds, layer, z, concurrency)
			log.Printf("  z%d %s: %d tiles, %d failed", z, layer, n, bad)
			total += n
			failed += bad
		}
	}

	log.Printf("prefetch complete: %d tiles in %s (%d failed)",
		total, time.Since(start).Round(time.Millisecond), failed)
}

// warmLayer fetches every tile of one layer covering bounds at one zoom.
// The corner tiles define the range the same way composites do, so the
// warmed set is exactly what a diorama build at this zoom will request.
func warmLayer(ctx context.Context, fetcher *usecases.TileFetcher, bounds domain.Bounds, layer domain.TileLayer, zoom, concurrency int) (total, failed int) {
	txMin, tyMin := geospatial.TileForGeo(bounds.MaxLat, bounds.MinLon, zoom)
	txMax, tyMax := geospatial.TileForGeo(bounds.MinLat, bounds.MaxLon, zoom)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	sem := make(chan struct{}, concurrency)

	for ty := tyMin; ty <= tyMax; ty++ {
		for tx := txMin; tx <= txMax; tx++ {
			wg.Add(1)
			sem <- struct{}{}
			go func(tx, ty int) {
				defer wg.Done()
				defer func() { <-sem }()

				idx := domain.TileIndex{X: tx, Y: ty, Z: zoom}
				if _, err := fetcher.FetchTile(ctx, layer, idx); err != nil {
					log.Printf("ERROR [%s %s]: %v", layer, idx.String(), err)
					mu.Lock()
					failed++
					mu.Unlock()
				}
			}(tx, ty)
		}
	}
	wg.Wait()

	return (txMax - txMin + 1) * (tyMax - tyMin + 1), failed
}
