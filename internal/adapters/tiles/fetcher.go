package tiles

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tbuseth/maquette/internal/core/domain"
	"github.com/tbuseth/maquette/internal/core/ports"
	"github.com/tbuseth/maquette/internal/pkg/metrics"
)

// Config points the origin at slippy XYZ endpoints. URL templates use
// {z}, {x} and {y} placeholders, e.g.
// https://s3.amazonaws.com/elevation-tiles-prod/terrarium/{z}/{x}/{y}.png
type Config struct {
	ElevationURL string
	ImageryURL   string
	UserAgent    string
	Timeout      time.Duration
}

// Origin implements ports.TileSource against upstream tile servers over
// HTTP. One shared client serves every layer; cache tiers wrap around it.
type Origin struct {
	client    *http.Client
	userAgent string
	urls      map[domain.TileLayer]string
}

// NewOrigin creates a new HTTP tile origin.
func NewOrigin(cfg Config) *Origin {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	urls := map[domain.TileLayer]string{}
	if cfg.ElevationURL != "" {
		urls[domain.LayerElevation] = cfg.ElevationURL
	}
	if cfg.ImageryURL != "" {
		urls[domain.LayerImagery] = cfg.ImageryURL
	}
	return &Origin{
		client:    &http.Client{Timeout: cfg.Timeout},
		userAgent: cfg.UserAgent,
		urls:      urls,
	}
}

// FetchTile downloads one tile. Upstream failures of any kind come back
// wrapped in ports.ErrTileUnavailable so compositors can treat the slot
// as blank without matching transport errors.
func (o *Origin) FetchTile(ctx context.Context, layer domain.TileLayer, tile domain.TileIndex) ([]byte, error) {
	tpl, ok := o.urls[layer]
	if !ok {
		return nil, fmt.Errorf("no endpoint for layer %q: %w", layer, ports.ErrTileUnavailable)
	}
	url := expandTemplate(tpl, tile)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build tile request: %w", err)
	}
	if o.userAgent != "" {
		req.Header.Set("User-Agent", o.userAgent)
	}

	start := time.Now()
	resp, err := o.client.Do(req)
	if err != nil {
		metrics.TileFetches.WithLabelValues(string(layer), "network_error").Inc()
		return nil, fmt.Errorf("fetch %s: %v: %w", tile, err, ports.ErrTileUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.TileFetches.WithLabelValues(string(layer), "http_error").Inc()
		return nil, fmt.Errorf("HTTP %d for %s: %w", resp.StatusCode, url, ports.ErrTileUnavailable)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.TileFetches.WithLabelValues(string(layer), "read_error").Inc()
		return nil, fmt.Errorf("read tile body: %v: %w", err, ports.ErrTileUnavailable)
	}

	metrics.TileFetches.WithLabelValues(string(layer), "ok").Inc()
	metrics.TileFetchDuration.WithLabelValues(string(layer)).Observe(time.Since(start).Seconds())
	return body, nil
}

func expandTemplate(tpl string, tile domain.TileIndex) string {
	r := strings.NewReplacer(
		"{z}", strconv.Itoa(tile.Z),
		"{x}", strconv.Itoa(tile.X),
		"{y}", strconv.Itoa(tile.Y),
	)
	return r.Replace(tpl)
}
