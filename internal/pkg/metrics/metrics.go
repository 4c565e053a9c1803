package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "maquette",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "maquette",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	httpResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "maquette",
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "HTTP response size in bytes",
		Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
	}, []string{"method", "path"})

	// Terrain pipeline metrics
	TileFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "maquette",
		Subsystem: "tiles",
		Name:      "fetches_total",
		Help:      "Total upstream tile fetches by layer and outcome",
	}, []string{"layer", "outcome"})

	TileFetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "maquette",
		Subsystem: "tiles",
		Name:      "fetch_duration_seconds",
		Help:      "Upstream tile fetch latency in seconds",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
	}, []string{"layer"})

	CompositeTiles = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "maquette",
		Subsystem: "composite",
		Name:      "tiles_per_mosaic",
		Help:      "Number of tiles stitched per composite",
		Buckets:   []float64{1, 2, 4, 6, 9, 16, 25, 64, 144, 256},
	}, []string{"layer"})

	RebuildsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "maquette",
		Subsystem: "terrain",
		Name:      "rebuilds_total",
		Help:      "Total snapshot rebuilds by scope",
	}, []string{"scope"})

	RebuildDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "maquette",
		Subsystem: "terrain",
		Name:      "rebuild_duration_seconds",
		Help:      "Snapshot rebuild duration in seconds",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"scope"})

	RebuildsSuperseded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "maquette",
		Subsystem: "terrain",
		Name:      "rebuilds_superseded_total",
		Help:      "Rebuilds discarded because a newer detail level superseded them",
	})

	ActiveDioramas = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "maquette",
		Subsystem: "terrain",
		Name:      "active_dioramas",
		Help:      "Dioramas currently registered",
	})

	LODTransitions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "maquette",
		Subsystem: "lod",
		Name:      "transitions_total",
		Help:      "Accepted level-of-detail transitions",
	})

	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "maquette",
		Subsystem: "ws",
		Name:      "active_connections",
		Help:      "Current number of active WebSocket connections",
	})

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "maquette",
		Subsystem: "events",
		Name:      "published_total",
		Help:      "Terrain events published to the broker",
	}, []string{"kind"})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "maquette",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits",
	}, []string{"tier"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "maquette",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses",
	}, []string{"tier"})
)

// Middleware records request metrics.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Response().StatusCode())
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		method := c.Method()

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)
		httpResponseSize.WithLabelValues(method, path).Observe(float64(len(c.Response().Body())))

		return err
	}
}

// Handler returns a Fiber handler serving Prometheus /metrics endpoint.
func Handler() fiber.Handler {
	handler := promhttp.Handler()
	return func(c *fiber.Ctx) error {
		fasthttpadaptor.NewFastHTTPHandler(handler)(c.Context())
		return nil
	}
}
