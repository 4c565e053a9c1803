package telemetry

// SLI metric names used for instrumentation.
const (
	// Latency
	MetricAPILatencyP50 = "api.latency.p50"
	MetricAPILatencyP95 = "api.latency.p95"
	MetricAPILatencyP99 = "api.latency.p99"

	// Throughput
	MetricRequestsPerSec = "api.requests_per_second"

	// Pipeline freshness
	MetricSnapshotAge      = "terrain.snapshot_age_seconds"
	MetricTileFetchLatency = "tiles.fetch_latency"

	// Availability
	MetricUptime = "service.uptime_percentage"

	// Engine load
	MetricActiveDioramas = "engine.dioramas_active"
	MetricRebuildRate    = "engine.rebuilds_per_hour"
)
