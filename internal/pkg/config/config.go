package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Tiles     TilesConfig     `mapstructure:"tiles"`
	Cache     CacheConfig     `mapstructure:"cache"`
	NATS      NATSConfig      `mapstructure:"nats"`
	LOD       LODConfig       `mapstructure:"lod"`
	Terrain   TerrainConfig   `mapstructure:"terrain"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

// TilesConfig points the engine at slippy XYZ origins. URL templates use
// {z}/{x}/{y} placeholders; an empty imagery_url disables the imagery
// layer entirely.
type TilesConfig struct {
	ElevationURL     string `mapstructure:"elevation_url"`
	ImageryURL       string `mapstructure:"imagery_url"`
	Size             int    `mapstructure:"size"`
	FetchConcurrency int    `mapstructure:"fetch_concurrency"`
	FetchTimeout     int    `mapstructure:"fetch_timeout"`
	MaxZoom          int    `mapstructure:"max_zoom"`
	ImageryMaxZoom   int    `mapstructure:"imagery_max_zoom"`
	UserAgent        string `mapstructure:"user_agent"`
}

func (t TilesConfig) FetchTimeoutDuration() time.Duration {
	return time.Duration(t.FetchTimeout) * time.Second
}

// CacheConfig covers both tile tiers: valkey (hot, shared) and the local
// bbolt file (cold, survives restarts). An empty valkey_addr disables the
// hot tier; disk_enabled false disables the cold one.
type CacheConfig struct {
	ValkeyAddr  string `mapstructure:"valkey_addr"`
	TileTTL     int    `mapstructure:"tile_ttl"`
	DiskPath    string `mapstructure:"disk_path"`
	DiskEnabled bool   `mapstructure:"disk_enabled"`
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type LODConfig struct {
	PollIntervalMS   int `mapstructure:"poll_interval_ms"`
	HysteresisLevels int `mapstructure:"hysteresis_levels"`
	MinZoom          int `mapstructure:"min_zoom"`
}

func (l LODConfig) PollInterval() time.Duration {
	return time.Duration(l.PollIntervalMS) * time.Millisecond
}

// TerrainConfig carries the engine defaults applied to new dioramas.
type TerrainConfig struct {
	PlanSize        float64  `mapstructure:"plan_size"`
	BaseDepthPct    float64  `mapstructure:"base_depth_pct"`
	ResolutionCap   int      `mapstructure:"resolution_cap"`
	Exaggeration    float64  `mapstructure:"exaggeration"`
	ContourInterval float64  `mapstructure:"contour_interval"`
	MajorEvery      int      `mapstructure:"major_every"`
	MaxLabels       int      `mapstructure:"max_labels"`
	EllipseSegments int      `mapstructure:"ellipse_segments"`
	Palette         []string `mapstructure:"palette"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 20)
	v.SetDefault("tiles.elevation_url", "https://s3.amazonaws.com/elevation-tiles-prod/terrarium/{z}/{x}/{y}.png")
	v.SetDefault("tiles.imagery_url", "")
	v.SetDefault("tiles.size", 256)
	v.SetDefault("tiles.fetch_concurrency", 8)
	v.SetDefault("tiles.fetch_timeout", 15)
	v.SetDefault("tiles.max_zoom", 15)
	v.SetDefault("tiles.imagery_max_zoom", 19)
	v.SetDefault("tiles.user_agent", "maquette/1.0")
	v.SetDefault("cache.valkey_addr", "localhost:6379")
	v.SetDefault("cache.tile_ttl", 86400)
	v.SetDefault("cache.disk_path", "./tilecache")
	v.SetDefault("cache.disk_enabled", true)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("lod.poll_interval_ms", 750)
	v.SetDefault("lod.hysteresis_levels", 2)
	v.SetDefault("lod.min_zoom", 8)
	v.SetDefault("terrain.plan_size", 200.0)
	v.SetDefault("terrain.base_depth_pct", 10.0)
	v.SetDefault("terrain.resolution_cap", 256)
	v.SetDefault("terrain.exaggeration", 1.0)
	v.SetDefault("terrain.contour_interval", 50.0)
	v.SetDefault("terrain.major_every", 5)
	v.SetDefault("terrain.max_labels", 24)
	v.SetDefault("terrain.ellipse_segments", 128)
	v.SetDefault("terrain.palette", []string{
		"#1b7837", "#7fbf7b", "#d9f0d3", "#e7d8ad", "#a6611a", "#f5f5f5",
	})
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", false)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: MAQUETTE_TILES_MAX_ZOOM → tiles.max_zoom
	v.SetEnvPrefix("MAQUETTE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if c.Tiles.ElevationURL == "" {
		errs = append(errs, "tiles.elevation_url is required")
	}
	if c.Tiles.FetchConcurrency <= 0 {
		errs = append(errs, "tiles.fetch_concurrency must be positive")
	}
	if c.Tiles.FetchTimeout <= 0 {
		errs = append(errs, "tiles.fetch_timeout must be positive")
	}
	if c.Tiles.MaxZoom < 1 || c.Tiles.MaxZoom > 15 {
		errs = append(errs, fmt.Sprintf("tiles.max_zoom must be 1-15 (terrarium coverage), got %d", c.Tiles.MaxZoom))
	}
	if c.Tiles.ImageryMaxZoom < c.Tiles.MaxZoom || c.Tiles.ImageryMaxZoom > 22 {
		errs = append(errs, fmt.Sprintf("tiles.imagery_max_zoom must be %d-22, got %d", c.Tiles.MaxZoom, c.Tiles.ImageryMaxZoom))
	}
	if c.Cache.DiskEnabled && c.Cache.DiskPath == "" {
		errs = append(errs, "cache.disk_path is required when the disk cache is enabled")
	}
	if c.Cache.TileTTL < 0 {
		errs = append(errs, "cache.tile_ttl must not be negative")
	}
	if c.LOD.PollIntervalMS <= 0 {
		errs = append(errs, "lod.poll_interval_ms must be positive")
	}
	if c.LOD.HysteresisLevels < 1 {
		errs = append(errs, "lod.hysteresis_levels must be at least 1")
	}
	if c.LOD.MinZoom < 1 || c.LOD.MinZoom > c.Tiles.MaxZoom {
		errs = append(errs, fmt.Sprintf("lod.min_zoom must be 1-%d, got %d", c.Tiles.MaxZoom, c.LOD.MinZoom))
	}
	if c.Terrain.PlanSize <= 0 {
		errs = append(errs, "terrain.plan_size must be positive")
	}
	if c.Terrain.BaseDepthPct <= 0 || c.Terrain.BaseDepthPct > 100 {
		errs = append(errs, fmt.Sprintf("terrain.base_depth_pct must be in (0, 100], got %v", c.Terrain.BaseDepthPct))
	}
	if c.Terrain.ResolutionCap < 2 {
		errs = append(errs, fmt.Sprintf("terrain.resolution_cap must be at least 2, got %d", c.Terrain.ResolutionCap))
	}
	if c.Terrain.Exaggeration <= 0 {
		errs = append(errs, "terrain.exaggeration must be positive")
	}
	if c.Terrain.ContourInterval <= 0 {
		errs = append(errs, "terrain.contour_interval must be positive")
	}
	if c.Terrain.MajorEvery < 1 {
		errs = append(errs, "terrain.major_every must be at least 1")
	}
	if c.Terrain.EllipseSegments < 8 {
		errs = append(errs, fmt.Sprintf("terrain.ellipse_segments must be at least 8, got %d", c.Terrain.EllipseSegments))
	}
	if len(c.Terrain.Palette) == 1 {
		errs = append(errs, "terrain.palette needs at least two stops (or none)")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
