package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/tbuseth/maquette/internal/adapters/diskcache"
	"github.com/tbuseth/maquette/internal/adapters/http"
	"github.com/tbuseth/maquette/internal/adapters/memory"
	natsadapter "github.com/tbuseth/maquette/internal/adapters/nats"
	"github.com/tbuseth/maquette/internal/adapters/tiles"
	"github.com/tbuseth/maquette/internal/adapters/valkey"
	"github.com/tbuseth/maquette/internal/core/ports"
	"github.com/tbuseth/maquette/internal/core/usecases"
	"github.com/tbuseth/maquette/internal/pkg/config"
	"github.com/tbuseth/maquette/internal/pkg/logging"
	"github.com/tbuseth/maquette/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("maquette-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Structured logging
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logging.Setup(logLevel, "json")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	// Tile origin. Everything downstream degrades without caches or the
	// broker, but a service that cannot reach elevation data is useless.
	origin := tiles.NewOrigin(tiles.Config{
		ElevationURL: cfg.Tiles.ElevationURL,
		ImageryURL:   cfg.Tiles.ImageryURL,
		UserAgent:    cfg.Tiles.UserAgent,
		Timeout:      cfg.Tiles.FetchTimeoutDuration(),
	})

	// Cache tiers. Keep the port variables untyped-nil when a tier is
	// down so the fetcher's nil checks skip it.
	var hot, cold ports.CacheService

	var hotCache *valkey.Cache
	if cfg.Cache.ValkeyAddr != "" {
		hotCache, err = valkey.New(cfg.Cache.ValkeyAddr)
		if err != nil {
			slog.Warn("valkey unavailable, hot tile tier disabled", "error", err)
			hotCache = nil
		} else {
			hot = hotCache
			defer hotCache.Close()
		}
	}

	var coldCache *diskcache.Cache
	if cfg.Cache.DiskEnabled {
		coldCache, err = diskcache.Open(cfg.Cache.DiskPath)
		if err != nil {
			slog.Warn("disk cache unavailable, cold tile tier disabled", "error", err)
			coldCache = nil
		} else {
			cold = coldCache
			defer coldCache.Close()
		}
	}

	// NATS. The engine publishes unconditionally, so a down broker gets
	// a no-op publisher rather than a nil one.
	var publisher ports.EventPublisher = ports.NopPublisher{}

	natsPub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable, terrain events disabled", "error", err)
		natsPub = nil
	} else {
		publisher = natsPub
		defer natsPub.Close()
	}

	natsSub, err := natsadapter.NewSubscriber(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable, websocket relay disabled", "error", err)
		natsSub = nil
	} else {
		defer natsSub.Close()
	}

	// Repos
	dioramaRepo := memory.NewDioramaRepo()

	// Use cases
	fetcher := usecases.NewTileFetcher(origin, hot, cold, cfg.Cache.TileTTL)
	compositeSvc := usecases.NewCompositeService(fetcher, cfg.Tiles.FetchConcurrency)
	meshSvc := usecases.NewMeshService()
	contourSvc := usecases.NewContourService()
	dioramaSvc := usecases.NewDioramaService(dioramaRepo, compositeSvc, meshSvc, contourSvc, publisher, usecases.DioramaConfig{
		PlanSize:        cfg.Terrain.PlanSize,
		BaseDepthPct:    cfg.Terrain.BaseDepthPct,
		Exaggeration:    cfg.Terrain.Exaggeration,
		ResolutionCap:   cfg.Terrain.ResolutionCap,
		ContourInterval: cfg.Terrain.ContourInterval,
		MajorEvery:      cfg.Terrain.MajorEvery,
		MaxLabels:       cfg.Terrain.MaxLabels,
		EllipseSegments: cfg.Terrain.EllipseSegments,
		PaletteHex:      cfg.Terrain.Palette,
		MaxZoom:         cfg.Tiles.MaxZoom,
		ImageryMaxZoom:  cfg.Tiles.ImageryMaxZoom,
		LOD: usecases.LODConfig{
			PollInterval:     cfg.LOD.PollInterval(),
			HysteresisLevels: cfg.LOD.HysteresisLevels,
			MinZoom:          cfg.LOD.MinZoom,
			MaxDemZoom:       cfg.Tiles.MaxZoom,
			MaxImageryZoom:   cfg.Tiles.ImageryMaxZoom,
		},
	})

	deps := &http.Dependencies{
		Dioramas:   dioramaSvc,
		Composites: compositeSvc,
		Publisher:  natsPub,
		Subscriber: natsSub,
		Valkey:     hotCache,
		Disk:       coldCache,
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024, // 1 MB max request body
		AppName:      "Maquette Terrain API",
	})
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "http://localhost:3000, http://localhost:5173, https://*.maquette.dev",
		AllowMethods:     "GET,POST,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	// Give in-flight requests up to 10s to complete, then stop the
	// per-diorama rebuild workers.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}
	if err := dioramaSvc.Shutdown(shutdownCtx); err != nil {
		slog.Error("terrain engine drain", "error", err)
	}

	slog.Info("server stopped")
}
