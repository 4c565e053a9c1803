package ports

import (
	"context"
	"errors"

	"github.com/tbuseth/maquette/internal/core/domain"
)

// ErrCacheMiss is returned by CacheService.Get when a key is absent.
// Adapters translate their backend's miss signal to it so callers can
// fall through tiers without matching driver errors.
var ErrCacheMiss = errors.New("cache miss")

// ErrTileUnavailable is returned by TileSource when a tile cannot be
// produced (upstream error, decode failure, timeout). Compositors treat
// it as a blank slot rather than a fatal error.
var ErrTileUnavailable = errors.New("tile unavailable")

// TileSource produces one raster tile as encoded PNG bytes. Implementations
// include the upstream HTTP fetcher and the tiered cache wrapped around it;
// both hand back the exact bytes the origin served.
type TileSource interface {
	FetchTile(ctx context.Context, layer domain.TileLayer, tile domain.TileIndex) ([]byte, error)
}

// EventPublisher publishes terrain lifecycle events to a message broker.
type EventPublisher interface {
	PublishGridUpdated(ctx context.Context, dioramaID string, version uint64) error
	PublishMeshUpdated(ctx context.Context, dioramaID string, version uint64) error
	PublishContoursUpdated(ctx context.Context, dioramaID string, version uint64) error
	PublishLODChanged(ctx context.Context, dioramaID string, state domain.LODState) error
}

// NopPublisher discards every event, for instances running without a
// broker.
type NopPublisher struct{}

func (NopPublisher) PublishGridUpdated(context.Context, string, uint64) error     { return nil }
func (NopPublisher) PublishMeshUpdated(context.Context, string, uint64) error     { return nil }
func (NopPublisher) PublishContoursUpdated(context.Context, string, uint64) error { return nil }
func (NopPublisher) PublishLODChanged(context.Context, string, domain.LODState) error {
	return nil
}

// CacheService provides byte-oriented caching with per-key TTLs.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}
