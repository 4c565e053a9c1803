package usecases

import (
	"context"
	"fmt"

	"github.com/tbuseth/maquette/internal/core/domain"
	"github.com/tbuseth/maquette/internal/core/ports"
)

// TileFetcher layers caches in front of an origin tile source: a hot tier
// (Valkey) first, a cold tier (local disk) second, the origin last. Bytes
// pass through unmodified, so every tier serves the exact PNG the origin
// produced. Either tier may be nil and is simply skipped.
type TileFetcher struct {
	origin     ports.TileSource
	hot        ports.CacheService
	cold       ports.CacheService
	ttlSeconds int
}

// NewTileFetcher creates a new TileFetcher. ttlSeconds applies to both
// tiers; zero disables expiry where the backend allows it.
func NewTileFetcher(origin ports.TileSource, hot, cold ports.CacheService, ttlSeconds int) *TileFetcher {
	return &TileFetcher{origin: origin, hot: hot, cold: cold, ttlSeconds: ttlSeconds}
}

// FetchTile resolves one tile through the tiers. A hit in a lower tier
// backfills the tiers above it so repeated requests stop falling through.
func (f *TileFetcher) FetchTile(ctx context.Context, layer domain.TileLayer, tile domain.TileIndex) ([]byte, error) {
	key := tileKey(layer, tile)

	if f.hot != nil {
		if data, err := f.hot.Get(ctx, key); err == nil {
			return data, nil
		}
	}

	if f.cold != nil {
		if data, err := f.cold.Get(ctx, key); err == nil {
			if f.hot != nil {
				_ = f.hot.Set(ctx, key, data, f.ttlSeconds)
			}
			return data, nil
		}
	}

	data, err := f.origin.FetchTile(ctx, layer, tile)
	if err != nil {
		return nil, err
	}

	if f.cold != nil {
		_ = f.cold.Set(ctx, key, data, f.ttlSeconds)
	}
	if f.hot != nil {
		_ = f.hot.Set(ctx, key, data, f.ttlSeconds)
	}
	return data, nil
}

func tileKey(layer domain.TileLayer, tile domain.TileIndex) string {
	return fmt.Sprintf("tile:%s:%s", layer, tile.String())
}
