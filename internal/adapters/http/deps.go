package http

import (
	"github.com/tbuseth/maquette/internal/adapters/diskcache"
	natsadapter "github.com/tbuseth/maquette/internal/adapters/nats"
	"github.com/tbuseth/maquette/internal/adapters/valkey"
	"github.com/tbuseth/maquette/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Dioramas   *usecases.DioramaService
	Composites *usecases.CompositeService
	Publisher  *natsadapter.Publisher
	Subscriber *natsadapter.Subscriber
	Valkey     *valkey.Cache
	Disk       *diskcache.Cache
}
