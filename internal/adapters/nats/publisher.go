package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/tbuseth/maquette/internal/core/domain"
	"github.com/tbuseth/maquette/internal/pkg/metrics"
)

// Terrain events flow on maquette.terrain.<dioramaID>.<kind>, where kind
// is grid, mesh, contours or lod. Payloads carry versions only; clients
// refetch the artifact over HTTP when they care.
const (
	terrainStream        = "TERRAIN_EVENTS"
	terrainSubjectPrefix = "maquette.terrain."
)

// TerrainEvent is the JSON payload for every terrain subject.
type TerrainEvent struct {
	Diorama string    `json:"diorama"`
	Kind    string    `json:"kind"`
	Version uint64    `json:"version,omitempty"`
	DemZoom int       `json:"dem_zoom,omitempty"`
	At      time.Time `json:"at"`
}

// Publisher implements ports.EventPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS, enables JetStream and ensures the
// terrain stream exists.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	cfg := nats.StreamConfig{
		Name:      terrainStream,
		Subjects:  []string{terrainSubjectPrefix + ">"},
		Retention: nats.InterestPolicy,
		MaxAge:    1 * time.Hour,
		Storage:   nats.FileStorage,
	}
	if _, err := js.AddStream(&cfg); err != nil {
		// Stream may already exist — try update
		if _, err := js.UpdateStream(&cfg); err != nil {
			return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
		}
	}

	return &Publisher{conn: conn, js: js}, nil
}

func (p *Publisher) PublishGridUpdated(ctx context.Context, dioramaID string, version uint64) error {
	return p.publish(dioramaID, "grid", TerrainEvent{Diorama: dioramaID, Kind: "grid", Version: version})
}

func (p *Publisher) PublishMeshUpdated(ctx context.Context, dioramaID string, version uint64) error {
	return p.publish(dioramaID, "mesh", TerrainEvent{Diorama: dioramaID, Kind: "mesh", Version: version})
}

func (p *Publisher) PublishContoursUpdated(ctx context.Context, dioramaID string, version uint64) error {
	return p.publish(dioramaID, "contours", TerrainEvent{Diorama: dioramaID, Kind: "contours", Version: version})
}

func (p *Publisher) PublishLODChanged(ctx context.Context, dioramaID string, state domain.LODState) error {
	return p.publish(dioramaID, "lod", TerrainEvent{Diorama: dioramaID, Kind: "lod", DemZoom: state.DemZoom})
}

func (p *Publisher) publish(dioramaID, kind string, event TerrainEvent) error {
	event.At = time.Now().UTC()
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if _, err := p.js.Publish(terrainSubjectPrefix+dioramaID+"."+kind, data); err != nil {
		return err
	}
	metrics.EventsPublished.WithLabelValues(kind).Inc()
	return nil
}

// Ping reports whether the connection is currently up, for readiness
// checks.
func (p *Publisher) Ping(ctx context.Context) error {
	if !p.conn.IsConnected() {
		return fmt.Errorf("nats not connected: %s", p.conn.Status())
	}
	return nil
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

