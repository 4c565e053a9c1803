package natsadapter

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Subscriber delivers terrain events to in-process consumers, chiefly
// the WebSocket relay. Subscriptions are ephemeral core-NATS ones: a
// client that was away refetches current artifacts over HTTP, so there
// is nothing durable to replay.
type Subscriber struct {
	conn *nats.Conn
}

// NewSubscriber creates a subscriber with its own NATS connection.
func NewSubscriber(url string) (*Subscriber, error) {
	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &Subscriber{conn: conn}, nil
}

// SubscribeDiorama delivers every event for one diorama. The caller owns
// the returned subscription and unsubscribes when its consumer goes away.
func (s *Subscriber) SubscribeDiorama(dioramaID string, handler func(TerrainEvent)) (*nats.Subscription, error) {
	return s.subscribe(terrainSubjectPrefix+dioramaID+".>", handler)
}

// SubscribeKind delivers only one event kind (grid, mesh, contours, lod)
// for one diorama.
func (s *Subscriber) SubscribeKind(dioramaID, kind string, handler func(TerrainEvent)) (*nats.Subscription, error) {
	return s.subscribe(terrainSubjectPrefix+dioramaID+"."+kind, handler)
}

// SubscribeAll delivers events for every diorama.
func (s *Subscriber) SubscribeAll(handler func(TerrainEvent)) (*nats.Subscription, error) {
	return s.subscribe(terrainSubjectPrefix+">", handler)
}

func (s *Subscriber) subscribe(subject string, handler func(TerrainEvent)) (*nats.Subscription, error) {
	sub, err := s.conn.Subscribe(subject, func(msg *nats.Msg) {
		var event TerrainEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			return
		}
		handler(event)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	return sub, nil
}

// Close drains the connection, terminating all subscriptions.
func (s *Subscriber) Close() {
	_ = s.conn.Drain()
}
