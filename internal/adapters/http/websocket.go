package http

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/nats-io/nats.go"
	natsadapter "github.com/tbuseth/maquette/internal/adapters/nats"
	"github.com/tbuseth/maquette/internal/pkg/metrics"
)

// wsMessage is sent from client to manage event subscriptions or report
// camera distance.
type wsMessage struct {
	Action   string  `json:"action"`   // "subscribe" | "unsubscribe" | "camera"
	Diorama  string  `json:"diorama"`  // diorama ID (optional, "" = all)
	Channel  string  `json:"channel"`  // "terrain" (default, all kinds) | "lod"
	Distance float64 `json:"distance"` // camera action only
	Unit     string  `json:"unit"`     // camera action: "meters" (default) | "plan"
}

// WebSocketHandler returns a handler that upgrades to WebSocket and relays
// terrain events from NATS to connected clients.
// Clients send JSON: {"action":"subscribe","diorama":"<id>","channel":"terrain"}
// An empty diorama means all dioramas. Camera reports feed the LOD poller:
// {"action":"camera","diorama":"<id>","distance":4000,"unit":"plan"}.
func WebSocketHandler(deps *Dependencies) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		remoteAddr := c.RemoteAddr().String()
		log.Printf("ws client connected: %s", remoteAddr)
		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()

		var mu sync.Mutex
		subs := make(map[string]*nats.Subscription) // channel/diorama -> subscription

		// Helper: thread-safe write
		writeJSON := func(v interface{}) error {
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			return c.WriteMessage(websocket.TextMessage, data)
		}

		relay := func(ev natsadapter.TerrainEvent) {
			_ = writeJSON(ev)
		}

		subscribeByMsg := func(channel, diorama string) (*nats.Subscription, error) {
			switch channel {
			case "terrain":
				if diorama == "" {
					return deps.Subscriber.SubscribeAll(relay)
				}
				return deps.Subscriber.SubscribeDiorama(diorama, relay)
			default: // "lod"
				if diorama == "" {
					diorama = "*"
				}
				return deps.Subscriber.SubscribeKind(diorama, "lod", relay)
			}
		}

		// Auto-subscribe to every diorama's events by default
		if deps.Subscriber != nil {
			sub, err := deps.Subscriber.SubscribeAll(relay)
			if err != nil {
				log.Printf("ws default subscribe error: %v", err)
				return
			}
			subs["terrain/"] = sub
		}

		// Keep-alive ping
		done := make(chan struct{})
		go func() {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					mu.Lock()
					err := c.WriteMessage(websocket.PingMessage, nil)
					mu.Unlock()
					if err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()

		// Read client messages
		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				break
			}

			var m wsMessage
			if err := json.Unmarshal(msg, &m); err != nil {
				_ = writeJSON(map[string]string{"error": "invalid JSON"})
				continue
			}

			channel := m.Channel
			if channel == "" {
				channel = "terrain"
			}
			if channel != "terrain" && channel != "lod" {
				_ = writeJSON(map[string]string{"error": "unknown channel: " + channel})
				continue
			}
			key := channel + "/" + m.Diorama

			switch m.Action {
			case "camera":
				if m.Diorama == "" {
					_ = writeJSON(map[string]string{"error": "camera report needs a diorama"})
					continue
				}
				if err := deps.Dioramas.ReportCamera(context.Background(), m.Diorama, m.Distance, m.Unit); err != nil {
					_ = writeJSON(map[string]string{"error": err.Error()})
					continue
				}
				_ = writeJSON(map[string]string{"status": "camera accepted", "diorama": m.Diorama})

			case "subscribe":
				if deps.Subscriber == nil {
					_ = writeJSON(map[string]string{"error": "event relay not configured"})
					continue
				}
				if _, exists := subs[key]; exists {
					_ = writeJSON(map[string]string{"status": "already subscribed", "channel": channel, "diorama": m.Diorama})
					continue
				}
				s, err := subscribeByMsg(channel, m.Diorama)
				if err != nil {
					_ = writeJSON(map[string]string{"error": "subscribe failed: " + err.Error()})
					continue
				}
				subs[key] = s
				_ = writeJSON(map[string]string{"status": "subscribed", "channel": channel, "diorama": m.Diorama})

			case "unsubscribe":
				if s, exists := subs[key]; exists {
					_ = s.Unsubscribe()
					delete(subs, key)
					_ = writeJSON(map[string]string{"status": "unsubscribed", "channel": channel, "diorama": m.Diorama})
				} else {
					_ = writeJSON(map[string]string{"error": "not subscribed to " + key})
				}

			default:
				_ = writeJSON(map[string]string{"error": "unknown action: " + m.Action})
			}
		}

		// Cleanup
		close(done)
		for _, s := range subs {
			_ = s.Unsubscribe()
		}
		log.Printf("ws client disconnected: %s", remoteAddr)
	}
}
