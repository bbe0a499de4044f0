// Package notify relays a one-directional "cycle complete" signal to
// attached map-frontend clients over WebSocket, per SPEC_FULL.md §4.12.
package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// envelope is the single message shape this hub ever sends.
type envelope struct {
	Event       string `json:"event"`
	Cycle       int    `json:"cycle"`
	GeneratedAt string `json:"generatedAt"`
}

// Hub holds no mesh state of its own; it only relays the emitter's
// completion signal to whatever clients happen to be attached.
type Hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]struct{}
	logger  *zap.Logger
}

// NewHub constructs an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{clients: map[*websocket.Conn]struct{}{}, logger: logger}
}

// HandleWS upgrades the request and registers the client for broadcasts
// until it disconnects. A cycle proceeds identically whether or not any
// client is attached.
func (h *Hub) HandleWS() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			http.Error(w, "websocket_accept_failed", http.StatusInternalServerError)
			return
		}

		h.mu.Lock()
		h.clients[c] = struct{}{}
		h.mu.Unlock()

		go func() {
			defer func() {
				h.mu.Lock()
				delete(h.clients, c)
				h.mu.Unlock()
				c.Close(websocket.StatusNormalClosure, "")
			}()
			for {
				if _, _, err := c.Read(context.Background()); err != nil {
					return
				}
			}
		}()
	}
}

// BroadcastCycleComplete pushes the cycle-complete envelope to every
// attached client; it never blocks on a slow client beyond a short
// per-write deadline.
func (h *Hub) BroadcastCycleComplete(cycle int, generatedAt time.Time) {
	payload, err := json.Marshal(envelope{
		Event:       "cycle_complete",
		Cycle:       cycle,
		GeneratedAt: generatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	})
	if err != nil {
		h.logger.Warn("notify: marshal envelope failed", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		go func(conn *websocket.Conn) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
				h.logger.Debug("notify: write failed, dropping client", zap.Error(err))
			}
		}(c)
	}
}

// ClientCount reports the number of currently attached clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
