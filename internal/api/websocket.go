package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/iotail/kennel-core/internal/infrastructure/logging"
	"github.com/iotail/kennel-core/internal/reservation"
)

// WebSocket constants.
const (
	// wsSendBufferSize is the per-client outbound message buffer size.
	wsSendBufferSize = 64

	// wsWriteTimeout bounds each outbound write.
	wsWriteTimeout = 10 * time.Second

	// wsPingInterval keeps idle connections alive through proxies.
	wsPingInterval = 30 * time.Second
)

// wsEvent is the envelope broadcast to connected clients.
type wsEvent struct {
	Type      string            `json:"type"`
	Timestamp string            `json:"timestamp"`
	Event     reservation.Event `json:"event"`
}

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Bearer auth happens before the upgrade; origin is not checked.
		return true
	},
}

// Hub fans reservation lifecycle events out to WebSocket clients.
// A slow client's events are dropped rather than blocking the hub.
type Hub struct {
	logger  *logging.Logger
	clients map[*wsClient]struct{}
	mu      sync.RWMutex
}

// wsClient is one connected WebSocket client.
type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a WebSocket hub.
func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		client.conn.Close()
		delete(h.clients, client)
	}
}

// Broadcast sends a lifecycle event to every connected client. Safe to
// call from any goroutine; never blocks.
func (h *Hub) Broadcast(event reservation.Event) {
	data, err := json.Marshal(wsEvent{
		Type:      "reservation_event",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Event:     event,
	})
	if err != nil {
		h.logger.Error("marshalling broadcast failed", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- data:
		default:
			// Client too slow; drop the event for it.
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// register adds a client; unregister removes it. Only the goroutine that
// removes the client from the map closes its send channel, so shutdown
// and read-loop exits cannot double-close.
func (h *Hub) register(client *wsClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unregister(client *wsClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	h.mu.Unlock()
	if existed {
		close(client.send)
	}
}

// handleWebSocket upgrades the connection and attaches it to the hub.
//
//	GET /api/v1/ws
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &wsClient{conn: conn, send: make(chan []byte, wsSendBufferSize)}
	s.hub.register(client)
	s.logger.Debug("websocket client connected", "clients", s.hub.ClientCount())

	go client.writePump()
	go func() {
		// The read loop exists to detect disconnects; inbound frames
		// are discarded.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.hub.unregister(client)
				conn.Close()
				return
			}
		}
	}()
}

// writePump drains the send channel onto the connection.
func (c *wsClient) writePump() {
	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				//nolint:errcheck // Best-effort close frame
				c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(wsWriteTimeout))
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)) //nolint:errcheck
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ping.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)) //nolint:errcheck
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
