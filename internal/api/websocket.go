package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/leka/craftwatch/internal/domain"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// statusClient is one connected dashboard. The stream is one-way: the
// server pushes status snapshots, anything the client sends is ignored.
type statusClient struct {
	hub  *WebSocketHub
	conn *websocket.Conn
	send chan []byte
}

// WebSocketHub fans status updates out to connected dashboards. A new
// subscriber immediately receives the last broadcast status, so the
// dashboard does not sit empty until the next poll cycle.
type WebSocketHub struct {
	mu      sync.Mutex
	clients map[*statusClient]struct{}
	last    []byte
}

func NewWebSocketHub() *WebSocketHub {
	return &WebSocketHub{
		clients: make(map[*statusClient]struct{}),
	}
}

func (h *WebSocketHub) attach(c *statusClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	total := len(h.clients)
	last := h.last
	h.mu.Unlock()

	if last != nil {
		select {
		case c.send <- last:
		default:
		}
	}
	log.Debug().Str("remote", c.conn.RemoteAddr().String()).Int("total", total).Msg("websocket client connected")
}

func (h *WebSocketHub) detach(c *statusClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	total := len(h.clients)
	h.mu.Unlock()
	log.Debug().Int("total", total).Msg("websocket client disconnected")
}

// Broadcast pushes a status update to every connected client and
// remembers it for clients that connect later. A client whose send
// buffer is full is dropped rather than blocking the poll loop.
func (h *WebSocketHub) Broadcast(status domain.ServerStatus) {
	data, err := json.Marshal(status)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal status update")
		return
	}

	h.mu.Lock()
	h.last = data
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			delete(h.clients, c)
			close(c.send)
		}
	}
	h.mu.Unlock()
}

// ClientCount returns the number of connected clients
func (h *WebSocketHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// handleWebSocket upgrades HTTP to WebSocket and manages the connection
func (r *Router) handleWebSocket(w http.ResponseWriter, req *http.Request) {
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &statusClient{
		hub:  r.wsHub,
		conn: conn,
		send: make(chan []byte, 256),
	}
	r.wsHub.attach(client)

	go client.writePump()
	go client.readPump()
}

// readPump discards incoming messages and detaches the client when the
// connection drops.
func (c *statusClient) readPump() {
	defer func() {
		c.hub.detach(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNoStatusReceived) {
				log.Debug().Err(err).Msg("websocket read error")
			}
			return
		}
	}
}

// writePump sends queued status updates and keeps the connection alive
// with periodic pings.
func (c *statusClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
