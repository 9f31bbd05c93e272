package network

import (
	"net/http"
	"sync"
	"time"

	"github.com/decred/slog"
	"github.com/gorilla/websocket"
	"github.com/pacroyale/viewer/pkg/state"
)

const (
	writeWait    = 2 * time.Second
	clientBuffer = 8
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// client is one websocket subscriber. Frames that do not fit the buffer
// are dropped; the next render supersedes them anyway.
type client struct {
	conn *websocket.Conn
	send chan state.RenderState
}

// Hub fans render states out to websocket subscribers
type Hub struct {
	log slog.Logger

	mutex   sync.RWMutex
	clients map[*client]struct{}
	last    *state.RenderState
	sent    int64
	dropped int64
}

// NewHub creates an empty hub
func NewHub(log slog.Logger) *Hub {
	if log == nil {
		log = slog.Disabled
	}
	return &Hub{log: log, clients: make(map[*client]struct{})}
}

// Broadcast queues rs for every subscriber
func (h *Hub) Broadcast(rs state.RenderState) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.last = &rs
	for c := range h.clients {
		select {
		case c.send <- rs:
			h.sent++
		default:
			h.dropped++
		}
	}
}

// ServeWS upgrades the request and streams render states until the peer
// goes away
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnf("WebSocket upgrade failed: %v", err)
		return
	}

	c := &client{conn: conn, send: make(chan state.RenderState, clientBuffer)}

	h.mutex.Lock()
	h.clients[c] = struct{}{}
	if h.last != nil {
		c.send <- *h.last
	}
	h.mutex.Unlock()
	h.log.Debugf("Subscriber %s connected", r.RemoteAddr)

	done := make(chan struct{})
	go h.readLoop(c, done)
	h.writeLoop(c, done)

	h.mutex.Lock()
	delete(h.clients, c)
	h.mutex.Unlock()
	conn.Close()
	h.log.Debugf("Subscriber %s disconnected", r.RemoteAddr)
}

// readLoop discards inbound frames and reports when the peer closes
func (h *Hub) readLoop(c *client, done chan<- struct{}) {
	defer close(done)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *client, done <-chan struct{}) {
	for {
		select {
		case rs := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(rs); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// Clients returns the number of connected subscribers
func (h *Hub) Clients() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// GetStats returns hub statistics
func (h *Hub) GetStats() map[string]interface{} {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return map[string]interface{}{
		"clients": len(h.clients),
		"sent":    h.sent,
		"dropped": h.dropped,
	}
}
