package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zeusync/jackal/internal/core/events/bus"
	"github.com/zeusync/jackal/internal/core/observability/log"
)

const (
	clientBuffer = 256
	writeTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// EventMessage is the wire form of a bus event.
type EventMessage struct {
	Type      string    `json:"type"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// hub fans event frames out to connected clients. Publishing never blocks:
// a client whose buffer is full misses frames.
type hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
	dropped atomic.Uint64
}

func newHub() *hub {
	return &hub{clients: make(map[*client]struct{})}
}

// add registers c unless the hub was closed.
func (h *hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

func (h *hub) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *hub) broadcast(frame []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- frame:
		default:
			h.dropped.Add(1)
		}
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

// forward is the bus handler feeding the hub.
func (s *Server) forward(e bus.Event) error {
	if s.hub.len() == 0 {
		return nil
	}
	frame, err := json.Marshal(EventMessage{
		Type:      e.Type(),
		Source:    e.Source(),
		Timestamp: e.Timestamp(),
		Data:      e.Data(),
	})
	if err != nil {
		return err
	}
	s.hub.broadcast(frame)
	return nil
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", log.Error(err))
		return
	}
	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}
	if !s.hub.add(c) {
		_ = conn.Close()
		return
	}
	s.logger.Debug("event client connected", log.String("remote", conn.RemoteAddr().String()))

	go s.writeLoop(c)

	// The feed is one way; reading only detects the client going away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	s.hub.remove(c)
	s.logger.Debug("event client disconnected", log.String("remote", conn.RemoteAddr().String()))
}

func (s *Server) writeLoop(c *client) {
	defer c.conn.Close()
	for frame := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			s.logger.Debug("event write failed", log.Error(err))
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeTimeout))
}
