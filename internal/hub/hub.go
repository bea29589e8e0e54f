package hub

import (
	"sync"

	"github.com/google/uuid"
)

const sendBuffer = 32

type Writer interface {
	Write(message []byte) error
	Close() error
}

// Connection is one live dashboard subscriber. Outbound frames are queued on a
// bounded buffer and drained by WritePump so a slow socket never blocks a
// broadcaster.
type Connection struct {
	ID        string
	SessionID string
	Writer    Writer

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewConnection(sessionID string, w Writer) *Connection {
	return &Connection{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Writer:    w,
		send:      make(chan []byte, sendBuffer),
		done:      make(chan struct{}),
	}
}

// Send queues a frame without blocking. It reports false when the connection
// is closed or its buffer is full.
func (c *Connection) Send(message []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

// WritePump writes queued frames until the connection closes or a write fails.
func (c *Connection) WritePump() {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			if err := c.Writer.Write(msg); err != nil {
				c.Close()
				return
			}
		}
	}
}

func (c *Connection) Done() <-chan struct{} {
	return c.done
}

func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.Writer.Close()
	})
}

type Hub struct {
	mu          sync.RWMutex
	connections map[string]*Connection
}

func New() *Hub {
	return &Hub{connections: make(map[string]*Connection)}
}

func (h *Hub) Register(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connections[conn.ID] = conn
}

func (h *Hub) Unregister(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if current, ok := h.connections[conn.ID]; ok && current == conn {
		delete(h.connections, conn.ID)
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// Broadcast offers the frame to every registered connection. Connections that
// cannot take it right now are skipped.
func (h *Hub) Broadcast(message []byte) (delivered, skipped int) {
	h.mu.RLock()
	conns := make([]*Connection, 0, len(h.connections))
	for _, c := range h.connections {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		if c.Send(message) {
			delivered++
		} else {
			skipped++
		}
	}
	return delivered, skipped
}
