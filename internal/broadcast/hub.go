package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"agora/realtime/internal/metrics"
)

const (
	writeTimeout  = 10 * time.Second
	sendQueueSize = 64
)

var ErrConnectionGone = errors.New("connection gone")

// Conn wraps a websocket connection with a serialized outbound queue.
// All writes go through the queue; the write pump is the only goroutine
// touching the underlying connection for writes.
type Conn struct {
	id        string
	ws        *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
	done      chan struct{}
}

func (c *Conn) ID() string {
	return c.id
}

// Send queues a frame for delivery. Frames to a connection whose queue
// is full are dropped (a stalled client must not stall broadcasts).
func (c *Conn) Send(frame []byte) error {
	select {
	case <-c.done:
		return ErrConnectionGone
	case c.send <- frame:
		return nil
	default:
		return fmt.Errorf("connection %s: send queue full", c.id)
	}
}

func (c *Conn) writePump() {
	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Printf("broadcast: write to %s: %v", c.id, err)
				}
				c.close()
				return
			}
		}
	}
}

func (c *Conn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		_ = c.ws.Close()
	})
}

// Hub tracks live connections and routes events to them. Room membership
// is resolved through the registry on every room send.
type Hub struct {
	registry Registry

	mu    sync.RWMutex
	conns map[string]*Conn
}

func NewHub(registry Registry) *Hub {
	return &Hub{
		registry: registry,
		conns:    make(map[string]*Conn),
	}
}

// Register adopts a websocket connection and starts its write pump.
func (h *Hub) Register(connID string, ws *websocket.Conn) *Conn {
	conn := &Conn{
		id:   connID,
		ws:   ws,
		send: make(chan []byte, sendQueueSize),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	h.conns[connID] = conn
	h.mu.Unlock()
	go conn.writePump()

	metrics.ConnectionsActive.Inc()
	return conn
}

// Unregister drops a connection and closes its transport.
func (h *Hub) Unregister(connID string) {
	h.mu.Lock()
	conn, ok := h.conns[connID]
	delete(h.conns, connID)
	h.mu.Unlock()
	if ok {
		conn.close()
		metrics.ConnectionsActive.Dec()
	}
}

func (h *Hub) get(connID string) (*Conn, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conn, ok := h.conns[connID]
	return conn, ok
}

func encode(event string, payload any) ([]byte, error) {
	frame, err := json.Marshal(Event{Event: event, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("marshal event %s: %w", event, err)
	}
	return frame, nil
}

// ToConnection pushes to one connection. A connection that has gone away
// is not an error worth surfacing; the payload is simply unobservable.
func (h *Hub) ToConnection(connID, event string, payload any) error {
	frame, err := encode(event, payload)
	if err != nil {
		return err
	}
	conn, ok := h.get(connID)
	if !ok {
		return nil
	}
	metrics.BroadcastsTotal.WithLabelValues("connection").Inc()
	return conn.Send(frame)
}

// ToRoom pushes to every connection subscribed to a room. Membership is
// read from the registry now, not from any cache.
func (h *Hub) ToRoom(ctx context.Context, room, event string, payload any) error {
	frame, err := encode(event, payload)
	if err != nil {
		return err
	}
	members, err := h.registry.Members(ctx, room)
	if err != nil {
		return fmt.Errorf("resolve room %s: %w", room, err)
	}
	metrics.BroadcastsTotal.WithLabelValues("room").Inc()
	for _, connID := range members {
		if conn, ok := h.get(connID); ok {
			_ = conn.Send(frame)
		}
	}
	return nil
}

// Global pushes to every live connection on this node.
func (h *Hub) Global(event string, payload any) {
	frame, err := encode(event, payload)
	if err != nil {
		log.Printf("broadcast: %v", err)
		return
	}
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.conns))
	for _, conn := range h.conns {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	metrics.BroadcastsTotal.WithLabelValues("global").Inc()
	for _, conn := range conns {
		_ = conn.Send(frame)
	}
}

// Close tears down every connection, typically during shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := h.conns
	h.conns = make(map[string]*Conn)
	h.mu.Unlock()
	for _, conn := range conns {
		conn.close()
	}
}
