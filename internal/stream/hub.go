package stream

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/strefethen/dunehd-hub-go/internal/driver"
)

const (
	sendBufferSize = 64
	writeWait      = 10 * time.Second
)

// Source provides the state sent to newly connected clients.
type Source interface {
	Entities() []driver.Entity
	HubState() driver.HubState
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// Hub fans entity changes out to WebSocket clients. Clients that cannot keep
// up are disconnected.
type Hub struct {
	mu           sync.RWMutex
	clients      map[string]*client
	source       Source
	pingInterval time.Duration
	logger       *log.Logger
}

func NewHub(source Source, pingInterval time.Duration, logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Hub{
		clients:      make(map[string]*client),
		source:       source,
		pingInterval: pingInterval,
		logger:       logger,
	}
}

// AddConnection registers conn and sends it the current state.
func (h *Hub) AddConnection(conn *websocket.Conn) string {
	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	h.clients[c.id] = c
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Printf("STREAM: client %s connected (%d total)", c.id, count)

	go h.writeLoop(c)
	go h.readLoop(c)

	h.sendSnapshot(c)
	return c.id
}

// EntityChanged implements driver.Listener.
func (h *Hub) EntityChanged(change driver.EntityChange) {
	h.broadcast(EntityChangeMessage{
		Type:       TypeEntityChange,
		EntityID:   change.EntityID,
		Kind:       string(change.Kind),
		Attributes: change.Attributes.ToMap(),
		Timestamp:  change.Timestamp.UTC().Format(time.RFC3339Nano),
	})
}

// HubStateChanged implements driver.Listener.
func (h *Hub) HubStateChanged(state driver.HubState) {
	h.broadcast(deviceStateMessage(state))
}

// GetStatus returns the number of connected clients.
func (h *Hub) GetStatus() Status {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Status{Clients: len(h.clients)}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*client)
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

func (h *Hub) broadcast(message any) {
	payload, err := json.Marshal(message)
	if err != nil {
		h.logger.Printf("STREAM: failed to encode message: %v", err)
		return
	}

	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.enqueue(c, payload)
	}
}

func (h *Hub) enqueue(c *client, payload []byte) {
	select {
	case <-c.done:
	case c.send <- payload:
	default:
		h.logger.Printf("STREAM: client %s too slow, dropping", c.id)
		h.remove(c)
	}
}

func (h *Hub) sendSnapshot(c *client) {
	if h.source == nil {
		return
	}
	messages := []any{deviceStateMessage(h.source.HubState())}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, entity := range h.source.Entities() {
		messages = append(messages, EntityChangeMessage{
			Type:       TypeEntityChange,
			EntityID:   entity.ID,
			Kind:       "snapshot",
			Attributes: entity.Attributes.ToMap(),
			Timestamp:  now,
		})
	}
	for _, message := range messages {
		payload, err := json.Marshal(message)
		if err != nil {
			continue
		}
		h.enqueue(c, payload)
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.remove(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(PingMessage{Type: TypePing}); err != nil {
				h.logger.Printf("STREAM: failed to send ping to %s: %v", c.id, err)
				h.remove(c)
				return
			}
		case <-c.done:
			return
		}
	}
}

func (h *Hub) readLoop(c *client) {
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			h.remove(c)
			return
		}
		h.handleMessage(c, message)
	}
}

func (h *Hub) handleMessage(c *client, message []byte) {
	var incoming IncomingMessage
	if err := json.Unmarshal(message, &incoming); err != nil {
		h.logger.Printf("STREAM: failed to parse message from %s: %v", c.id, err)
		return
	}

	switch incoming.Type {
	case TypePong:
		// Keepalive response, nothing to do
	case TypePing:
		payload, _ := json.Marshal(PingMessage{Type: TypePong})
		h.enqueue(c, payload)
	case TypeGetEntities:
		h.sendSnapshot(c)
	default:
		h.logger.Printf("STREAM: unknown message type from %s: %s", c.id, incoming.Type)
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c.id]
	delete(h.clients, c.id)
	count := len(h.clients)
	h.mu.Unlock()

	c.close()
	if ok {
		h.logger.Printf("STREAM: client %s disconnected (%d remaining)", c.id, count)
	}
}

func deviceStateMessage(state driver.HubState) DeviceStateMessage {
	return DeviceStateMessage{
		Type:      TypeDeviceState,
		State:     string(state),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}
