// internal/handlers/hub.go
package handlers

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// outBufferSize is how many messages a slow client may lag behind before
// further pushes are dropped.
const outBufferSize = 32

// Client is a single websocket connection. The seat fields record which
// room seat the connection currently drives, if any.
type Client struct {
	ID      string
	OutChan chan map[string]interface{}

	logger *logrus.Logger

	mu       sync.Mutex
	closed   bool
	roomID   string
	playerID string
}

func NewClient(id string, logger *logrus.Logger) *Client {
	return &Client{
		ID:      id,
		OutChan: make(chan map[string]interface{}, outBufferSize),
		logger:  logger,
	}
}

// Write pushes a message onto OutChan without blocking. It drops the
// message when the client is closed or its buffer is full.
func (c *Client) Write(msg map[string]interface{}) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.OutChan <- msg:
		return true
	default:
		msgType, _ := msg["type"].(string)
		c.logger.WithFields(logrus.Fields{"conn": c.ID, "type": msgType}).Warn("OutChan full, dropped message")
		return false
	}
}

// WriteError sends an action rejection to this client only.
func (c *Client) WriteError(event, code, message string) {
	c.Write(map[string]interface{}{
		"type":    "error",
		"event":   event,
		"error":   code,
		"message": message,
	})
}

// Close stops further writes and closes OutChan so the write pump exits.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.OutChan)
	}
}

// Seat returns the room and player this connection is seated as.
func (c *Client) Seat() (roomID, playerID string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID, c.playerID, c.playerID != ""
}

func (c *Client) setSeat(roomID, playerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roomID, c.playerID = roomID, playerID
}

// releaseSeat unseats the client only if it still holds the given seat.
func (c *Client) releaseSeat(roomID, playerID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.roomID != roomID || c.playerID != playerID {
		return false
	}
	c.roomID, c.playerID = "", ""
	return true
}

// Hub maps connection ids to live clients and implements game.Transport.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  *logrus.Logger
}

func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		logger:  logger,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.ID] = c
}

// Unregister forgets the client and closes it.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if h.clients[c.ID] == c {
		delete(h.clients, c.ID)
	}
	h.mu.Unlock()
	c.Close()
}

// Get returns the live client with the given connection id.
func (h *Hub) Get(connID string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[connID]
	return c, ok
}

// Len reports the number of open connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Deliver queues an event for one connection. Unknown ids are ignored: the
// connection may have gone away between the snapshot and the push.
func (h *Hub) Deliver(connID, event string, payload interface{}) {
	c, ok := h.Get(connID)
	if !ok {
		return
	}
	c.Write(map[string]interface{}{
		"type":  event,
		"state": payload,
	})
}
