package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jason-s-yu/courts/internal/game"
	"github.com/sirupsen/logrus"
)

const (
	clientSendBuffer = 32
	writeTimeout     = 5 * time.Second
)

// client is one open socket. Writes go through send so each socket sees events in order.
type client struct {
	playerID uuid.UUID
	conn     *websocket.Conn
	send     chan []byte
	once     sync.Once

	// set before send is closed; the writer closes the socket with it once drained
	closeCode   websocket.StatusCode
	closeReason string
}

func (c *client) closeSend() {
	c.once.Do(func() { close(c.send) })
}

func (c *client) closeWith(code websocket.StatusCode, reason string) {
	c.once.Do(func() {
		c.closeCode = code
		c.closeReason = reason
		close(c.send)
	})
}

// writeLoop drains send until it is closed or a write fails.
func (c *client) writeLoop(log logrus.FieldLogger) {
	for data := range c.send {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := c.conn.Write(ctx, websocket.MessageText, data)
		cancel()
		if err != nil {
			log.WithError(err).WithField("player_id", c.playerID).Debug("socket write failed")
			_ = c.conn.CloseNow()
			// keep draining so senders never block on a dead socket
			for range c.send {
			}
			return
		}
	}
	if c.closeCode != 0 {
		_ = c.conn.Close(c.closeCode, c.closeReason)
	}
}

// hub fans a game's events out to the sockets of its players. Broadcasts arrive with the game
// lock held, so the hub never calls back into the game.
type hub struct {
	log     logrus.FieldLogger
	mu      sync.Mutex
	clients map[uuid.UUID]map[*client]struct{}
}

func newHub(log logrus.FieldLogger) *hub {
	return &hub{log: log, clients: make(map[uuid.UUID]map[*client]struct{})}
}

func (h *hub) add(playerID uuid.UUID, conn *websocket.Conn) *client {
	c := &client{playerID: playerID, conn: conn, send: make(chan []byte, clientSendBuffer)}
	h.mu.Lock()
	if h.clients[playerID] == nil {
		h.clients[playerID] = make(map[*client]struct{})
	}
	h.clients[playerID][c] = struct{}{}
	h.mu.Unlock()
	go c.writeLoop(h.log)
	return c
}

func (h *hub) remove(c *client) {
	h.mu.Lock()
	if set := h.clients[c.playerID]; set != nil {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.playerID)
		}
	}
	h.mu.Unlock()
	c.closeSend()
}

// connected reports how many sockets playerID has open.
func (h *hub) connected(playerID uuid.UUID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[playerID])
}

func (h *hub) broadcast(ev game.GameEvent) {
	data := game.EventBytes(ev)
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, set := range h.clients {
		for c := range set {
			h.enqueue(c, data)
		}
	}
}

func (h *hub) sendTo(playerID uuid.UUID, ev game.GameEvent) {
	data := game.EventBytes(ev)
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients[playerID] {
		h.enqueue(c, data)
	}
}

// sendClient queues ev for a single socket, if it is still registered.
func (h *hub) sendClient(c *client, ev game.GameEvent) {
	data := game.EventBytes(ev)
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.playerID][c]; ok {
		h.enqueue(c, data)
	}
}

// closeClient closes one socket once its pending events are written.
func (h *hub) closeClient(c *client, code websocket.StatusCode, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set := h.clients[c.playerID]; set != nil {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.playerID)
		}
	}
	c.closeWith(code, reason)
}

// enqueue never blocks; a client too slow to keep up is dropped. Assumes h.mu is held.
func (h *hub) enqueue(c *client, data []byte) {
	select {
	case c.send <- data:
	default:
		h.log.WithField("player_id", c.playerID).Warn("socket send buffer full, closing")
		delete(h.clients[c.playerID], c)
		c.closeWith(websocket.StatusPolicyViolation, "too slow")
	}
}

// closeAll closes every socket with the given status once its pending events are written.
func (h *hub) closeAll(code websocket.StatusCode, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, set := range h.clients {
		for c := range set {
			c.closeWith(code, reason)
		}
		delete(h.clients, id)
	}
}
