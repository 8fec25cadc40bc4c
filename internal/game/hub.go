package game

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"go.uber.org/zap"
)

const (
	BROADCAST_BUFFER = 256
	CLIENT_BUFFER    = 64
	WRITE_TIMEOUT    = 10 * time.Second
)

// conn is the part of *websocket.Conn the hub writes to.
type conn interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client owns one connection. Every outbound frame goes through send and is
// written by a single goroutine, so frames arrive in the order queued.
type Client struct {
	conn          conn
	participantID string
	send          chan []byte
	ready         chan struct{}
	closeOnce     sync.Once
}

// Hub relays engine state to every connected websocket client.
type Hub struct {
	clients    map[string]*Client
	broadcast  chan WSMessage
	register   chan *Client
	unregister chan string
	done       chan struct{}
	logger     *zap.Logger
	mu         sync.RWMutex
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[string]*Client),
		broadcast:  make(chan WSMessage, BROADCAST_BUFFER),
		register:   make(chan *Client),
		unregister: make(chan string),
		done:       make(chan struct{}),
		logger:     logger.Named("hub"),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for id, client := range h.clients {
				close(client.send)
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			if old, ok := h.clients[client.participantID]; ok {
				close(old.send)
			}
			h.clients[client.participantID] = client
			total := len(h.clients)
			h.mu.Unlock()
			go client.writePump(h.logger)
			close(client.ready)
			h.logger.Info("client connected", zap.String("participant_id", client.participantID), zap.Int("total", total))

		case id := <-h.unregister:
			h.mu.Lock()
			if client, ok := h.clients[id]; ok {
				delete(h.clients, id)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client disconnected", zap.String("participant_id", id), zap.Int("total", total))

		case message := <-h.broadcast:
			data, err := json.Marshal(message)
			if err != nil {
				h.logger.Error("marshal broadcast", zap.String("type", message.Type), zap.Error(err))
				continue
			}

			h.mu.RLock()
			for _, client := range h.clients {
				client.enqueue(data, h.logger)
			}
			h.mu.RUnlock()
		}
	}
}

// Close stops Run and closes every client connection.
func (h *Hub) Close() {
	select {
	case <-h.done:
	default:
		close(h.done)
	}
}

// Broadcast queues a message for all clients without blocking.
func (h *Hub) Broadcast(message WSMessage) {
	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("broadcast channel full, dropping message", zap.String("type", message.Type))
	}
}

func (h *Hub) PublishSnapshot(snapshot RoundSnapshot) {
	h.Broadcast(WSMessage{Type: "snapshot", Data: snapshot})
}

func (h *Hub) PublishTimer(seconds int) {
	h.Broadcast(WSMessage{Type: "timer", Data: seconds})
}

func (h *Hub) PublishLedger(participants []Participant) {
	h.Broadcast(WSMessage{Type: "ledger", Data: participants})
}

// SendTo queues a message for a single participant's connection, behind
// anything already queued for it.
func (h *Hub) SendTo(participantID string, message WSMessage) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("marshal direct message", zap.String("type", message.Type), zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if client, ok := h.clients[participantID]; ok {
		client.enqueue(data, h.logger)
	}
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// enqueue must be called with the hub lock held so send is not closed
// underneath it. A client whose queue is full is cut off rather than
// skipping frames.
func (c *Client) enqueue(data []byte, logger *zap.Logger) {
	select {
	case c.send <- data:
	default:
		logger.Warn("client queue full, closing connection", zap.String("participant_id", c.participantID))
		c.closeConn()
	}
}

func (c *Client) writePump(logger *zap.Logger) {
	defer c.closeConn()
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(WRITE_TIMEOUT))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			logger.Warn("write failed", zap.String("participant_id", c.participantID), zap.Error(err))
			c.closeConn()
			for range c.send {
			}
			return
		}
	}
}

func (c *Client) closeConn() {
	c.closeOnce.Do(func() { c.conn.Close() })
}

func (h *Hub) RegisterClient(conn *websocket.Conn, participantID string) {
	h.registerConn(conn, participantID)
}

// registerConn returns once the client is reachable through SendTo.
func (h *Hub) registerConn(c conn, participantID string) {
	client := &Client{
		conn:          c,
		participantID: participantID,
		send:          make(chan []byte, CLIENT_BUFFER),
		ready:         make(chan struct{}),
	}
	select {
	case h.register <- client:
		<-client.ready
	case <-h.done:
	}
}

func (h *Hub) UnregisterClient(participantID string) {
	select {
	case h.unregister <- participantID:
	case <-h.done:
	}
}
