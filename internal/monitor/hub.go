// Package monitor streams controller notifications to WebSocket clients as JSON.
package monitor

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

const (
	sendBufferSize = 256
	writeWait      = 5 * time.Second
)

// Hub tracks connected clients. Broadcast never blocks: a client whose buffer is full
// misses the message.
type Hub struct {
	log     *zap.Logger
	seq     atomic.Uint64
	clients *xsync.MapOf[*Client, struct{}]
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		log:     log,
		clients: xsync.NewMapOf[*Client, struct{}](),
	}
}

func (h *Hub) Len() int {
	return h.clients.Size()
}

func (h *Hub) nextSeq() uint64 {
	return h.seq.Inc()
}

func (h *Hub) register(c *Client) {
	h.clients.Store(c, struct{}{})
	h.log.Debug("Client connected", zap.String("remote", c.remote), zap.Int("clients", h.Len()))
}

func (h *Hub) unregister(c *Client) {
	if _, ok := h.clients.LoadAndDelete(c); !ok {
		return
	}
	c.closeSend()
	h.log.Debug("Client disconnected", zap.String("remote", c.remote), zap.Int("clients", h.Len()))
}

// Broadcast sends a message of the given type to every client.
func (h *Hub) Broadcast(typ string, data any) {
	msg, err := json.Marshal(newMessage(h.nextSeq(), typ, data))
	if err != nil {
		h.log.Error("Failed to marshal message", zap.String("type", typ), zap.Error(err))
		return
	}
	h.clients.Range(func(c *Client, _ struct{}) bool {
		c.enqueue(msg)
		return true
	})
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.clients.Range(func(c *Client, _ struct{}) bool {
		c.conn.Close()
		return true
	})
}

// Client is one WebSocket connection.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	remote  string
	dropped atomic.Uint64

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func newClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		remote: conn.RemoteAddr().String(),
		send:   make(chan []byte, sendBufferSize),
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) enqueue(msg []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
		if c.dropped.Inc() == 1 {
			c.hub.log.Warn("Client too slow, dropping messages", zap.String("remote", c.remote))
		}
	}
}

func (c *Client) reply(typ string, data any, err error) {
	msg := newMessage(c.hub.nextSeq(), typ, data)
	if err != nil {
		msg.Type = TypeError
		msg.Error = err.Error()
	}
	b, mErr := json.Marshal(msg)
	if mErr != nil {
		c.hub.log.Error("Failed to marshal reply", zap.Error(mErr))
		return
	}
	c.enqueue(b)
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (c *Client) readPump(handle func(c *Client, msg ClientMessage)) {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.hub.log.Debug("Invalid client message", zap.String("remote", c.remote), zap.Error(err))
			c.reply(TypeError, nil, err)
			continue
		}
		handle(c, msg)
	}
}
