// Package realtime fans conversation events out to connected operator
// WebSocket sockets.
package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"commhub/internal/metrics"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	// Time allowed to read the next pong message from the peer
	pongWait = 30 * time.Second
	// Send pings to the peer with this period; must be less than pongWait
	pingPeriod = 20 * time.Second
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second
	// Frames buffered per socket before new ones are dropped
	sendBuffer = 256
	// Maximum client frame size
	maxMessageSize = 4096
)

// Event types
const (
	EventNewMessage      = "new_message"
	EventMessageDeleted  = "message_deleted"
	EventManagerAssigned = "manager_assigned"
	EventTyping          = "typing"
	EventConnection      = "connection"
	EventPong            = "pong"
)

// Relay receives a copy of every broadcast, e.g. to mirror it onto a bus
type Relay interface {
	Publish(ctx context.Context, eventType string, data []byte)
}

// TypingHook is called when an operator types in a conversation
type TypingHook func(ctx context.Context, conversationID string)

// Hub is the registry of live sockets keyed by user id. A user has at most
// one socket; reconnecting replaces the previous one.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	relay   Relay
	typing  TypingHook
}

// NewHub creates a new hub
func NewHub() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

// WithRelay mirrors broadcasts onto r
func (h *Hub) WithRelay(r Relay) *Hub {
	h.relay = r
	return h
}

// OnTyping registers a hook for operator typing frames
func (h *Hub) OnTyping(fn TypingHook) *Hub {
	h.typing = fn
	return h
}

// Client is one connected socket
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	userID   string
	userName string
	send     chan []byte
	done     chan struct{}
	once     sync.Once
}

// Serve registers the socket and starts its pumps
func (h *Hub) Serve(conn *websocket.Conn, userID, userName string) *Client {
	c := &Client{
		hub:      h,
		conn:     conn,
		userID:   userID,
		userName: userName,
		send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
	}

	h.mu.Lock()
	prev := h.clients[userID]
	h.clients[userID] = c
	h.mu.Unlock()

	if prev != nil {
		prev.close()
		log.Debug().Str("user_id", userID).Msg("WebSocket replaced by a new connection")
	} else {
		metrics.WebSocketConnections.Inc()
	}
	log.Info().Str("user_id", userID).Msg("WebSocket client connected")

	if frame, err := encode(EventConnection, map[string]interface{}{"status": "connected"}); err == nil {
		c.trySend(frame)
	}

	go c.writePump()
	go c.readPump()
	return c
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	current, ok := h.clients[c.userID]
	if ok && current == c {
		delete(h.clients, c.userID)
	}
	h.mu.Unlock()
	c.close()
	if ok && current == c {
		metrics.WebSocketConnections.Dec()
		log.Info().Str("user_id", c.userID).Msg("WebSocket client disconnected")
	}
}

// Count returns the number of connected users
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends an event to every socket. It never blocks: a socket whose
// buffer is full misses the frame.
func (h *Hub) Broadcast(ctx context.Context, eventType string, payload map[string]interface{}) {
	h.broadcast(ctx, eventType, payload, "")
}

func (h *Hub) broadcast(ctx context.Context, eventType string, payload map[string]interface{}, skipUser string) {
	frame, err := encode(eventType, payload)
	if err != nil {
		log.Error().Err(err).Str("event", eventType).Msg("Failed to encode broadcast")
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for id, c := range h.clients {
		if id != skipUser {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.trySend(frame)
	}

	if h.relay != nil && skipUser == "" {
		h.relay.Publish(ctx, eventType, frame)
	}
}

func encode(eventType string, payload map[string]interface{}) ([]byte, error) {
	out := make(map[string]interface{}, len(payload)+1)
	for k, v := range payload {
		out[k] = v
	}
	out["type"] = eventType
	return json.Marshal(out)
}

func (c *Client) trySend(frame []byte) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- frame:
	default:
		metrics.WebSocketDroppedFrames.Inc()
		log.Warn().Str("user_id", c.userID).Msg("WebSocket buffer full, dropping frame")
	}
}

func (c *Client) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// clientFrame is a client → server frame
type clientFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
}

func (c *Client) readPump() {
	defer c.hub.unregister(c)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("user_id", c.userID).Msg("WebSocket read error")
			}
			return
		}
		// Any frame proves the peer is alive
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		switch frame.Type {
		case "ping":
			if out, err := encode(EventPong, map[string]interface{}{"status": "ok"}); err == nil {
				c.trySend(out)
			}
		case EventTyping:
			if frame.ConversationID == "" {
				continue
			}
			c.hub.broadcast(context.Background(), EventTyping, map[string]interface{}{
				"conversation_id": frame.ConversationID,
				"user_id":         c.userID,
				"user_name":       c.userName,
			}, c.userID)
			if c.hub.typing != nil {
				go c.hub.typing(context.Background(), frame.ConversationID)
			}
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.hub.unregister(c)
	}()

	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Warn().Err(err).Str("user_id", c.userID).Msg("WebSocket write error")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Warn().Err(err).Str("user_id", c.userID).Msg("WebSocket ping failed")
				return
			}
		}
	}
}
