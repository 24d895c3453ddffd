package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/danabrams/codegen/internal/logging"
	"github.com/danabrams/codegen/internal/manager"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are enforced by the CORS configuration and the API key.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 256
)

// Event types pushed to websocket clients.
const (
	EventSessionActivated = "session.activated"
	EventSessionsChanged  = "sessions.changed"
	EventTurnStarted      = "turn.started"
	EventTurnCommitted    = "turn.committed"
	EventTurnFailed       = "turn.failed"
)

// WSMessage represents a message sent over WebSocket.
type WSMessage struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// TurnEvent is the payload of turn.started and turn.failed.
type TurnEvent struct {
	SessionID string `json:"session_id"`
	Prompt    string `json:"prompt"`
	Message   string `json:"message,omitempty"`
}

// ClientMessage represents a message from client to server.
type ClientMessage struct {
	Type string `json:"type"`
}

// Client represents a WebSocket client connection.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub fans manager events out to every connected client. It implements
// manager.Renderer.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}
}

var _ manager.Renderer = (*Hub)(nil)

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, sendBuffer),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop and returns when ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return nil

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			logging.Debug().Str("client", client.id).Msg("websocket client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- msg:
				default:
					// Buffer full, drop client
					go h.remove(client)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// add registers a client. It reports false once the hub has stopped.
func (h *Hub) add(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// publish queues a message for all clients. It never blocks the caller; when
// the queue is full the event is dropped.
func (h *Hub) publish(eventType string, data any) {
	msg, err := json.Marshal(WSMessage{Type: eventType, Data: data})
	if err != nil {
		logging.Error().Err(err).Str("type", eventType).Msg("websocket: marshal event")
		return
	}

	select {
	case h.broadcast <- msg:
	default:
		logging.Warn().Str("type", eventType).Msg("websocket: broadcast queue full, event dropped")
	}
}

func (h *Hub) SessionActivated(view manager.View) {
	h.publish(EventSessionActivated, view)
}

func (h *Hub) SessionsChanged(list []manager.Summary) {
	h.publish(EventSessionsChanged, list)
}

func (h *Hub) TurnStarted(sessionID, prompt string) {
	h.publish(EventTurnStarted, TurnEvent{SessionID: sessionID, Prompt: prompt})
}

func (h *Hub) TurnCommitted(result manager.TurnResult) {
	h.publish(EventTurnCommitted, result)
}

func (h *Hub) TurnFailed(sessionID, prompt, message string) {
	h.publish(EventTurnFailed, TurnEvent{SessionID: sessionID, Prompt: prompt, Message: message})
}

// handleEventsWS upgrades the connection and streams manager events. The
// current session list and active session are sent first.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn().Err(err).Msg("websocket: upgrade")
		return
	}

	client := &Client{
		id:   uuid.NewString(),
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	if view, err := s.manager.View(s.manager.ActiveID()); err == nil {
		if data, err := json.Marshal(WSMessage{Type: EventSessionActivated, Data: view}); err == nil {
			client.send <- data
		}
	}
	if data, err := json.Marshal(WSMessage{Type: EventSessionsChanged, Data: s.manager.List()}); err == nil {
		client.send <- data
	}

	if !s.hub.add(client) {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump reads messages from the WebSocket connection.
func (c *Client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Warn().Err(err).Str("client", c.id).Msg("websocket: read error")
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		if msg.Type == "pong" {
			c.conn.SetReadDeadline(time.Now().Add(pongWait))
		}
	}
}

// writePump writes messages to the WebSocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			pingMsg, _ := json.Marshal(WSMessage{Type: "ping"})
			if err := c.conn.WriteMessage(websocket.TextMessage, pingMsg); err != nil {
				return
			}
		}
	}
}
