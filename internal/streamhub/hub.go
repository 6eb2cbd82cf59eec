// Package streamhub is the live footprint/health feed, additive to the
// core REST surface: a websocket hub broadcasting a small JSON event
// whenever internal/httpapi creates or completes a transaction
// ("transaction.created", "transaction.completed"). Compliance
// certificate issuance and health snapshots publish no events. Broadcast payloads
// are a named Event envelope rather than a bare interface{}.
package streamhub

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

// Event is the envelope broadcast to every connected client.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type clientInterface interface {
	sendChannel() chan []byte
	close()
}

// Hub manages websocket connections and fans broadcast events out to all
// of them, the same register/unregister/broadcast channel shape as the
// teacher's WebSocketHub.
type Hub struct {
	clients    map[clientInterface]bool
	broadcast  chan Event
	register   chan clientInterface
	unregister chan clientInterface
	mu         sync.RWMutex
	ctx        context.Context
	cancel     context.CancelFunc

	// AllowedOrigins restricts Origin headers on upgrade. Empty means
	// allow any origin (suitable for same-origin dashboards behind a
	// reverse proxy that already restricts access).
	AllowedOrigins map[string]bool
}

// NewHub constructs a Hub. Call Run in its own goroutine before serving
// any connections.
func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[clientInterface]bool),
		broadcast:  make(chan Event, 256),
		register:   make(chan clientInterface),
		unregister: make(chan clientInterface),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Run starts the hub's message processing loop. It blocks until Stop is
// called; run it in its own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.sendChannel())
			}
			h.mu.Unlock()

		case event := <-h.broadcast:
			data, err := json.Marshal(event)
			if err != nil {
				slog.Error("streamhub: failed to marshal event", "type", event.Type, "error", err)
				continue
			}

			h.mu.Lock()
			for client := range h.clients {
				sendChan := client.sendChannel()
				select {
				case sendChan <- data:
				default:
					close(sendChan)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()

		case <-h.ctx.Done():
			return
		}
	}
}

// Stop gracefully shuts down the hub, closing every client connection.
func (h *Hub) Stop() {
	h.cancel()

	h.mu.Lock()
	for client := range h.clients {
		close(client.sendChannel())
		client.close()
	}
	h.clients = make(map[clientInterface]bool)
	h.mu.Unlock()
}

// Broadcast implements httpapi.Broadcaster. It drops the event rather than
// blocking if the internal queue is full.
func (h *Hub) Broadcast(eventType string, payload any) {
	select {
	case h.broadcast <- Event{Type: eventType, Payload: payload}:
	default:
		slog.Warn("streamhub: broadcast queue full, dropping event", "type", eventType)
	}
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

func (c *client) sendChannel() chan []byte { return c.send }

func (c *client) close() {
	if c.conn != nil {
		_ = c.conn.Close(websocket.StatusNormalClosure, "")
	}
}

// ServeHTTP upgrades the request to a websocket connection and registers
// it with the hub. Mounted at GET /api/v1/stream by internal/httpapi.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if origin := r.Header.Get("Origin"); origin != "" && len(h.AllowedOrigins) > 0 {
		if !h.AllowedOrigins[origin] {
			http.Error(w, "forbidden: invalid origin", http.StatusForbidden)
			return
		}
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Error("streamhub: upgrade failed", "error", err)
		return
	}

	c := &client{hub: h, conn: conn, send: make(chan []byte, 256)}
	h.register <- c

	go c.writePump()
	go c.readPump()
}

func (c *client) writePump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for message := range c.send {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := c.conn.Write(ctx, websocket.MessageText, message)
		cancel()
		if err != nil {
			return
		}
	}
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		if _, _, err := c.conn.Read(context.Background()); err != nil {
			return
		}
	}
}
