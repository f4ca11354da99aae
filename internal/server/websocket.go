package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

// ActivityEvent is one item on the live activity feed: a search, a rule
// match, or an interaction lookup, broadcast to subscribed clients.
type ActivityEvent struct {
	Kind    string    `json:"kind"` // "search", "match_rules", "find_interactions"
	Query   string    `json:"query,omitempty"`
	CardIDs []string  `json:"card_ids,omitempty"`
	Results int       `json:"results"`
	At      time.Time `json:"at"`
}

// ActivityHub manages websocket subscribers to the activity feed.
type ActivityHub struct {
	clients    map[*activityClient]bool
	broadcast  chan ActivityEvent
	register   chan *activityClient
	unregister chan *activityClient
	mu         sync.Mutex
	ctx        context.Context
	cancel     context.CancelFunc
}

type activityClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewActivityHub creates an activity hub. Call Run to start its loop.
func NewActivityHub() *ActivityHub {
	ctx, cancel := context.WithCancel(context.Background())
	return &ActivityHub{
		clients:    make(map[*activityClient]bool),
		broadcast:  make(chan ActivityEvent, 256),
		register:   make(chan *activityClient),
		unregister: make(chan *activityClient),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Run processes registrations and broadcasts until Stop is called.
func (h *ActivityHub) Run() {
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
				close(client.send)
			}
			h.mu.Unlock()

		case event := <-h.broadcast:
			data, err := json.Marshal(event)
			if err != nil {
				log.Printf("server: marshal activity event: %v", err)
				continue
			}
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- data:
				default:
					// Slow consumer, drop it.
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()

		case <-h.ctx.Done():
			return
		}
	}
}

// Stop shuts the hub down and disconnects all clients.
func (h *ActivityHub) Stop() {
	h.cancel()

	h.mu.Lock()
	for client := range h.clients {
		close(client.send)
		_ = client.conn.Close(websocket.StatusNormalClosure, "")
	}
	h.clients = make(map[*activityClient]bool)
	h.mu.Unlock()
}

// Publish enqueues an event for broadcast. Events are dropped rather than
// blocking the request path when the feed is backed up.
func (h *ActivityHub) Publish(event ActivityEvent) {
	select {
	case h.broadcast <- event:
	default:
		log.Println("server: activity feed full, dropping event")
	}
}

// ServeHTTP handles websocket upgrade requests for the activity feed.
func (h *ActivityHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Printf("server: websocket upgrade failed: %v", err)
		return
	}

	client := &activityClient{
		conn: conn,
		send: make(chan []byte, 256),
	}
	select {
	case h.register <- client:
	case <-h.ctx.Done():
		_ = conn.Close(websocket.StatusGoingAway, "shutting down")
		return
	}

	go client.writePump(h)
	go client.readPump(h)
}

// drop unregisters a client, giving up when the hub has already stopped so
// pump goroutines never block on a drained loop.
func (h *ActivityHub) drop(c *activityClient) {
	select {
	case h.unregister <- c:
	case <-h.ctx.Done():
	}
}

func (c *activityClient) writePump(h *ActivityHub) {
	defer func() {
		h.drop(c)
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

// readPump drains client messages to detect disconnections; the feed is
// one-way.
func (c *activityClient) readPump(h *ActivityHub) {
	defer func() {
		h.drop(c)
		_ = c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		if _, _, err := c.conn.Read(context.Background()); err != nil {
			return
		}
	}
}
