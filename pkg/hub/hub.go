// Package hub fans dashboard updates out to websocket viewers. The web
// server runs one hub for status documents and one for overlay frames.
package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Message is one frame sent to every client of a hub. The dashboard uses
// text frames for status documents and binary frames for overlay JPEGs.
type Message struct {
	Data   []byte
	Binary bool
}

// StatusMessage wraps an encoded status document.
func StatusMessage(data []byte) Message {
	return Message{Data: data}
}

// OverlayMessage wraps an annotated JPEG frame.
func OverlayMessage(jpeg []byte) Message {
	return Message{Data: jpeg, Binary: true}
}

// Hub maintains the set of active clients and broadcasts messages to them
type Hub struct {
	name   string
	logger *slog.Logger

	// Registered clients, owned by Run
	clients map[*Client]bool

	broadcast  chan Message
	register   chan *Client
	unregister chan *Client

	// Guards the client count for readers outside Run
	mu    sync.RWMutex
	count int

	running atomic.Bool
	dropped atomic.Uint64
	stopped chan struct{}

	// Optional first message for new clients, e.g. the current status
	greet func() (Message, bool)
}

// New creates a new Hub
func New(name string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		name:       name,
		logger:     logger.With("component", "hub", "hub", name),
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stopped:    make(chan struct{}),
	}
}

// OnConnect sets a function whose message is queued for every new client.
// Must be called before Run.
func (h *Hub) OnConnect(fn func() (Message, bool)) {
	h.greet = fn
}

// Run starts the hub's main loop and returns when ctx is cancelled, after
// disconnecting every client. Call it in a goroutine.
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer func() {
		h.running.Store(false)
		close(h.stopped)
	}()

	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.remove(client)
			}
			return

		case client := <-h.register:
			h.clients[client] = true
			h.setCount()
			if h.greet != nil {
				if msg, ok := h.greet(); ok {
					client.send <- msg
				}
			}
			h.logger.Debug("client connected", "total", len(h.clients))

		case client := <-h.unregister:
			if h.clients[client] {
				h.remove(client)
			}
			h.logger.Debug("client disconnected", "remaining", len(h.clients))

		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Client's buffer is full - they're too slow
					h.remove(client)
					h.logger.Warn("dropped slow client")
				}
			}
		}
	}
}

func (h *Hub) remove(client *Client) {
	delete(h.clients, client)
	close(client.send)
	h.setCount()
}

func (h *Hub) setCount() {
	h.mu.Lock()
	h.count = len(h.clients)
	h.mu.Unlock()
}

// Broadcast sends a message to all connected clients. Messages are dropped
// when the hub is backed up.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.dropped.Add(1)
		h.logger.Debug("broadcast channel full, dropping message")
	}
}

// BroadcastJSON encodes and broadcasts a JSON message
func (h *Hub) BroadcastJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(StatusMessage(data))
	return nil
}

// BroadcastBinary broadcasts an overlay frame
func (h *Hub) BroadcastBinary(data []byte) {
	h.Broadcast(OverlayMessage(data))
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Dropped returns how many broadcasts were dropped.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// IsRunning returns whether the hub is running
func (h *Hub) IsRunning() bool {
	return h.running.Load()
}
