package device

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-lazarillo/pkg/protocol"
)

// Handset is one handset connected to the Server.
type Handset struct {
	ID        string
	Conn      *websocket.Conn
	Connected time.Time
	LastSeen  time.Time
	Hello     *protocol.HelloData

	mu sync.Mutex
}

func (h *Handset) write(kind int, data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	return h.Conn.WriteMessage(kind, data)
}

func (h *Handset) touch(hello *protocol.HelloData) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.LastSeen = time.Now()
	if hello != nil {
		h.Hello = hello
	}
}

// HandsetInfo describes a connected handset.
type HandsetInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Formats   []string  `json:"formats,omitempty"`
	Connected time.Time `json:"connected"`
	LastSeen  time.Time `json:"last_seen"`
}

// ServerStats contains server counters.
type ServerStats struct {
	HandsetCount     int    `json:"handset_count"`
	MessagesReceived uint64 `json:"messages_received"`
	MessagesSent     uint64 `json:"messages_sent"`
	PacketsSent      uint64 `json:"packets_sent"`
}

// Server accepts handsets dialing in over the dashboard's HTTP port.
// Feedback sent through it goes to every connected handset.
type Server struct {
	mu       sync.RWMutex
	handsets map[string]*Handset
	logger   *slog.Logger

	received, sent, packets atomic.Uint64
}

// NewServer creates an empty server.
func NewServer(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		handsets: make(map[string]*Handset),
		logger:   logger.With("component", "device"),
	}
}

// RegisterRoutes mounts /ws/device and /ws/device/:id on router.
func (s *Server) RegisterRoutes(router fiber.Router) {
	upgrade := func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
	router.Get("/ws/device", upgrade, websocket.New(s.handleHandset))
	router.Get("/ws/device/:id", upgrade, websocket.New(s.handleHandset))
}

func (s *Server) handleHandset(c *websocket.Conn) {
	id := c.Params("id")
	if id == "" {
		id = uuid.NewString()
	}

	h := &Handset{
		ID:        id,
		Conn:      c,
		Connected: time.Now(),
		LastSeen:  time.Now(),
	}

	s.mu.Lock()
	if old, ok := s.handsets[id]; ok {
		old.Conn.Close()
	}
	s.handsets[id] = h
	count := len(s.handsets)
	s.mu.Unlock()
	s.logger.Info("handset connected", "id", id, "total", count)

	defer func() {
		s.mu.Lock()
		if s.handsets[id] == h {
			delete(s.handsets, id)
		}
		count := len(s.handsets)
		s.mu.Unlock()
		s.logger.Info("handset disconnected", "id", id, "total", count)
	}()

	c.SetReadLimit(maxMessageSize)
	for {
		kind, data, err := c.ReadMessage()
		if err != nil {
			s.logger.Debug("handset read failed", "id", id, "error", err)
			return
		}
		h.touch(nil)
		if kind != websocket.TextMessage {
			continue
		}
		s.received.Add(1)
		s.handleMessage(h, data)
	}
}

func (s *Server) handleMessage(h *Handset, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		s.logger.Debug("bad handset message", "id", h.ID, "error", err)
		return
	}

	switch msg.Type {
	case protocol.TypeHello:
		if hello, err := msg.GetHelloData(); err == nil {
			h.touch(hello)
			s.logger.Info("handset identified", "id", h.ID, "device_id", hello.DeviceID)
		}
	case protocol.TypePing:
		pong, err := msg.Pong()
		if err != nil {
			return
		}
		if err := s.sendTo(h, pong); err != nil {
			s.logger.Debug("pong failed", "id", h.ID, "error", err)
		}
	case protocol.TypeAck:
		if ack, err := msg.GetAckData(); err == nil {
			s.logger.Debug("handset ack", "id", h.ID, "of", ack.Of)
		}
	}
}

func (s *Server) sendTo(h *Handset, msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	if err := h.write(websocket.TextMessage, data); err != nil {
		return err
	}
	s.sent.Add(1)
	return nil
}

// Send writes msg to one handset.
func (s *Server) Send(id string, msg *protocol.Message) error {
	s.mu.RLock()
	h, ok := s.handsets[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrHandsetNotFound, id)
	}
	return s.sendTo(h, msg)
}

// SendMessage implements Conn by broadcasting to every handset. It fails
// only if no handset received the message.
func (s *Server) SendMessage(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	n, err := s.broadcast(websocket.TextMessage, data)
	s.sent.Add(uint64(n))
	return err
}

// SendBinary implements Conn.
func (s *Server) SendBinary(data []byte) error {
	n, err := s.broadcast(websocket.BinaryMessage, data)
	s.packets.Add(uint64(n))
	return err
}

func (s *Server) broadcast(kind int, data []byte) (int, error) {
	handsets := s.snapshot()
	if len(handsets) == 0 {
		return 0, ErrNotConnected
	}

	var (
		delivered int
		lastErr   error
	)
	for _, h := range handsets {
		if err := h.write(kind, data); err != nil {
			s.logger.Debug("handset write failed", "id", h.ID, "error", err)
			lastErr = err
			continue
		}
		delivered++
	}
	if delivered == 0 {
		return 0, lastErr
	}
	return delivered, nil
}

func (s *Server) snapshot() []*Handset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Handset, 0, len(s.handsets))
	for _, h := range s.handsets {
		out = append(out, h)
	}
	return out
}

// Connected implements Conn.
func (s *Server) Connected() bool {
	return s.HandsetCount() > 0
}

// HandsetCount returns the number of connected handsets.
func (s *Server) HandsetCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handsets)
}

// Handsets returns info about every connected handset.
func (s *Server) Handsets() []HandsetInfo {
	handsets := s.snapshot()
	infos := make([]HandsetInfo, 0, len(handsets))
	for _, h := range handsets {
		h.mu.Lock()
		info := HandsetInfo{ID: h.ID, Connected: h.Connected, LastSeen: h.LastSeen}
		if h.Hello != nil {
			info.Name = h.Hello.Name
			info.Formats = h.Hello.Formats
		}
		h.mu.Unlock()
		infos = append(infos, info)
	}
	return infos
}

// Stats returns server counters.
func (s *Server) Stats() ServerStats {
	return ServerStats{
		HandsetCount:     s.HandsetCount(),
		MessagesReceived: s.received.Load(),
		MessagesSent:     s.sent.Load(),
		PacketsSent:      s.packets.Load(),
	}
}

// RegisterAPIRoutes mounts handset management endpoints under api.
func (s *Server) RegisterAPIRoutes(api fiber.Router) {
	devices := api.Group("/devices")

	devices.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"devices": s.Handsets(),
			"count":   s.HandsetCount(),
		})
	})

	devices.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(s.Stats())
	})

	// Test pulse, so the user can feel the configured intensity.
	devices.Post("/:id/vibrate", func(c *fiber.Ctx) error {
		var req struct {
			Ms int64 `json:"ms"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if req.Ms <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "ms must be positive")
		}
		msg, err := protocol.NewVibrateMessage(time.Duration(req.Ms) * time.Millisecond)
		if err != nil {
			return err
		}
		if err := s.Send(c.Params("id"), msg); err != nil {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		return c.JSON(fiber.Map{"status": "sent"})
	})
}

var _ Conn = (*Server)(nil)
