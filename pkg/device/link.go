package device

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-lazarillo/pkg/protocol"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 64 * 1024
)

// LinkConfig configures a Link.
type LinkConfig struct {
	URL              string
	Header           http.Header
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	MinBackoff       time.Duration
	MaxBackoff       time.Duration
	Logger           *slog.Logger
}

// LinkOption is a functional option for Link.
type LinkOption func(*LinkConfig)

// WithHeader adds handshake headers, e.g. an auth token.
func WithHeader(h http.Header) LinkOption {
	return func(c *LinkConfig) { c.Header = h }
}

// WithBackoff sets the reconnect delay bounds.
func WithBackoff(lo, hi time.Duration) LinkOption {
	return func(c *LinkConfig) {
		c.MinBackoff = lo
		c.MaxBackoff = hi
	}
}

// WithPingInterval sets how often protocol pings are sent.
func WithPingInterval(d time.Duration) LinkOption {
	return func(c *LinkConfig) { c.PingInterval = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) LinkOption {
	return func(c *LinkConfig) { c.Logger = l }
}

// LinkStats contains link counters.
type LinkStats struct {
	Connected        bool   `json:"connected"`
	DeviceID         string `json:"device_id,omitempty"`
	Dials            uint64 `json:"dials"`
	Reconnects       uint64 `json:"reconnects"`
	MessagesSent     uint64 `json:"messages_sent"`
	PacketsSent      uint64 `json:"packets_sent"`
	MessagesReceived uint64 `json:"messages_received"`
	LastLatencyMs    int64  `json:"last_latency_ms"`
}

// Link is a reconnecting WebSocket client to a handset.
type Link struct {
	cfg    LinkConfig
	dialer websocket.Dialer
	logger *slog.Logger

	// writeMu serializes writes; gorilla allows one concurrent writer.
	writeMu sync.Mutex
	conn    *websocket.Conn

	connected atomic.Bool
	hello     atomic.Pointer[protocol.HelloData]

	dials, reconnects       atomic.Uint64
	sent, packets, received atomic.Uint64
	lastLatency             atomic.Int64
}

// NewLink creates a link to the handset at url (ws:// or wss://).
func NewLink(url string, opts ...LinkOption) (*Link, error) {
	if url == "" {
		return nil, ErrNoURL
	}
	cfg := LinkConfig{
		URL:              url,
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     pingPeriod,
		MinBackoff:       500 * time.Millisecond,
		MaxBackoff:       10 * time.Second,
		Logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Link{
		cfg:    cfg,
		dialer: websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		logger: cfg.Logger.With("component", "device", "url", cfg.URL),
	}, nil
}

// Run keeps the link up until ctx ends. It always returns nil after ctx is
// cancelled; dial failures are retried with exponential backoff.
func (l *Link) Run(ctx context.Context) error {
	backoff := l.cfg.MinBackoff
	for {
		l.dials.Add(1)
		conn, _, err := l.dialer.DialContext(ctx, l.cfg.URL, l.cfg.Header)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			l.logger.Warn("handset dial failed", "error", err, "retry_in", backoff)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, l.cfg.MaxBackoff)
			continue
		}

		backoff = l.cfg.MinBackoff
		l.serve(ctx, conn)
		if ctx.Err() != nil {
			return nil
		}
		l.reconnects.Add(1)
		l.logger.Info("handset disconnected, reconnecting")
	}
}

func (l *Link) serve(ctx context.Context, conn *websocket.Conn) {
	l.writeMu.Lock()
	l.conn = conn
	l.writeMu.Unlock()
	l.connected.Store(true)
	l.logger.Info("handset connected")

	done := make(chan struct{})
	defer func() {
		close(done)
		l.connected.Store(false)
		l.hello.Store(nil)
		l.writeMu.Lock()
		l.conn = nil
		l.writeMu.Unlock()
		conn.Close()
	}()

	go func() {
		select {
		case <-ctx.Done():
			l.writeMu.Lock()
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			l.writeMu.Unlock()
			conn.Close()
		case <-done:
		}
	}()

	go l.keepAlive(done)

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && ctx.Err() == nil {
				l.logger.Debug("handset read failed", "error", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))
		if kind != websocket.TextMessage {
			continue
		}
		l.received.Add(1)
		l.handleMessage(data)
	}
}

func (l *Link) keepAlive(done <-chan struct{}) {
	ticker := time.NewTicker(l.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			msg, err := protocol.NewPingMessage(uuid.NewString())
			if err != nil {
				continue
			}
			if err := l.SendMessage(msg); err != nil {
				return
			}
		}
	}
}

func (l *Link) handleMessage(data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		l.logger.Debug("bad handset message", "error", err)
		return
	}

	switch msg.Type {
	case protocol.TypeHello:
		hello, err := msg.GetHelloData()
		if err != nil {
			return
		}
		l.hello.Store(hello)
		l.logger.Info("handset identified", "device_id", hello.DeviceID, "formats", hello.Formats)

	case protocol.TypePing:
		pong, err := msg.Pong()
		if err != nil {
			return
		}
		if err := l.SendMessage(pong); err != nil {
			l.logger.Debug("pong failed", "error", err)
		}

	case protocol.TypePong:
		pong, err := msg.GetPongData()
		if err != nil {
			return
		}
		l.lastLatency.Store(time.Now().UnixMilli() - pong.PingTS)

	case protocol.TypeAck:
		if ack, err := msg.GetAckData(); err == nil {
			l.logger.Debug("handset ack", "of", ack.Of, "utterance_id", ack.UtteranceID)
		}
	}
}

// SendMessage implements Conn.
func (l *Link) SendMessage(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	if err := l.write(websocket.TextMessage, data); err != nil {
		return err
	}
	l.sent.Add(1)
	return nil
}

// SendBinary implements Conn.
func (l *Link) SendBinary(data []byte) error {
	if err := l.write(websocket.BinaryMessage, data); err != nil {
		return err
	}
	l.packets.Add(1)
	return nil
}

func (l *Link) write(kind int, data []byte) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	if l.conn == nil {
		return ErrNotConnected
	}
	l.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := l.conn.WriteMessage(kind, data); err != nil {
		if errors.Is(err, websocket.ErrCloseSent) {
			return ErrNotConnected
		}
		return err
	}
	return nil
}

// Connected implements Conn.
func (l *Link) Connected() bool {
	return l.connected.Load()
}

// Device returns the handset greeting, or nil before it arrives.
func (l *Link) Device() *protocol.HelloData {
	return l.hello.Load()
}

// Stats returns link counters.
func (l *Link) Stats() LinkStats {
	s := LinkStats{
		Connected:        l.Connected(),
		Dials:            l.dials.Load(),
		Reconnects:       l.reconnects.Load(),
		MessagesSent:     l.sent.Load(),
		PacketsSent:      l.packets.Load(),
		MessagesReceived: l.received.Load(),
		LastLatencyMs:    l.lastLatency.Load(),
	}
	if h := l.Device(); h != nil {
		s.DeviceID = h.DeviceID
	}
	return s
}

var _ Conn = (*Link)(nil)
