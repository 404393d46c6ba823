package device

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-lazarillo/internal/log"
	"github.com/teslashibe/go-lazarillo/pkg/protocol"
)

func startServer(t *testing.T, addr string) *Server {
	t.Helper()
	s := NewServer(log.Discard())
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	s.RegisterRoutes(app)
	s.RegisterAPIRoutes(app.Group("/api"))

	go app.Listen(addr)
	t.Cleanup(func() { app.Shutdown() })
	time.Sleep(100 * time.Millisecond)
	return s
}

func TestServerNoHandsets(t *testing.T) {
	s := NewServer(log.Discard())
	assert.False(t, s.Connected())
	assert.ErrorIs(t, s.SendBinary([]byte{1}), ErrNotConnected)

	msg, err := protocol.NewVibrateMessage(time.Second)
	require.NoError(t, err)
	assert.ErrorIs(t, s.SendMessage(msg), ErrNotConnected)
	assert.ErrorIs(t, s.Send("nobody", msg), ErrHandsetNotFound)
}

func TestServerHandsetRoundTrip(t *testing.T) {
	s := startServer(t, "127.0.0.1:18181")

	ws, _, err := websocket.DefaultDialer.Dial("ws://127.0.0.1:18181/ws/device/phone-1", nil)
	require.NoError(t, err)
	defer ws.Close()

	hello, _ := protocol.NewHelloMessage(protocol.HelloData{DeviceID: "phone-1", Name: "Pixel", Formats: []string{protocol.FormatOpus}})
	data, _ := hello.Bytes()
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, data))

	require.Eventually(t, func() bool {
		infos := s.Handsets()
		return len(infos) == 1 && infos[0].Name == "Pixel"
	}, 2*time.Second, 10*time.Millisecond)

	f := NewFeedback(s, NewPCMPacketizer(0), log.Discard())
	require.NoError(t, f.Vibrate(context.Background(), 500*time.Millisecond))

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, data, err := ws.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, kind)

	msg, err := protocol.ParseMessage(data)
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeVibrate, msg.Type)

	st := s.Stats()
	assert.Equal(t, 1, st.HandsetCount)
	assert.Equal(t, uint64(1), st.MessagesReceived)
	assert.Equal(t, uint64(1), st.MessagesSent)
}

func TestServerAnswersPing(t *testing.T) {
	startServer(t, "127.0.0.1:18182")

	ws, _, err := websocket.DefaultDialer.Dial("ws://127.0.0.1:18182/ws/device", nil)
	require.NoError(t, err)
	defer ws.Close()

	ping, _ := protocol.NewPingMessage("x")
	data, _ := ping.Bytes()
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, data))

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err = ws.ReadMessage()
	require.NoError(t, err)

	msg, err := protocol.ParseMessage(data)
	require.NoError(t, err)
	assert.Equal(t, protocol.TypePong, msg.Type)
}

func TestServerHandsetDisconnect(t *testing.T) {
	s := startServer(t, "127.0.0.1:18183")

	ws, _, err := websocket.DefaultDialer.Dial("ws://127.0.0.1:18183/ws/device/gone", nil)
	require.NoError(t, err)
	require.Eventually(t, s.Connected, 2*time.Second, 10*time.Millisecond)

	ws.Close()
	require.Eventually(t, func() bool { return !s.Connected() }, 2*time.Second, 10*time.Millisecond)
}

func TestServerAPI(t *testing.T) {
	s := NewServer(log.Discard())
	app := fiber.New()
	s.RegisterAPIRoutes(app.Group("/api"))

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"list", "GET", "/api/devices/", "", 200},
		{"stats", "GET", "/api/devices/stats", "", 200},
		{"vibrate unknown", "POST", "/api/devices/x/vibrate", `{"ms":200}`, 404},
		{"vibrate bad ms", "POST", "/api/devices/x/vibrate", `{"ms":0}`, 400},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}

	req := httptest.NewRequest("GET", "/api/devices/", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	var out struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, 0, out.Count)
}
