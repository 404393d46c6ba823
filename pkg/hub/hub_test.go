package hub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-lazarillo/internal/log"
)

// serveHub exposes h over a plain net/http websocket endpoint. gorilla
// connections satisfy Conn just like fiber's.
func serveHub(t *testing.T, h *Hub) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		Serve(h, conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func runHub(t *testing.T, h *Hub) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	require.Eventually(t, h.IsRunning, time.Second, 5*time.Millisecond)
	t.Cleanup(cancel)
	return cancel
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func TestBroadcastReachesClients(t *testing.T) {
	h := New("test", log.Discard())
	runHub(t, h)
	url := serveHub(t, h)

	a := dial(t, url)
	b := dial(t, url)
	require.Eventually(t, func() bool { return h.ClientCount() == 2 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, h.BroadcastJSON(map[string]int{"n": 1}))
	h.BroadcastBinary([]byte{0xFF, 0xD8})

	for _, ws := range []*websocket.Conn{a, b} {
		ws.SetReadDeadline(time.Now().Add(2 * time.Second))
		kind, data, err := ws.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, websocket.TextMessage, kind)
		assert.JSONEq(t, `{"n":1}`, string(data))

		kind, data, err = ws.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, websocket.BinaryMessage, kind)
		assert.Equal(t, []byte{0xFF, 0xD8}, data)
	}
}

func TestOnConnectGreetsNewClient(t *testing.T) {
	h := New("status", log.Discard())
	h.OnConnect(func() (Message, bool) {
		return StatusMessage([]byte(`{"state":"idle"}`)), true
	})
	runHub(t, h)

	ws := dial(t, serveHub(t, h))
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":"idle"}`, string(data))
}

func TestClientDisconnectUnregisters(t *testing.T) {
	h := New("test", log.Discard())
	runHub(t, h)
	url := serveHub(t, h)

	ws := dial(t, url)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	ws.Close()
	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestStopDisconnectsClients(t *testing.T) {
	h := New("test", log.Discard())
	cancel := runHub(t, h)
	ws := dial(t, serveHub(t, h))
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.Eventually(t, func() bool { return !h.IsRunning() }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, h.ClientCount())

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := ws.ReadMessage()
	assert.Error(t, err, "connection closed by hub")
}

func TestBroadcastDropsWhenBackedUp(t *testing.T) {
	h := New("idle", log.Discard())
	// Hub not running: the channel fills and further messages are dropped.
	for i := 0; i < cap(h.broadcast)+5; i++ {
		h.BroadcastBinary([]byte{byte(i)})
	}
	assert.Equal(t, uint64(5), h.Dropped())
}

func TestBroadcastJSONError(t *testing.T) {
	h := New("test", log.Discard())
	assert.Error(t, h.BroadcastJSON(make(chan int)))
}
