package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/widget/internal/backend"
	"github.com/xiaot623/gogo/widget/internal/bridge"
	"github.com/xiaot623/gogo/widget/internal/config"
	"github.com/xiaot623/gogo/widget/internal/hub"
	"github.com/xiaot623/gogo/widget/internal/protocol"
	"github.com/xiaot623/gogo/widget/internal/repository"
	"github.com/xiaot623/gogo/widget/internal/session"
)

func testConfig() *config.Config {
	return &config.Config{
		SendTimeout:    time.Second,
		PingInterval:   time.Minute,
		WriteTimeout:   time.Second,
		ReadTimeout:    time.Minute,
		MaxMessageSize: 65536,
	}
}

type testServer struct {
	srv     *Server
	hub     *hub.Hub
	url     string
	stopHub context.CancelFunc
}

func startServer(t *testing.T, storage repository.Storage, b backend.Backend) *testServer {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h := hub.NewHub(zerolog.Nop())
	go h.Run(ctx)

	srv := NewServer(testConfig(), h, b, storage, zerolog.Nop())
	e := echo.New()
	e.GET("/ws", srv.HandleWebSocket)
	ts := httptest.NewServer(e)
	t.Cleanup(ts.Close)

	return &testServer{
		srv:     srv,
		hub:     h,
		url:     "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws",
		stopHub: cancel,
	}
}

func newTestServer(t *testing.T, storage repository.Storage) (*hub.Hub, string) {
	t.Helper()
	ts := startServer(t, storage, backend.NewMockBackend())
	return ts.hub, ts.url
}

// blockingBackend holds every send until release is closed.
type blockingBackend struct {
	release chan struct{}
}

func (b *blockingBackend) Send(ctx context.Context, req *backend.ChatRequest) (*backend.Response, error) {
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &backend.Response{
		StatusCode:  200,
		ContentType: "application/json",
		Body:        []byte(`{"output":"done"}`),
	}, nil
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func writeJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(v))
}

// readUntil reads frames until one of type typ arrives.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var msg map[string]any
		require.NoError(t, json.Unmarshal(data, &msg))
		if msg["type"] == typ {
			return msg
		}
	}
}

func hello(tenant string) map[string]any {
	return map[string]any{
		"type":      protocol.TypeHello,
		"tenant_id": tenant,
		"scope":     "visitor-1",
		"viewport":  map[string]float64{"width": 1280, "height": 800},
		"context":   map[string]string{"origin": "https://shop.example"},
	}
}

func TestActionBeforeHello(t *testing.T) {
	_, url := newTestServer(t, repository.NewMemoryStorage())
	conn := dial(t, url)

	writeJSON(t, conn, map[string]string{"type": protocol.TypeOpen})
	msg := readUntil(t, conn, protocol.TypeError)
	assert.Equal(t, protocol.ErrorCodeSessionRequired, msg["code"])
}

func TestInvalidJSON(t *testing.T) {
	_, url := newTestServer(t, repository.NewMemoryStorage())
	conn := dial(t, url)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{")))
	msg := readUntil(t, conn, protocol.TypeError)
	assert.Equal(t, protocol.ErrorCodeInvalidMessage, msg["code"])
}

func TestHelloAndSend(t *testing.T) {
	h, url := newTestServer(t, repository.NewMemoryStorage())
	conn := dial(t, url)

	writeJSON(t, conn, hello("acme"))
	ack := readUntil(t, conn, protocol.TypeHelloAck)
	sessionID, _ := ack["session_id"].(string)
	assert.Regexp(t, `^\d+-[0-9a-z]{9}$`, sessionID)
	cfg := ack["config"].(map[string]any)
	assert.Equal(t, "acme", cfg["tenant_id"])
	assert.Equal(t, "acme", cfg["widget_id"])
	assert.Eventually(t, func() bool { return h.HasSession(sessionID) }, time.Second, 5*time.Millisecond)

	writeJSON(t, conn, map[string]string{"type": protocol.TypeOpen})
	size := readUntil(t, conn, protocol.TypeSize)
	frame := size["frame"].(map[string]any)
	assert.Equal(t, bridge.SourceID, frame["source"])
	assert.Equal(t, 380.0, frame["width"])

	writeJSON(t, conn, map[string]string{"type": protocol.TypeSend, "content": "ping"})
	var transcript map[string]any
	for {
		transcript = readUntil(t, conn, protocol.TypeTranscript)
		if len(transcript["messages"].([]any)) == 3 {
			break
		}
	}
	msgs := transcript["messages"].([]any)
	reply := msgs[2].(map[string]any)
	assert.Equal(t, "assistant", reply["role"])
	segments := reply["segments"].([]any)
	last := segments[len(segments)-1].(map[string]any)
	assert.Equal(t, "bold", last["kind"])
	assert.Equal(t, "ping", last["text"])

	writeJSON(t, conn, map[string]string{"type": protocol.TypeKey, "key": bridge.EscapeKey})
	size = readUntil(t, conn, protocol.TypeSize)
	assert.Equal(t, bridge.LauncherSize, size["frame"].(map[string]any)["width"])
}

func TestHelloWithoutTenant(t *testing.T) {
	_, url := newTestServer(t, repository.NewMemoryStorage())
	conn := dial(t, url)

	writeJSON(t, conn, hello(""))
	msg := readUntil(t, conn, protocol.TypeConfigError)
	assert.Equal(t, bridge.ConfigErrorText, msg["message"])

	writeJSON(t, conn, map[string]string{"type": protocol.TypeSend, "content": "hi"})
	msg = readUntil(t, conn, protocol.TypeError)
	assert.Equal(t, protocol.ErrorCodeConfigError, msg["code"])
}

func TestHistoryIsScopedPerVisitor(t *testing.T) {
	storage := repository.NewMemoryStorage()
	_, url := newTestServer(t, storage)
	conn := dial(t, url)

	writeJSON(t, conn, hello("acme"))
	readUntil(t, conn, protocol.TypeHelloAck)
	writeJSON(t, conn, map[string]string{"type": protocol.TypeSend, "content": "ping"})
	for {
		msg := readUntil(t, conn, protocol.TypeState)
		if msg["last_outcome"] == "success" {
			break
		}
	}

	scoped := repository.WithScope(storage, "visitor-1")
	_, found, err := scoped.Get(context.Background(), session.Key("acme"))
	require.NoError(t, err)
	assert.True(t, found)

	_, found, err = storage.Get(context.Background(), session.Key("acme"))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestShutdownRejectsNewSends(t *testing.T) {
	ts := startServer(t, repository.NewMemoryStorage(), backend.NewMockBackend())
	conn := dial(t, ts.url)

	writeJSON(t, conn, hello("acme"))
	readUntil(t, conn, protocol.TypeHelloAck)

	require.NoError(t, ts.srv.Shutdown(context.Background()))

	writeJSON(t, conn, map[string]string{"type": protocol.TypeSend, "content": "ping"})
	msg := readUntil(t, conn, protocol.TypeError)
	assert.Equal(t, protocol.ErrorCodeSendRejected, msg["code"])
	assert.Equal(t, ErrShuttingDown.Error(), msg["message"])
}

func TestShutdownWaitIsBoundedByContext(t *testing.T) {
	b := &blockingBackend{release: make(chan struct{})}
	ts := startServer(t, repository.NewMemoryStorage(), b)
	conn := dial(t, ts.url)

	writeJSON(t, conn, hello("acme"))
	readUntil(t, conn, protocol.TypeHelloAck)
	writeJSON(t, conn, map[string]string{"type": protocol.TypeSend, "content": "ping"})
	for {
		msg := readUntil(t, conn, protocol.TypeState)
		if msg["is_sending"] == true {
			break
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := ts.srv.Shutdown(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(b.release)
	assert.NoError(t, ts.srv.Shutdown(context.Background()))
}

func TestStoppedHubClosesClientConnections(t *testing.T) {
	ts := startServer(t, repository.NewMemoryStorage(), backend.NewMockBackend())
	conn := dial(t, ts.url)

	writeJSON(t, conn, hello("acme"))
	readUntil(t, conn, protocol.TypeHelloAck)

	ts.stopHub()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			var netErr interface{ Timeout() bool }
			if errors.As(err, &netErr) {
				assert.False(t, netErr.Timeout(), "connection was not closed")
			}
			break
		}
	}
	<-ts.hub.Done()
	assert.Zero(t, ts.hub.GetConnectionCount())
}
