package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "kpidash/internal/errors"
	"kpidash/internal/presenter"
	"kpidash/internal/services"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type renderFunc func(ctx context.Context, req services.RenderRequest) (*presenter.RenderModel, error)

func (f renderFunc) Render(ctx context.Context, req services.RenderRequest) (*presenter.RenderModel, error) {
	return f(ctx, req)
}

// fakeConn records writes and never yields a message.
type fakeConn struct {
	mu      sync.Mutex
	written [][]byte
	closed  bool
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, data)
	return nil
}

func (c *fakeConn) ReadMessage() (int, []byte, error) { return 0, nil, io.EOF }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) SetReadDeadline(time.Time) error { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }
func (c *fakeConn) SetReadLimit(int64) {}
func (c *fakeConn) SetPongHandler(func(string) error) {}
func (c *fakeConn) RemoteAddr() string { return "127.0.0.1:9999" }

type message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func decode(t *testing.T, raw []byte) message {
	t.Helper()
	var m message
	require.NoError(t, json.Unmarshal(raw, &m))
	return m
}

func stubRenderer() Renderer {
	return renderFunc(func(ctx context.Context, req services.RenderRequest) (*presenter.RenderModel, error) {
		if len(req.Identifiers) == 1 && req.Identifiers[0] == "boom" {
			return nil, apierrors.NewLoadError("failed to load data source", errors.New("locked"))
		}
		return &presenter.RenderModel{Source: "kpis.xlsx", RowCount: len(req.Identifiers)}, nil
	})
}

func TestHub_RegisterBroadcastUnregister(t *testing.T) {
	hub := NewHub(quietLogger(), nil)
	hub.Start()
	defer hub.Stop()

	client := NewClient(hub, stubRenderer(), &fakeConn{}, "trace-1", quietLogger())
	hub.Register(client)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	hello := decode(t, <-client.send)
	assert.Equal(t, TypeConnection, hello.Type)
	assert.Contains(t, string(hello.Data), client.id)

	hub.BroadcastRefresh("kpis.xlsx")
	select {
	case raw := <-client.send:
		msg := decode(t, raw)
		assert.Equal(t, TypeDataUpdate, msg.Type)
		assert.JSONEq(t, `{"source":"kpis.xlsx","action":"refresh"}`, string(msg.Data))
	case <-time.After(time.Second):
		t.Fatal("broadcast not delivered")
	}

	hub.Unregister(client)
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
	_, open := <-client.send
	assert.False(t, open)
	assert.EqualValues(t, 1, hub.Stats()["total_connections"])
}

func TestHub_StopIsIdempotent(t *testing.T) {
	hub := NewHub(quietLogger(), nil)
	hub.Start()
	hub.Start()

	client := NewClient(hub, stubRenderer(), &fakeConn{}, "", quietLogger())
	hub.Register(client)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.Stop()
	hub.Stop()
	assert.Equal(t, 0, hub.ClientCount())
	assert.False(t, client.trySend([]byte("late")))

	// Calls after Stop return instead of blocking.
	hub.Unregister(client)
	hub.BroadcastRefresh("kpis.xlsx")
}

func TestClient_Handle(t *testing.T) {
	client := NewClient(NewHub(quietLogger(), nil), stubRenderer(), &fakeConn{}, "", quietLogger())

	tests := []struct {
		name     string
		in       string
		wantType string
		wantCode string
		wantID   string
	}{
		{name: "heartbeat", in: `{"type":"heartbeat"}`},
		{name: "render", in: `{"id":"r1","identifiers":["E1","E2"]}`, wantType: TypeRender, wantID: "r1"},
		{name: "explicit type", in: `{"type":"render","id":"r2"}`, wantType: TypeRender, wantID: "r2"},
		{name: "not json", in: `render please`, wantType: TypeError, wantCode: "INVALID_REQUEST"},
		{name: "invalid date", in: `{"id":"r3","from":"yesterday"}`, wantType: TypeError, wantCode: "VALIDATION_FAILED", wantID: "r3"},
		{name: "unknown type", in: `{"type":"subscribe"}`, wantType: TypeError, wantCode: "VALIDATION_FAILED"},
		{name: "service error", in: `{"id":"r4","identifiers":["boom"]}`, wantType: TypeError, wantCode: "LOAD", wantID: "r4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply := client.handle(context.Background(), []byte(tt.in))
			if tt.wantType == "" {
				assert.Nil(t, reply)
				return
			}

			msg := decode(t, reply)
			assert.Equal(t, tt.wantType, msg.Type)

			var data map[string]interface{}
			require.NoError(t, json.Unmarshal(msg.Data, &data))
			assert.Equal(t, tt.wantID, data["id"])
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, data["code"])
			} else {
				model := data["model"].(map[string]interface{})
				assert.Equal(t, "kpis.xlsx", model["source"])
			}
		})
	}
}

func TestHandler_EndToEnd(t *testing.T) {
	hub := NewHub(quietLogger(), nil)
	hub.Start()
	defer hub.Stop()

	server := httptest.NewServer(NewHandler(hub, stubRenderer(), nil, quietLogger()))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	read := func() message {
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)
		return decode(t, raw)
	}

	assert.Equal(t, TypeConnection, read().Type)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"heartbeat"}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"id":"a","identifiers":["E1"]}`)))
	reply := read()
	assert.Equal(t, TypeRender, reply.Type)
	assert.Contains(t, string(reply.Data), `"row_count":1`)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"id":"b","top_n":0.5}`)))
	assert.Equal(t, TypeError, read().Type)

	assert.Equal(t, 1, hub.ClientCount())
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://dash.example.com"})

	req := httptest.NewRequest("GET", "/ws", nil)
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://dash.example.com")
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, check(req))

	assert.True(t, originChecker(nil)(req))
}
