package pushchannel_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"merchantdispatch/internal/adapters/out/pushchannel"
	"merchantdispatch/internal/pkg/errs"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

const acceptedFrame = `{"event":"deliveryAccepted","data":{"batch_id":"B-1","driver_id":"d-7"}}`

type socketServer struct {
	upgrader   websocket.Upgrader
	conns      atomic.Int64
	closeFirst bool
	auth       atomic.String
	received   chan []byte
}

func (s *socketServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.auth.Store(r.Header.Get("Authorization"))
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	n := s.conns.Inc()

	_ = conn.WriteMessage(websocket.TextMessage, []byte("not json"))
	_ = conn.WriteMessage(websocket.TextMessage, []byte(acceptedFrame))
	if s.closeFirst && n == 1 {
		return
	}
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.received <- data
	}
}

func startClient(t *testing.T, srv *socketServer) *pushchannel.Client {
	t.Helper()
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	c, err := pushchannel.NewClient(pushchannel.Config{
		URL:            "ws" + strings.TrimPrefix(ts.URL, "http"),
		Token:          "secret",
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     50 * time.Millisecond,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return c
}

func run(t *testing.T, c *pushchannel.Client) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		_ = c.Close()
		<-done
	})
}

func TestNewClient(t *testing.T) {
	_, err := pushchannel.NewClient(pushchannel.Config{}, nil)
	require.ErrorIs(t, err, errs.ErrValueIsRequired)
}

func TestClient_EmitBeforeConnect(t *testing.T) {
	c, err := pushchannel.NewClient(pushchannel.Config{URL: "ws://127.0.0.1:1"},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	err = c.Emit(context.Background(), "joinOrder", map[string]string{"orderId": "812"})

	require.ErrorIs(t, err, pushchannel.ErrNotConnected)
}

func TestClient_SubscribeAndEmit(t *testing.T) {
	srv := &socketServer{received: make(chan []byte, 8)}
	c := startClient(t, srv)

	got := make(chan []byte, 1)
	unsubscribe := c.Subscribe("deliveryAccepted", func(data []byte) { got <- data })
	defer unsubscribe()
	run(t, c)

	select {
	case data := <-got:
		assert.JSONEq(t, `{"batch_id":"B-1","driver_id":"d-7"}`, string(data))
	case <-time.After(3 * time.Second):
		t.Fatal("event not delivered")
	}
	assert.Equal(t, "Bearer secret", srv.auth.Load())

	require.Eventually(t, c.Connected, 3*time.Second, 10*time.Millisecond)
	require.NoError(t, c.Emit(context.Background(), "joinOrder", map[string]string{"orderId": "812"}))

	select {
	case frame := <-srv.received:
		var env map[string]any
		require.NoError(t, json.Unmarshal(frame, &env))
		assert.Equal(t, "joinOrder", env["event"])
		assert.Equal(t, map[string]any{"orderId": "812"}, env["data"])
	case <-time.After(3 * time.Second):
		t.Fatal("frame not received")
	}
}

func TestClient_Reconnect(t *testing.T) {
	srv := &socketServer{closeFirst: true, received: make(chan []byte, 8)}
	c := startClient(t, srv)

	var connects atomic.Int64
	c.OnReconnect(func() { connects.Inc() })
	run(t, c)

	assert.Eventually(t, func() bool { return srv.conns.Load() == 2 }, 3*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return connects.Load() == 2 }, 3*time.Second, 10*time.Millisecond)
	assert.Eventually(t, c.Connected, 3*time.Second, 10*time.Millisecond)
}

func TestClient_Unsubscribe(t *testing.T) {
	srv := &socketServer{closeFirst: true, received: make(chan []byte, 8)}
	c := startClient(t, srv)

	var calls atomic.Int64
	unsubscribe := c.Subscribe("deliveryAccepted", func([]byte) { calls.Inc() })
	unsubscribe()
	run(t, c)

	require.Eventually(t, func() bool { return srv.conns.Load() >= 2 }, 3*time.Second, 10*time.Millisecond)
	assert.Zero(t, calls.Load())
}
