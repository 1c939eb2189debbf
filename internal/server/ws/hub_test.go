package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/amby/internal/events"
)

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, kind)
	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func TestHubRelaysBusMessages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewLocalBus()
	hub := NewHub(bus, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{
		Channels: events.Channels,
		Mode:     "server",
	})
	go func() { _ = hub.Run(ctx) }()

	srv := httptest.NewServer(hubHandler(hub))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	hello := readEnvelope(t, conn)
	assert.Equal(t, "hello", hello.Type)
	assert.Contains(t, string(hello.Payload), `"mode":"server"`)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	// Subscriptions are registered asynchronously; keep publishing until one lands.
	payload := []byte(`{"type":"stake_placed","market_id":1}`)
	got := make(chan []byte, 1)
	go func() {
		_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		if _, data, err := conn.ReadMessage(); err == nil {
			got <- data
		}
	}()
	var raw []byte
	require.Eventually(t, func() bool {
		_ = bus.Publish(ctx, events.ChannelStake, payload)
		select {
		case raw = <-got:
			return true
		default:
			return false
		}
	}, 2*time.Second, 20*time.Millisecond)

	var env Envelope
	require.NoError(t, json.Unmarshal(raw, &env))

	assert.Equal(t, "event", env.Type)
	assert.Equal(t, events.ChannelStake, env.Channel)
	assert.JSONEq(t, string(payload), string(env.Payload))
}

func TestClientSubscriptionMatching(t *testing.T) {
	c := &client{subs: map[string]bool{"ch:market": true}}
	assert.True(t, c.isSubscribed("ch:market"))
	assert.False(t, c.isSubscribed("ch:stake"))

	c.apply(controlMsg{Action: "subscribe", Channels: []string{"ch:*"}})
	assert.True(t, c.isSubscribed("ch:stake"))

	c.apply(controlMsg{Action: "unsubscribe", Channels: []string{"ch:*", "ch:market"}})
	assert.False(t, c.isSubscribed("ch:market"))
	assert.False(t, c.isSubscribed("ch:stake"))
}

func hubHandler(h *Hub) http.Handler { return http.HandlerFunc(h.HandleWS) }
