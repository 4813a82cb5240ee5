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

	"github.com/alanyoungcy/betslip/internal/cache/memory"
)

func startHub(t *testing.T, snapshot SnapshotFunc) (*Hub, *memory.SignalBus) {
	t.Helper()
	bus := memory.NewSignalBus()
	h := NewHub(bus, snapshot, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	require.Eventually(t, func() bool {
		return bus.Subscribers("slip") == 1 && bus.Subscribers("fixtures") == 1
	}, time.Second, 5*time.Millisecond)
	return h, bus
}

// subscribed reports whether every connected client is subscribed to channel.
func subscribed(h *Hub, channel string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.isSubscribed(channel) {
			return false
		}
	}
	return len(h.clients) > 0
}

func decodeFrame(t *testing.T, frame []byte) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(frame, &env))
	return env
}

func TestHubSubscriptionRouting(t *testing.T) {
	h, bus := startHub(t, func() any { return map[string]int{"n": 0} })
	srv := httptest.NewServer(http.HandlerFunc(h.HandleWS))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	read := func() envelope {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		return decodeFrame(t, msg)
	}
	publish := func(channel, payload string) {
		require.NoError(t, bus.Publish(context.Background(), channel, []byte(payload)))
	}
	waitSubscribed := func(channel string, want bool) {
		require.Eventually(t, func() bool {
			return subscribed(h, channel) == want
		}, time.Second, 5*time.Millisecond)
	}

	t.Run("snapshot on connect", func(t *testing.T) {
		env := read()
		assert.Equal(t, "slip", env.Type)
		assert.JSONEq(t, `{"n":0}`, string(env.Payload))
		assert.Equal(t, 1, h.ClientCount())
	})

	t.Run("default channels are relayed", func(t *testing.T) {
		publish("fixtures", `{"id":1}`)
		env := read()
		assert.Equal(t, "fixtures", env.Type)
		assert.JSONEq(t, `{"id":1}`, string(env.Payload))
	})

	t.Run("unsubscribe stops a channel", func(t *testing.T) {
		require.NoError(t, conn.WriteJSON(subscribeMsg{Action: "unsubscribe", Channels: []string{"fixtures"}}))
		waitSubscribed("fixtures", false)

		publish("fixtures", `{"id":2}`)
		publish("slip", `{"n":1}`)
		env := read()
		assert.Equal(t, "slip", env.Type)
		assert.JSONEq(t, `{"n":1}`, string(env.Payload))
	})

	t.Run("subscribe ignores channels the hub does not relay", func(t *testing.T) {
		require.NoError(t, conn.WriteJSON(subscribeMsg{Action: "subscribe", Channels: []string{"orders", "fixtures"}}))
		waitSubscribed("fixtures", true)
		assert.False(t, subscribed(h, "orders"))

		publish("fixtures", `{"id":3}`)
		env := read()
		assert.Equal(t, "fixtures", env.Type)
		assert.JSONEq(t, `{"id":3}`, string(env.Payload))
	})

	t.Run("non-JSON payloads are dropped", func(t *testing.T) {
		publish("slip", "not json")
		publish("slip", `{"n":2}`)
		env := read()
		assert.Equal(t, "slip", env.Type)
		assert.JSONEq(t, `{"n":2}`, string(env.Payload))
	})
}

func TestHubDropsForSlowClient(t *testing.T) {
	h, bus := startHub(t, nil)

	slow := &client{id: "slow", hub: h, send: make(chan []byte, 1), subs: map[string]bool{"slip": true}}
	fast := &client{id: "fast", hub: h, send: make(chan []byte, 8), subs: map[string]bool{"slip": true}}
	h.register <- slow
	h.register <- fast
	require.Eventually(t, func() bool { return h.ClientCount() == 2 }, time.Second, 5*time.Millisecond)

	for _, p := range []string{`{"n":1}`, `{"n":2}`, `{"n":3}`} {
		require.NoError(t, bus.Publish(context.Background(), "slip", []byte(p)))
	}

	for _, want := range []string{`{"n":1}`, `{"n":2}`, `{"n":3}`} {
		select {
		case frame := <-fast.send:
			assert.JSONEq(t, want, string(decodeFrame(t, frame).Payload))
		case <-time.After(2 * time.Second):
			t.Fatalf("fast client missed %s", want)
		}
	}

	require.Len(t, slow.send, 1, "frames beyond the buffer are dropped")
	assert.JSONEq(t, `{"n":1}`, string(decodeFrame(t, <-slow.send).Payload))

	t.Run("unregister closes the send channel", func(t *testing.T) {
		h.unregister <- slow
		require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
		_, ok := <-slow.send
		assert.False(t, ok)
	})
}
