// Package feed consumes the live fixture feed: push notifications that a
// fixture kicked off or that its odds moved.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/betslip/internal/domain"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	defaultReconnectDelay = 2 * time.Second
	maxReconnectDelay     = 60 * time.Second
)

// Handler receives one feed event.
type Handler func(ctx context.Context, ev domain.FixtureEvent)

// FixtureFeed is a reconnecting websocket consumer. Handlers run on the read
// goroutine in arrival order.
type FixtureFeed struct {
	wsURL          string
	reconnectDelay time.Duration
	logger         *slog.Logger

	mu       sync.RWMutex
	handlers map[domain.FixtureEventType][]Handler
	catchAll []Handler
}

// NewFixtureFeed returns a feed for wsURL. A non-positive reconnectDelay uses
// the default.
func NewFixtureFeed(wsURL string, reconnectDelay time.Duration, logger *slog.Logger) *FixtureFeed {
	if reconnectDelay <= 0 {
		reconnectDelay = defaultReconnectDelay
	}
	return &FixtureFeed{
		wsURL:          wsURL,
		reconnectDelay: reconnectDelay,
		logger:         logger.With(slog.String("component", "fixture_feed")),
		handlers:       make(map[domain.FixtureEventType][]Handler),
	}
}

// On registers h for one event type.
func (f *FixtureFeed) On(t domain.FixtureEventType, h Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[t] = append(f.handlers[t], h)
}

// OnAny registers h for every event.
func (f *FixtureFeed) OnAny(h Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.catchAll = append(f.catchAll, h)
}

// Run connects and consumes events until ctx is cancelled. Disconnects are
// retried with exponential backoff; the delay resets after a successful
// connection.
func (f *FixtureFeed) Run(ctx context.Context) error {
	delay := f.reconnectDelay
	for {
		connected, err := f.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			delay = f.reconnectDelay
		}
		f.logger.Warn("fixture feed disconnected, reconnecting",
			slog.String("error", errString(err)),
			slog.Duration("delay", delay),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

// runConnection serves one connection. connected reports whether the dial
// succeeded.
func (f *FixtureFeed) runConnection(ctx context.Context) (connected bool, err error) {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return false, fmt.Errorf("feed: connect: %w", err)
	}
	defer conn.Close()
	f.logger.Info("fixture feed connected", slog.String("url", f.wsURL))

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Unblock ReadMessage on shutdown.
	go func() {
		<-connCtx.Done()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		_ = conn.Close()
	}()
	go f.pingLoop(connCtx, conn)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return true, ctx.Err()
			}
			return true, fmt.Errorf("feed: read: %w", errors.Join(domain.ErrWSDisconnect, err))
		}
		f.dispatch(ctx, data)
	}
}

func (f *FixtureFeed) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// dispatch decodes one frame. Malformed frames are logged and dropped.
func (f *FixtureFeed) dispatch(ctx context.Context, data []byte) {
	ev, err := decodeEvent(data)
	if err != nil {
		f.logger.Debug("skipping malformed feed frame",
			slog.String("error", err.Error()),
			slog.Int("payload_len", len(data)),
		)
		return
	}

	f.mu.RLock()
	handlers := append(append([]Handler(nil), f.handlers[ev.Type]...), f.catchAll...)
	f.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, ev)
	}
}

func decodeEvent(data []byte) (domain.FixtureEvent, error) {
	var ev domain.FixtureEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, err
	}
	switch ev.Type {
	case domain.EventMatchStarted, domain.EventOddsChange:
	default:
		return ev, fmt.Errorf("unknown event type %q", ev.Type)
	}
	if ev.FixtureID <= 0 {
		return ev, fmt.Errorf("missing fixture id")
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	return ev, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
