package memory

import (
	"context"
	"sync"

	"github.com/alanyoungcy/betslip/internal/domain"
)

// subscriberBuffer matches the buffering of the redis bus.
const subscriberBuffer = 128

// SignalBus is an in-process fan-out domain.SignalBus. Like Redis pub/sub it
// is lossy: a subscriber whose buffer is full misses the message.
type SignalBus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]chan []byte
}

var _ domain.SignalBus = (*SignalBus)(nil)

// NewSignalBus returns a SignalBus with no subscribers.
func NewSignalBus() *SignalBus {
	return &SignalBus{subs: make(map[string]map[int]chan []byte)}
}

// Publish delivers a copy of payload to every current subscriber of channel.
func (b *SignalBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[channel] {
		msg := make([]byte, len(payload))
		copy(msg, payload)
		select {
		case ch <- msg:
		default:
		}
	}
	return nil
}

// Subscribe registers a subscriber on channel. The returned channel is closed
// once ctx is cancelled.
func (b *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, subscriberBuffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[int]chan []byte)
	}
	b.subs[channel][id] = ch
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs[channel], id)
		if len(b.subs[channel]) == 0 {
			delete(b.subs, channel)
		}
		b.mu.Unlock()
		close(ch)
	}()

	return ch, nil
}

// Subscribers returns the number of live subscribers on channel.
func (b *SignalBus) Subscribers(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[channel])
}
