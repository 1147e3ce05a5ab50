package control

import (
	"sync"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
)

// subscriberBuffer is the per-subscriber channel capacity. Commands beyond a
// full buffer are dropped rather than blocking the publisher.
const subscriberBuffer = 16

// subscription represents one subscriber of the hub.
type subscription struct {
	id string
	ch chan Command
}

// Hub broadcasts playback commands to subscribers. Each subscriber receives
// commands strictly in publish order on its own channel. Command producers
// (gesture adapters, keyboards, remote controls) publish; the playback engine
// subscribes.
type Hub struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	closed        bool
}

// NewHub creates a new command hub.
func NewHub() *Hub {
	return &Hub{
		subscriptions: make(map[string]*subscription),
	}
}

// Subscribe registers a new subscriber and returns its command channel along
// with an unsubscribe function. Unsubscribing closes the channel and is safe
// to call multiple times.
func (h *Hub) Subscribe() (<-chan Command, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := uuid.New().String()
	sub := &subscription{
		id: id,
		ch: make(chan Command, subscriberBuffer),
	}
	if h.closed {
		close(sub.ch)
		return sub.ch, func() {}
	}
	h.subscriptions[id] = sub

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subscriptions[id]; ok {
				delete(h.subscriptions, id)
				close(sub.ch)
			}
		})
	}
	return sub.ch, unsubscribe
}

// Publish delivers a command to every subscriber in arrival order. A
// subscriber whose buffer is full misses the command.
func (h *Hub) Publish(cmd Command) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return
	}
	for _, sub := range h.subscriptions {
		select {
		case sub.ch <- cmd:
		default:
			zlog.Warn().Msgf("control: subscriber %s buffer full, dropping command %s", sub.id, cmd)
		}
	}
}

// Close shuts the hub down and closes all subscriber channels. Idempotent.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subscriptions {
		close(sub.ch)
		delete(h.subscriptions, id)
	}
}

// Count returns the number of active subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscriptions)
}
