package web

import (
	"sync"

	"github.com/swdee/go-motionwatch/internal/metrics"
)

// Hub holds the most recent live view frame and wakes subscribed stream
// clients when it changes.  Slow clients skip frames rather than queue them
type Hub struct {
	mu     sync.RWMutex
	latest []byte
	seq    uint64
	subs   map[chan struct{}]struct{}
}

// NewHub returns an empty hub
func NewHub() *Hub {
	return &Hub{
		subs: make(map[chan struct{}]struct{}),
	}
}

// Publish replaces the latest frame, the hub takes ownership of data
func (h *Hub) Publish(data []byte) {

	h.mu.Lock()
	defer h.mu.Unlock()

	h.latest = data
	h.seq++

	for ch := range h.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Latest returns the latest frame and its sequence number, nil before the
// first publish
func (h *Hub) Latest() ([]byte, uint64) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.latest, h.seq
}

// Subscribe returns a channel signalled after each publish and a function
// that ends the subscription
func (h *Hub) Subscribe() (<-chan struct{}, func()) {

	ch := make(chan struct{}, 1)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	metrics.StreamClients.Inc()

	var once sync.Once

	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			metrics.StreamClients.Dec()
		})
	}
}

// Clients returns the number of subscribers
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
