package events

import "sync"

// Hub fans records out to subscriber channels. Slow subscribers miss
// records rather than stall the emitter.
type Hub struct {
	mu   sync.RWMutex
	subs map[chan Record]struct{}
}

// NewHub returns a Hub with no subscribers.
func NewHub() *Hub {
	return &Hub{subs: map[chan Record]struct{}{}}
}

// Subscribe registers a channel buffered to buffer records (32 when not
// positive).
func (h *Hub) Subscribe(buffer int) chan Record {
	if buffer <= 0 {
		buffer = 32
	}
	ch := make(chan Record, buffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes ch. Unknown channels are ignored.
func (h *Hub) Unsubscribe(ch chan Record) {
	h.mu.Lock()
	_, exists := h.subs[ch]
	if exists {
		delete(h.subs, ch)
	}
	h.mu.Unlock()
	if exists {
		close(ch)
	}
}

// Emit delivers r to every subscriber with room in its buffer.
func (h *Hub) Emit(r Record) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- r:
		default:
		}
	}
}
