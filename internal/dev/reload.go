package dev

import (
	"io"
	"log/slog"
	"strings"
	"sync"
)

// Event is one reload notification.
type Event struct {
	// Data is the changed path as reported by the watcher.
	Data string
}

// Frame renders the event in text/event-stream framing.
func (e Event) Frame() string {
	var b strings.Builder
	for _, line := range strings.Split(e.Data, "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	return b.String()
}

// Sink receives reload notifications for one subscriber.
// A Send error removes the subscriber from the hub.
type Sink interface {
	Send(Event) error
}

// Hub fans reload notifications out to every connected subscriber.
type Hub struct {
	mu          sync.Mutex
	nextID      uint64
	subscribers map[uint64]Sink
	closed      bool
	logger      *slog.Logger
	metrics     *Metrics
}

// NewHub creates an empty hub. Both arguments may be nil.
func NewHub(logger *slog.Logger, metrics *Metrics) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subscribers: make(map[uint64]Sink),
		logger:      logger,
		metrics:     metrics,
	}
}

// Subscribe registers sink and returns its id. Ids are never reused.
// Subscribing to a closed hub closes the sink right away.
func (h *Hub) Subscribe(sink Sink) uint64 {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	if h.closed {
		h.mu.Unlock()
		closeSink(sink)
		return id
	}
	h.subscribers[id] = sink
	n := len(h.subscribers)
	h.mu.Unlock()

	h.metrics.setSubscribers(n)
	h.logger.Debug("subscribed", "id", id, "subscribers", n)
	return id
}

// Unsubscribe removes the subscriber. Unknown ids are ignored.
func (h *Hub) Unsubscribe(id uint64) {
	h.mu.Lock()
	_, ok := h.subscribers[id]
	delete(h.subscribers, id)
	n := len(h.subscribers)
	h.mu.Unlock()

	if ok {
		h.metrics.setSubscribers(n)
		h.logger.Debug("unsubscribed", "id", id, "subscribers", n)
	}
}

// Broadcast sends payload to every current subscriber. Subscribers whose
// sink fails are removed; the failure never reaches the caller.
func (h *Hub) Broadcast(payload string) {
	h.mu.Lock()
	ids := make([]uint64, 0, len(h.subscribers))
	sinks := make([]Sink, 0, len(h.subscribers))
	for id, sink := range h.subscribers {
		ids = append(ids, id)
		sinks = append(sinks, sink)
	}
	h.mu.Unlock()

	h.metrics.incBroadcasts()

	ev := Event{Data: payload}
	for i, sink := range sinks {
		if err := sink.Send(ev); err != nil {
			h.logger.Debug("dropping subscriber", "id", ids[i], "err", err)
			h.metrics.incDeliveryFailures()
			h.Unsubscribe(ids[i])
			closeSink(sink)
		}
	}
}

// Count returns the number of subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Close closes every subscriber and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	sinks := make([]Sink, 0, len(h.subscribers))
	for id, sink := range h.subscribers {
		sinks = append(sinks, sink)
		delete(h.subscribers, id)
	}
	h.closed = true
	h.mu.Unlock()

	h.metrics.setSubscribers(0)
	for _, sink := range sinks {
		closeSink(sink)
	}
}

func closeSink(sink Sink) {
	if c, ok := sink.(io.Closer); ok {
		c.Close()
	}
}
