package bus

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultBacklog = 50

// Hub fans telemetry events out to subscribers and keeps a short backlog
// so a freshly connected dashboard sees recent activity.
type Hub struct {
	mu       sync.RWMutex
	handlers map[string]EventHandler
	backlog  []Event
	limit    int
}

// NewHub creates a hub retaining up to backlog recent events (default 50).
func NewHub(backlog int) *Hub {
	if backlog <= 0 {
		backlog = defaultBacklog
	}
	return &Hub{handlers: make(map[string]EventHandler), limit: backlog}
}

func (h *Hub) Subscribe(id string, handler EventHandler) {
	h.mu.Lock()
	h.handlers[id] = handler
	h.mu.Unlock()
}

func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	delete(h.handlers, id)
	h.mu.Unlock()
}

// Broadcast stamps missing ID/timestamp, records the event in the backlog
// and hands it to every subscriber.
func (h *Hub) Broadcast(event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	h.mu.Lock()
	h.backlog = append(h.backlog, event)
	if len(h.backlog) > h.limit {
		h.backlog = h.backlog[len(h.backlog)-h.limit:]
	}
	handlers := make([]EventHandler, 0, len(h.handlers))
	for _, fn := range h.handlers {
		handlers = append(handlers, fn)
	}
	h.mu.Unlock()

	for _, fn := range handlers {
		fn(event)
	}
}

// Recent returns a copy of the backlog, oldest first.
func (h *Hub) Recent() []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Event, len(h.backlog))
	copy(out, h.backlog)
	return out
}

// Subscribers returns the number of active subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.handlers)
}
