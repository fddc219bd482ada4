// Package events broadcasts pipeline events to connected operator clients.
// Publishing never blocks the request path: slow or dead subscribers are
// dropped, not waited on.
package events

import (
	"log/slog"
	"sync"
	"time"
)

// Event types pushed on the operator feed.
const (
	TypeSessionCreated = "session.created"
	TypeEntityNew      = "entity.new"
	TypeVerdict        = "verdict"
	TypeReportSent     = "report.sent"
	TypeSessionExpired = "session.expired"
)

// Event is one feed item.
type Event struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	At        int64  `json:"at"` // epoch milliseconds
	Data      any    `json:"data,omitempty"`
}

// Hub fans events out to subscriber channels.
type Hub struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	buffer int
}

// NewHub creates a hub. buffer is the per-subscriber queue depth.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{
		subs:   make(map[int]chan Event),
		buffer: buffer,
	}
}

// Subscribe registers a new subscriber. The returned cancel function must
// be called when the subscriber goes away.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan Event, h.buffer)
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber whose queue has room.
// A subscriber with a full queue misses the event; the pipeline never waits.
func (h *Hub) Publish(evt Event) {
	if evt.At == 0 {
		evt.At = time.Now().UnixMilli()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		select {
		case ch <- evt:
		default:
			slog.Debug("feed subscriber queue full, dropping event",
				"subscriber", id, "type", evt.Type)
		}
	}
}

// Subscribers returns the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
