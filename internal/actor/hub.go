package actor

import (
	"sync"
	"time"
)

// Event is one completed command, published to stream subscribers.
type Event struct {
	Seq     uint64    `json:"seq"`
	Verb    string    `json:"verb"`
	Outcome string    `json:"outcome"`
	Error   string    `json:"error,omitempty"`
	At      time.Time `json:"at"`
}

const (
	hubHistoryLimit  = 256
	hubSubscriberCap = 64
)

// Hub fans completed-command events out to stream subscribers. A
// bounded history allows reconnecting subscribers to replay what they
// missed; slow subscribers lose events rather than stall the worker.
type Hub struct {
	mu      sync.Mutex
	seq     uint64
	history []Event
	subs    map[uint64]chan Event
	nextSub uint64
}

func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]chan Event)}
}

// Publish assigns the event a sequence number and delivers it to every
// subscriber that can take it without blocking.
func (h *Hub) Publish(ev Event) Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	ev.Seq = h.seq
	h.history = append(h.history, ev)
	if len(h.history) > hubHistoryLimit {
		h.history = h.history[len(h.history)-hubHistoryLimit:]
	}
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	return ev
}

// Subscribe returns events with Seq > afterSeq that are still in
// history, a live channel for subsequent events, and an unsubscribe
// function.
func (h *Hub) Subscribe(afterSeq uint64) ([]Event, <-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var replay []Event
	for _, ev := range h.history {
		if ev.Seq > afterSeq {
			replay = append(replay, ev)
		}
	}
	id := h.nextSub
	h.nextSub++
	ch := make(chan Event, hubSubscriberCap)
	h.subs[id] = ch
	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(sub)
		}
	}
	return replay, ch, cancel
}
