// Package listener consumes terminal job results off each kind's status
// topic, records them for stats/audit, and fans them out to SSE subscribers.
package listener

import (
	"sync"

	"github.com/fairyhunter13/semantic-orchestrator/internal/domain"
)

// subscriberBuffer bounds how many undelivered events a slow SSE client can
// accumulate before Hub starts dropping its events. Status fan-out is
// lossy by design (SPEC_FULL.md §4.5): a client that falls behind resyncs
// via GET .../stats rather than relying on replay.
const subscriberBuffer = 32

// Hub fans StatusEvent updates out to per-transform SSE subscribers. It is
// safe for concurrent use.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan domain.StatusEvent]struct{}
	seq  map[string]int64
}

// NewHub builds an empty Hub.
func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]map[chan domain.StatusEvent]struct{}),
		seq:  make(map[string]int64),
	}
}

// Subscribe registers a new listener for a transform's status events. The
// returned cancel func must be called once the subscriber is done, or its
// channel and goroutine accounting leak.
func (h *Hub) Subscribe(transformID string) (<-chan domain.StatusEvent, func()) {
	ch := make(chan domain.StatusEvent, subscriberBuffer)

	h.mu.Lock()
	set, ok := h.subs[transformID]
	if !ok {
		set = make(map[chan domain.StatusEvent]struct{})
		h.subs[transformID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if set, ok := h.subs[transformID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(h.subs, transformID)
			}
		}
		close(ch)
	}
	return ch, cancel
}

// Publish delivers ev to every current subscriber of ev.TransformID,
// assigning it the next sequence number for that transform. A subscriber
// whose buffer is full has the event dropped rather than blocking the
// publisher — one slow SSE client must never stall result processing for
// every other transform.
func (h *Hub) Publish(ev domain.StatusEvent) {
	h.mu.Lock()
	h.seq[ev.TransformID]++
	ev.Sequence = h.seq[ev.TransformID]
	subs := h.subs[ev.TransformID]
	chans := make([]chan domain.StatusEvent, 0, len(subs))
	for ch := range subs {
		chans = append(chans, ch)
	}
	h.mu.Unlock()

	for _, ch := range chans {
		select {
		case ch <- ev:
		default:
		}
	}
}
