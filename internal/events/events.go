// Package events is a small typed publish/subscribe bus that decouples
// refresh completion from the consumers that react to it.
package events

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind identifies an event type. Only the constants below are emitted.
type Kind string

const (
	LocationsUpdated Kind = "locations_updated"
	WeeklyUpdated    Kind = "weekly_updated"
	OccupancyUpdated Kind = "occupancy_updated"
	PositionUpdated  Kind = "position_updated"
	RefreshFailed    Kind = "refresh_failed"
)

// SourceExpiry marks events raised because data aged out, not because new
// data arrived.
const SourceExpiry = "expiry"

// Event is delivered to subscribers of its Kind.
type Event struct {
	Kind Kind
	// Source names the refresh cycle that produced the event, e.g. "realtime".
	Source     string
	Generation uint64
	// Changed lists the ids whose Entity was replaced.
	Changed []string
	// Failed lists the ids whose fetch failed and kept their previous value.
	Failed []string
	Err    error
	At     time.Time
}

// Handler receives events. Handlers run synchronously on the emitting
// goroutine and must not block for long.
type Handler func(Event)

type subscription struct {
	kind    Kind
	handler Handler
}

// Bus dispatches events to subscribers in subscription order.
type Bus struct {
	mu    sync.RWMutex
	order []uuid.UUID
	subs  map[uuid.UUID]subscription
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[uuid.UUID]subscription)}
}

// Subscribe registers handler for kind and returns a handle for Unsubscribe.
func (b *Bus) Subscribe(kind Kind, handler Handler) uuid.UUID {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := uuid.New()
	b.subs[id] = subscription{kind: kind, handler: handler}
	b.order = append(b.order, id)
	return id
}

// Unsubscribe removes a subscription. Unknown handles are ignored.
func (b *Bus) Unsubscribe(id uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[id]; !ok {
		return
	}
	delete(b.subs, id)
	for i, o := range b.order {
		if o == id {
			b.order = append(b.order[:i:i], b.order[i+1:]...)
			break
		}
	}
}

// Emit delivers ev to every subscriber of ev.Kind. A panicking handler is
// logged and does not stop delivery to the others.
func (b *Bus) Emit(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.order))
	for _, id := range b.order {
		if s := b.subs[id]; s.kind == ev.Kind {
			handlers = append(handlers, s.handler)
		}
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		deliver(h, ev)
	}
}

func deliver(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Event handler for %s panicked: %v", ev.Kind, r)
		}
	}()
	h(ev)
}
