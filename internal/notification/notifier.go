package notification

import (
	"sync"

	"github.com/google/uuid"

	"facility-finder-backend/internal/events"
	"facility-finder-backend/internal/model"
)

// Source exposes the current entities of the scheduler.
type Source interface {
	Location(id string) (model.Entity, bool)
}

// Dispatcher queues an alert for one location.
type Dispatcher interface {
	Dispatch(locationID string) bool
}

// Notifier watches refresh events and dispatches an alert whenever an open
// location goes from busy to Not Busy.
type Notifier struct {
	source     Source
	dispatcher Dispatcher

	mu   sync.Mutex
	last map[string]string
	subs []uuid.UUID
}

// NewNotifier creates a Notifier. Call Attach to start receiving events.
func NewNotifier(source Source, dispatcher Dispatcher) *Notifier {
	return &Notifier{
		source:     source,
		dispatcher: dispatcher,
		last:       make(map[string]string),
	}
}

// Attach subscribes the notifier to the refresh events of bus.
func (n *Notifier) Attach(bus *events.Bus) {
	n.subs = append(n.subs,
		bus.Subscribe(events.LocationsUpdated, n.handle),
		bus.Subscribe(events.OccupancyUpdated, n.handle),
	)
}

// Detach removes the subscriptions made by Attach.
func (n *Notifier) Detach(bus *events.Bus) {
	for _, id := range n.subs {
		bus.Unsubscribe(id)
	}
	n.subs = nil
}

func (n *Notifier) handle(ev events.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, id := range ev.Changed {
		e, ok := n.source.Location(id)
		if !ok {
			continue
		}
		prev, seen := n.last[id]
		n.last[id] = e.StatusLabel

		// An expired reading is not news about the crowd.
		if ev.Source == events.SourceExpiry {
			continue
		}
		if seen && becameQuiet(prev, e) {
			n.dispatcher.Dispatch(id)
		}
	}
}

// becameQuiet reports whether an entity moved from a busy label into Not
// Busy while open.
func becameQuiet(prev string, e model.Entity) bool {
	wasBusy := prev == model.LabelFairlyBusy || prev == model.LabelVeryBusy
	return wasBusy && e.IsOpen && e.StatusLabel == model.LabelNotBusy
}
