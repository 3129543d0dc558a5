package notification

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"facility-finder-backend/internal/events"
	"facility-finder-backend/internal/model"
)

type fakeSource map[string]model.Entity

func (s fakeSource) Location(id string) (model.Entity, bool) {
	e, ok := s[id]
	return e, ok
}

type recordingDispatcher struct{ ids []string }

func (d *recordingDispatcher) Dispatch(id string) bool {
	d.ids = append(d.ids, id)
	return true
}

func TestNotifier_AlertsOnTransitionIntoNotBusy(t *testing.T) {
	testCases := []struct {
		name     string
		labels   []string
		open     bool
		expected int
	}{
		{name: "Very busy to not busy", labels: []string{model.LabelVeryBusy, model.LabelNotBusy}, open: true, expected: 1},
		{name: "Fairly busy to not busy", labels: []string{model.LabelFairlyBusy, model.LabelNotBusy}, open: true, expected: 1},
		{name: "First observation", labels: []string{model.LabelNotBusy}, open: true},
		{name: "Stays not busy", labels: []string{model.LabelNotBusy, model.LabelNotBusy}, open: true},
		{name: "Unknown to not busy", labels: []string{model.LabelUnknown, model.LabelNotBusy}, open: true},
		{name: "Closed location", labels: []string{model.LabelVeryBusy, model.LabelNotBusy}, open: false},
		{name: "Busy again then quiet", labels: []string{model.LabelVeryBusy, model.LabelNotBusy, model.LabelFairlyBusy, model.LabelNotBusy}, open: true, expected: 2},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			bus := events.NewBus()
			source := fakeSource{}
			dispatcher := &recordingDispatcher{}
			NewNotifier(source, dispatcher).Attach(bus)

			for _, label := range tc.labels {
				source["gym"] = model.Entity{Location: model.Location{ID: "gym"}, StatusLabel: label, IsOpen: tc.open}
				bus.Emit(events.Event{Kind: events.LocationsUpdated, Changed: []string{"gym"}})
			}

			assert.Len(t, dispatcher.ids, tc.expected)
		})
	}
}

func TestNotifier_Detach(t *testing.T) {
	bus := events.NewBus()
	source := fakeSource{"lib": {StatusLabel: model.LabelVeryBusy, IsOpen: true}}
	dispatcher := &recordingDispatcher{}
	n := NewNotifier(source, dispatcher)
	n.Attach(bus)

	bus.Emit(events.Event{Kind: events.OccupancyUpdated, Changed: []string{"lib"}})
	n.Detach(bus)

	source["lib"] = model.Entity{StatusLabel: model.LabelNotBusy, IsOpen: true}
	bus.Emit(events.Event{Kind: events.OccupancyUpdated, Changed: []string{"lib"}})
	assert.Empty(t, dispatcher.ids)
}

func TestNotifier_IgnoresExpiredReadings(t *testing.T) {
	bus := events.NewBus()
	source := fakeSource{"lib": {StatusLabel: model.LabelVeryBusy, IsOpen: true}}
	dispatcher := &recordingDispatcher{}
	NewNotifier(source, dispatcher).Attach(bus)

	bus.Emit(events.Event{Kind: events.OccupancyUpdated, Source: "occupancy", Changed: []string{"lib"}})
	source["lib"] = model.Entity{StatusLabel: model.LabelNotBusy, IsOpen: true}
	bus.Emit(events.Event{Kind: events.OccupancyUpdated, Source: events.SourceExpiry, Changed: []string{"lib"}})
	assert.Empty(t, dispatcher.ids)

	// Later transitions are measured from the label the expiry left behind.
	bus.Emit(events.Event{Kind: events.LocationsUpdated, Source: "realtime", Changed: []string{"lib"}})
	assert.Empty(t, dispatcher.ids)
}
