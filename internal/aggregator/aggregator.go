// Package aggregator merges static location metadata with cached or fetched
// crowd data into the Entity values served to consumers.
//
// Every function here is pure: the same inputs always produce the same
// Entity, which is what lets concurrent refresh cycles replace entities
// without coordination beyond an atomic swap.
package aggregator

import (
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"facility-finder-backend/internal/model"
)

// Busyness thresholds, in percent.
const (
	FairlyBusyFrom = 40
	VeryBusyFrom   = 75
)

// MergeContext carries the inputs of a merge that are not location data.
type MergeContext struct {
	Now  time.Time
	User *orb.Point
}

// Aggregator evaluates time-dependent fields in the campus timezone, so a
// client in another timezone still sees the campus open/closed state.
type Aggregator struct {
	loc *time.Location
}

// New creates an Aggregator for the given campus timezone.
func New(loc *time.Location) *Aggregator {
	if loc == nil {
		loc = time.UTC
	}
	return &Aggregator{loc: loc}
}

// MergeOne builds the Entity of one location. Missing dynamic data yields an
// Entity with "Unknown" status fields instead of an error.
func (a *Aggregator) MergeOne(static model.Location, snap *model.DynamicSnapshot, occ *model.RealTimeOccupancy, mc MergeContext) model.Entity {
	e := model.Entity{
		Location:      static,
		StatusLabel:   model.LabelUnknown,
		BusynessLabel: model.LabelUnknown,
		HoursText:     model.HoursUnavailable,
		EvaluatedAt:   mc.Now,
	}
	if snap != nil {
		e.Current = snap.Current
		e.Weekly = snap.Weekly
	}
	if static.HasSensor() {
		e.Occupancy = occ
	}
	if mc.User != nil {
		d := Distance(*mc.User, static)
		e.Distance = &d
	}

	hoursToday := false
	if e.Weekly != nil {
		_, hoursToday = a.todayHours(e.Weekly.Hours, mc.Now)
		e.IsOpen = a.DeriveIsOpen(e.Weekly.Hours, mc.Now)
		e.HoursText = a.HoursText(e.Weekly.Hours, mc.Now)
	}

	pct, known := a.percentage(e, mc.Now)
	if !known {
		return e
	}

	e.Busyness = pct
	e.BusynessLabel = DeriveBusynessLabel(pct)
	e.StatusLabel = e.BusynessLabel
	if e.Current != nil {
		e.Description = e.Current.Description
	}
	if hoursToday && !e.IsOpen && e.Occupancy == nil {
		e.StatusLabel = model.LabelClosed
	}
	return e
}

// WithUser returns a copy of e with its distance recomputed for user.
// Busyness fields are left untouched.
func WithUser(e model.Entity, user *orb.Point) model.Entity {
	if user == nil {
		e.Distance = nil
		return e
	}
	d := Distance(*user, e.Location)
	e.Distance = &d
	return e
}

// DeriveBusynessLabel classifies a percentage: below 40 is Not Busy, 40 up
// to 75 is Fairly Busy, 75 and above is Very Busy.
func DeriveBusynessLabel(pct int) string {
	switch {
	case pct >= VeryBusyFrom:
		return model.LabelVeryBusy
	case pct >= FairlyBusyFrom:
		return model.LabelFairlyBusy
	default:
		return model.LabelNotBusy
	}
}

// Distance returns the great-circle distance in meters from user to l.
func Distance(user orb.Point, l model.Location) float64 {
	return geo.Distance(user, l.Point())
}

// percentage picks the busyness source in priority order: live occupancy,
// current status, then the weekly curve at the current hour.
func (a *Aggregator) percentage(e model.Entity, now time.Time) (int, bool) {
	switch {
	case e.Occupancy != nil:
		return clamp(e.Occupancy.Percentage), true
	case e.Current != nil:
		return clamp(e.Current.Busyness), true
	case e.Weekly != nil:
		if v, ok := a.patternAt(*e.Weekly, now); ok {
			return clamp(v), true
		}
	}
	return 0, false
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
