package aggregator

import (
	"fmt"
	"strings"
	"time"

	"facility-finder-backend/internal/model"
	"facility-finder-backend/internal/parse"
)

// weekdays in display order.
var weekdays = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
	time.Friday, time.Saturday, time.Sunday,
}

// DeriveIsOpen reports whether now falls inside today's opening window.
//
// A close time at or before the open time means the location closes after
// midnight, so it is open when now >= open or now < close. Otherwise it is
// open when open <= now < close. No entry for today means closed.
func (a *Aggregator) DeriveIsOpen(hours map[string]model.DayHours, now time.Time) bool {
	day, ok := a.todayHours(hours, now)
	if !ok {
		return false
	}
	open, err := parse.ParseClock(day.Open)
	if err != nil {
		return false
	}
	closeAt, err := parse.ParseClock(day.Close)
	if err != nil {
		return false
	}

	local := now.In(a.loc)
	minute := local.Hour()*60 + local.Minute()
	if closeAt <= open {
		return minute >= open || minute < closeAt
	}
	return open <= minute && minute < closeAt
}

// HoursText renders today's hours, e.g. "08:00 - 22:00".
func (a *Aggregator) HoursText(hours map[string]model.DayHours, now time.Time) string {
	day, ok := a.todayHours(hours, now)
	if !ok {
		return model.HoursUnavailable
	}
	open, errOpen := parse.ParseClock(day.Open)
	closeAt, errClose := parse.ParseClock(day.Close)
	if errOpen != nil || errClose != nil {
		return fmt.Sprintf("%s - %s", day.Open, day.Close)
	}
	if open == closeAt {
		return "Open 24 hours"
	}
	return fmt.Sprintf("%s - %s", parse.FormatClock(open), parse.FormatClock(closeAt))
}

// BestAndWorst returns the quietest and busiest non-zero hours of the week,
// formatted as "<Weekday> <hour label>".
func BestAndWorst(p model.WeeklyPattern) (best, worst string) {
	bestVal, worstVal := 101, -1
	for _, wd := range weekdays {
		samples, ok := lookupDay(p.BusynessByDay, wd)
		if !ok {
			continue
		}
		for _, s := range samples {
			if s.Busyness <= 0 {
				continue
			}
			if s.Busyness < bestVal {
				bestVal = s.Busyness
				best = wd.String() + " " + s.HourLabel
			}
			if s.Busyness > worstVal {
				worstVal = s.Busyness
				worst = wd.String() + " " + s.HourLabel
			}
		}
	}
	return best, worst
}

func (a *Aggregator) todayHours(hours map[string]model.DayHours, now time.Time) (model.DayHours, bool) {
	return lookupDay(hours, now.In(a.loc).Weekday())
}

// patternAt returns the typical busyness for the current campus hour.
func (a *Aggregator) patternAt(p model.WeeklyPattern, now time.Time) (int, bool) {
	local := now.In(a.loc)
	samples, ok := lookupDay(p.BusynessByDay, local.Weekday())
	if !ok {
		return 0, false
	}
	for _, s := range samples {
		h, err := parse.ParseHourLabel(s.HourLabel)
		if err == nil && h == local.Hour() {
			return s.Busyness, true
		}
	}
	return 0, false
}

// lookupDay finds a weekday entry by name, ignoring case.
func lookupDay[V any](m map[string]V, wd time.Weekday) (V, bool) {
	if v, ok := m[wd.String()]; ok {
		return v, true
	}
	for k, v := range m {
		if strings.EqualFold(k, wd.String()) {
			return v, true
		}
	}
	var zero V
	return zero, false
}
