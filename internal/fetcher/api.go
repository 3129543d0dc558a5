package fetcher

import (
	"time"

	"facility-finder-backend/internal/aggregator"
	"facility-finder-backend/internal/model"
)

// crowdData models one location entry of the crowd-data and bulk-data
// endpoints.
type crowdData struct {
	Hours          map[string]model.DayHours `json:"hours"`
	WeeklyBusyness map[string][]wireHour     `json:"weeklyBusyness"`
	CurrentStatus  *wireStatus               `json:"currentStatus"`
	BestTime       string                    `json:"bestTime"`
	WorstTime      string                    `json:"worstTime"`
}

type wireHour struct {
	Hour        string `json:"hour"`
	Busyness    int    `json:"busyness"`
	Description string `json:"description"`
}

type wireStatus struct {
	Busyness    *int   `json:"busyness"`
	Status      string `json:"status"`
	Description string `json:"description"`
	Until       string `json:"until"`
}

// occupancyData models one sensor entry of the safespace endpoint.
type occupancyData struct {
	Count      *int `json:"count"`
	Capacity   int  `json:"capacity"`
	Percentage *int `json:"percentage"`
}

// validate returns a non-empty reason when required fields are missing.
func (c crowdData) validate() string {
	if c.CurrentStatus == nil || c.CurrentStatus.Busyness == nil {
		return "missing currentStatus.busyness"
	}
	if c.Hours == nil && c.WeeklyBusyness == nil {
		return "missing hours and weeklyBusyness"
	}
	return ""
}

func (c crowdData) toSnapshot(now time.Time) model.DynamicSnapshot {
	current := model.CurrentStatus{
		Busyness:    *c.CurrentStatus.Busyness,
		StatusLabel: c.CurrentStatus.Status,
		Description: c.CurrentStatus.Description,
		UntilText:   c.CurrentStatus.Until,
		Timestamp:   now,
	}

	weekly := model.WeeklyPattern{
		Hours:         c.Hours,
		BusynessByDay: make(map[string][]model.HourBusyness, len(c.WeeklyBusyness)),
		BestTime:      c.BestTime,
		WorstTime:     c.WorstTime,
		Timestamp:     now,
	}
	if weekly.Hours == nil {
		weekly.Hours = map[string]model.DayHours{}
	}
	for day, hours := range c.WeeklyBusyness {
		samples := make([]model.HourBusyness, 0, len(hours))
		for _, h := range hours {
			samples = append(samples, model.HourBusyness{HourLabel: h.Hour, Busyness: h.Busyness, Description: h.Description})
		}
		weekly.BusynessByDay[day] = samples
	}
	if weekly.BestTime == "" || weekly.WorstTime == "" {
		best, worst := aggregator.BestAndWorst(weekly)
		if weekly.BestTime == "" {
			weekly.BestTime = best
		}
		if weekly.WorstTime == "" {
			weekly.WorstTime = worst
		}
	}

	return model.DynamicSnapshot{Current: &current, Weekly: &weekly}
}

func (o occupancyData) toOccupancy(now time.Time) (model.RealTimeOccupancy, bool) {
	if o.Count == nil {
		return model.RealTimeOccupancy{}, false
	}
	occ := model.RealTimeOccupancy{Count: *o.Count, Capacity: o.Capacity, Timestamp: now}
	switch {
	case o.Percentage != nil:
		occ.Percentage = *o.Percentage
	case o.Capacity > 0:
		occ.Percentage = *o.Count * 100 / o.Capacity
	default:
		return model.RealTimeOccupancy{}, false
	}
	return occ, true
}
