package model

import "time"

// CurrentStatus is the short-lived "right now" crowd reading of a location.
type CurrentStatus struct {
	Busyness    int       `json:"busyness"`
	StatusLabel string    `json:"statusLabel"`
	Description string    `json:"description"`
	UntilText   string    `json:"untilText"`
	Timestamp   time.Time `json:"timestamp"`
}

// DayHours is the opening window of a single weekday, as "HH:MM" strings.
type DayHours struct {
	Open  string `json:"open"`
	Close string `json:"close"`
}

// HourBusyness is one hourly sample of a weekday busyness curve.
type HourBusyness struct {
	HourLabel   string `json:"hourLabel"`
	Busyness    int    `json:"busyness"`
	Description string `json:"description"`
}

// WeeklyPattern holds opening hours and typical busyness per weekday.
// Map keys are English weekday names as produced by time.Weekday.String.
type WeeklyPattern struct {
	Hours         map[string]DayHours       `json:"hours"`
	BusynessByDay map[string][]HourBusyness `json:"busynessByDay"`
	BestTime      string                    `json:"bestTime"`
	WorstTime     string                    `json:"worstTime"`
	Timestamp     time.Time                 `json:"timestamp"`
}

// DynamicSnapshot is the time-varying data of one location. Either part may
// be nil when only one bucket is known.
type DynamicSnapshot struct {
	Current *CurrentStatus `json:"current,omitempty"`
	Weekly  *WeeklyPattern `json:"weekly,omitempty"`
}

// Complete reports whether both sub-records are present.
func (s DynamicSnapshot) Complete() bool {
	return s.Current != nil && s.Weekly != nil
}
