package model

import "time"

// Busyness labels. The same thresholds classify every percentage.
const (
	LabelNotBusy    = "Not Busy"
	LabelFairlyBusy = "Fairly Busy"
	LabelVeryBusy   = "Very Busy"
	LabelUnknown    = "Unknown"
	LabelClosed     = "Closed"

	HoursUnavailable = "Hours unavailable"
)

// Entity is the denormalized view of one location served to consumers.
// Entities are never mutated after construction; refreshes replace them.
type Entity struct {
	Location

	Current   *CurrentStatus     `json:"currentStatus,omitempty"`
	Weekly    *WeeklyPattern     `json:"weeklyPattern,omitempty"`
	Occupancy *RealTimeOccupancy `json:"occupancy,omitempty"`

	Busyness      int      `json:"busyness"`
	BusynessLabel string   `json:"busynessLabel"`
	StatusLabel   string   `json:"statusLabel"`
	Description   string   `json:"description"`
	IsOpen        bool     `json:"isOpen"`
	HoursText     string   `json:"hoursText"`
	Distance      *float64 `json:"distanceMeters,omitempty"`

	EvaluatedAt time.Time `json:"evaluatedAt"`
}

// Snapshot returns the dynamic inputs the entity was built from.
func (e Entity) Snapshot() *DynamicSnapshot {
	if e.Current == nil && e.Weekly == nil {
		return nil
	}
	return &DynamicSnapshot{Current: e.Current, Weekly: e.Weekly}
}
