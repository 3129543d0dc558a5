package model

import "time"

// RealTimeOccupancy is a live head count reported by a building sensor.
type RealTimeOccupancy struct {
	Count      int       `json:"count"`
	Capacity   int       `json:"capacity"`
	Percentage int       `json:"percentage"`
	Timestamp  time.Time `json:"timestamp"`
}
