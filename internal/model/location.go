package model

import (
	"github.com/paulmach/orb"

	"facility-finder-backend/config"
)

// Category values used by the static catalog.
const (
	CategoryStudy  = "study"
	CategoryDining = "dining"
	CategoryGym    = "gym"
)

// Location is the immutable reference data for one facility.
type Location struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Latitude   float64  `json:"latitude"`
	Longitude  float64  `json:"longitude"`
	Capacity   int      `json:"capacity"`
	Amenities  []string `json:"amenities"`
	Categories []string `json:"categories"`

	// SensorKey names the entry of the occupancy payload that belongs to this
	// location. Empty for locations without a live sensor.
	SensorKey string `json:"sensorKey,omitempty"`
}

// HasSensor reports whether the location carries live occupancy data.
func (l Location) HasSensor() bool {
	return l.SensorKey != ""
}

// Point returns the location as an orb point (lon, lat).
func (l Location) Point() orb.Point {
	return orb.Point{l.Longitude, l.Latitude}
}

// LocationsFromConfig converts the configured catalog, keeping its order.
func LocationsFromConfig(entries []config.Location) []Location {
	out := make([]Location, 0, len(entries))
	for _, e := range entries {
		out = append(out, Location{
			ID:         e.ID,
			Name:       e.Name,
			Latitude:   e.Latitude,
			Longitude:  e.Longitude,
			Capacity:   e.Capacity,
			Amenities:  e.Amenities,
			Categories: e.Categories,
			SensorKey:  e.SensorKey,
		})
	}
	return out
}
