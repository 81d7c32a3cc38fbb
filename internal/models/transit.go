package models

import "time"

// Station is one platform row from the static GTFS stops file.
// StopID carries the N/S direction suffix when present; CoreID does not.
type Station struct {
	StopID    string  `json:"stopId"`
	CoreID    string  `json:"coreId"`
	Name      string  `json:"name"`
	CleanName string  `json:"cleanName"`
	Direction string  `json:"direction"` // "Northbound", "Southbound", or "Unknown"
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
}

// Route is one subway line from the static GTFS routes file.
type Route struct {
	ID       string `json:"routeId"`
	LongName string `json:"longName"`
	Color    string `json:"color"`
}

// StationConfig is a dashboard-pinned station. Lines lists every route that
// should be queried when rendering arrivals for it.
type StationConfig struct {
	ID    string   `json:"id" validate:"required,max=8"`
	Name  string   `json:"name" validate:"required,max=64"`
	Lines []string `json:"lines" validate:"required,min=1,max=4,dive,required,max=3"`
}

// Arrival is a single upcoming train at a station platform. Produced fresh on
// each feed decode; no identity persists across fetches.
type Arrival struct {
	RouteID     string    `json:"routeId"`
	TripID      string    `json:"tripId"`
	StopID      string    `json:"stopId"`
	Direction   string    `json:"direction"` // "N" or "S"
	ArrivalTime time.Time `json:"arrivalTime"`
	MinutesAway int       `json:"minutesAway"`
	Stale       bool      `json:"stale,omitempty"`
}

// StationArrivals groups the merged arrivals for one pinned station.
type StationArrivals struct {
	Station     StationConfig `json:"station"`
	Northbound  []Arrival     `json:"northbound"`
	Southbound  []Arrival     `json:"southbound"`
	FailedLines []string      `json:"failedLines,omitempty"`
	Stale       bool          `json:"stale,omitempty"`
}
