package models

import "time"

// Status values produced by the upstream detector.
const (
	StatusOccupied = "occupied"
	StatusEmpty    = "empty"
)

// Observation is one raw occupancy reading for a room at a point in time.
// Optional descriptive fields are empty strings when the store has no value.
type Observation struct {
	ID        string    `json:"id,omitempty"`
	RoomName  string    `json:"room_name"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Building  string    `json:"building"`
	Floor     string    `json:"floor"`
	ClassType string    `json:"class_type"`
}

// RoomStatus is the observation selected as current for a single room.
type RoomStatus = Observation

// FilterSet holds the optional query constraints. Empty fields do not constrain.
type FilterSet struct {
	Building  string
	Floor     string
	ClassType string
	Status    string
}

// IsEmpty reports whether no criterion is active.
func (f FilterSet) IsEmpty() bool {
	return f.Building == "" && f.Floor == "" && f.ClassType == "" && f.Status == ""
}

// StatusReport is the detail view: current rooms plus summary counts.
type StatusReport struct {
	Rooms         []*RoomStatus
	OccupiedCount int
	EmptyCount    int
	Filters       FilterSet
}

// RoomEntry is the compact per-room shape served by the data endpoint.
type RoomEntry struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Building  string    `json:"building"`
	Floor     string    `json:"floor"`
	ClassType string    `json:"class_type"`
}

// BuildingSummary holds per-building counts of the current statuses.
type BuildingSummary struct {
	Building string
	Rooms    int
	Occupied int
	Empty    int
	Other    int
}

// Summary holds the computed occupancy breakdown over a StatusReport.
type Summary struct {
	TotalRooms    int
	OccupiedCount int
	EmptyCount    int
	OtherCount    int
	OccupancyRate float64
	Buildings     []BuildingSummary
	MostRecent    *RoomStatus
	Stalest       *RoomStatus
}
