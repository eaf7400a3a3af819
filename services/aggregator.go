package services

import (
	"strings"

	"clasutil/models"
	"clasutil/utils"
)

// Aggregator reduces a raw observation batch to one current status per room.
//
// The batch is trusted to be ordered newest first: the first record of a room
// that satisfies the filters wins, and timestamps are never compared. A record
// that fails the filters does not resolve its room, so an older record of the
// same room may still be selected.
type Aggregator struct {
	logger *utils.Logger
}

// NewAggregator creates an Aggregator with the given logger.
func NewAggregator(logger *utils.Logger) *Aggregator {
	return &Aggregator{logger: logger}
}

// Aggregate returns at most one RoomStatus per room, in first-accepted order.
// It holds no state between calls and never fails.
func (a *Aggregator) Aggregate(batch []*models.Observation, filters models.FilterSet) []*models.RoomStatus {
	latest := newRoomIndex(len(batch))
	seen := make(map[string]struct{}, len(batch))
	matcher := newFilterMatcher(filters)
	malformed := 0

	for _, obs := range batch {
		if obs == nil || obs.RoomName == "" || obs.Timestamp.IsZero() {
			malformed++
			continue
		}
		seen[obs.RoomName] = struct{}{}

		if latest.has(obs.RoomName) {
			continue
		}
		if !matcher.matches(obs) {
			continue
		}
		latest.put(obs.RoomName, obs)
	}

	if malformed > 0 {
		a.logger.Debug("[aggregator] Skipped %d malformed observations", malformed)
	}
	a.logger.Debug("[aggregator] Reduced %d observations over %d rooms to %d statuses",
		len(batch), len(seen), latest.size())

	return latest.values()
}

// roomIndex is an insertion-ordered map from room name to its selected status.
type roomIndex struct {
	pos   map[string]int
	items []*models.RoomStatus
}

func newRoomIndex(capacity int) *roomIndex {
	return &roomIndex{
		pos:   make(map[string]int, capacity),
		items: make([]*models.RoomStatus, 0, capacity),
	}
}

func (ri *roomIndex) has(room string) bool {
	_, ok := ri.pos[room]
	return ok
}

func (ri *roomIndex) put(room string, status *models.RoomStatus) {
	if i, ok := ri.pos[room]; ok {
		ri.items[i] = status
		return
	}
	ri.pos[room] = len(ri.items)
	ri.items = append(ri.items, status)
}

func (ri *roomIndex) size() int { return len(ri.items) }

func (ri *roomIndex) values() []*models.RoomStatus {
	return ri.items
}

// filterMatcher holds the lower-cased active criteria of a FilterSet.
type filterMatcher struct {
	building  string
	floor     string
	classType string
	status    string
}

func newFilterMatcher(f models.FilterSet) filterMatcher {
	return filterMatcher{
		building:  strings.ToLower(f.Building),
		floor:     strings.ToLower(f.Floor),
		classType: strings.ToLower(f.ClassType),
		status:    strings.ToLower(f.Status),
	}
}

// matches applies substring tests to the descriptive fields and an exact,
// case-insensitive test to the status.
func (m filterMatcher) matches(obs *models.Observation) bool {
	if m.building != "" && !strings.Contains(strings.ToLower(obs.Building), m.building) {
		return false
	}
	if m.floor != "" && !strings.Contains(strings.ToLower(obs.Floor), m.floor) {
		return false
	}
	if m.classType != "" && !strings.Contains(strings.ToLower(obs.ClassType), m.classType) {
		return false
	}
	if m.status != "" && strings.ToLower(obs.Status) != m.status {
		return false
	}
	return true
}
