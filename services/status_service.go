package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clasutil/models"
	"clasutil/storage"
	"clasutil/utils"
)

// StatusService answers current-status queries on top of the Aggregator.
type StatusService struct {
	store        storage.ObservationReader
	aggregator   *Aggregator
	logger       *utils.Logger
	fetchLimit   int
	fetchTimeout time.Duration
}

// NewStatusService wires the query façade. A non-positive fetchLimit falls
// back to storage.DefaultFetchLimit; a non-positive fetchTimeout disables the
// per-query timeout.
func NewStatusService(store storage.ObservationReader, aggregator *Aggregator, logger *utils.Logger, fetchLimit int, fetchTimeout time.Duration) *StatusService {
	if fetchLimit <= 0 {
		fetchLimit = storage.DefaultFetchLimit
	}
	return &StatusService{
		store:        store,
		aggregator:   aggregator,
		logger:       logger,
		fetchLimit:   fetchLimit,
		fetchTimeout: fetchTimeout,
	}
}

// ListStatuses returns the current status of every matching room together
// with the occupied and empty counts.
func (s *StatusService) ListStatuses(ctx context.Context, filters models.FilterSet) (*models.StatusReport, error) {
	rooms, err := s.latest(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("services: list statuses: %w", err)
	}

	occupied, empty := CountStatuses(rooms)
	return &models.StatusReport{
		Rooms:         rooms,
		OccupiedCount: occupied,
		EmptyCount:    empty,
		Filters:       filters,
	}, nil
}

// MapStatuses returns the current status of every matching room keyed by room name.
func (s *StatusService) MapStatuses(ctx context.Context, filters models.FilterSet) (map[string]models.RoomEntry, error) {
	rooms, err := s.latest(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("services: map statuses: %w", err)
	}
	return ToRoomMap(rooms), nil
}

func (s *StatusService) latest(ctx context.Context, filters models.FilterSet) ([]*models.RoomStatus, error) {
	if s.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.fetchTimeout)
		defer cancel()
	}

	batch, err := s.store.FetchRecentObservations(ctx, s.fetchLimit)
	if err != nil {
		s.logger.Error("[status] Fetch of recent observations failed: %v", err)
		if !errors.Is(err, storage.ErrStoreUnavailable) {
			err = fmt.Errorf("%w: %w", storage.ErrStoreUnavailable, err)
		}
		return nil, err
	}

	return s.aggregator.Aggregate(batch, filters), nil
}

// CountStatuses counts results whose status is exactly "occupied" or "empty".
// Other values, including differently-cased ones, fall in neither bucket.
func CountStatuses(rooms []*models.RoomStatus) (occupied, empty int) {
	for _, r := range rooms {
		switch r.Status {
		case models.StatusOccupied:
			occupied++
		case models.StatusEmpty:
			empty++
		}
	}
	return occupied, empty
}

// ToRoomMap reshapes statuses into the compact per-room form. A repeated room
// name overwrites the earlier entry.
func ToRoomMap(rooms []*models.RoomStatus) map[string]models.RoomEntry {
	out := make(map[string]models.RoomEntry, len(rooms))
	for _, r := range rooms {
		out[r.RoomName] = models.RoomEntry{
			Status:    r.Status,
			Timestamp: r.Timestamp,
			Building:  r.Building,
			Floor:     r.Floor,
			ClassType: r.ClassType,
		}
	}
	return out
}
