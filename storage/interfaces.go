package storage

import (
	"context"
	"errors"

	"clasutil/models"
)

// ErrStoreUnavailable marks failures to reach or query the observation store.
// Callers must surface it instead of treating the batch as empty.
var ErrStoreUnavailable = errors.New("observation store unavailable")

// DefaultFetchLimit caps a recent-observations fetch when no limit is given.
const DefaultFetchLimit = 500

// ObservationReader supplies bounded batches of raw observations.
// Implementations return up to limit records across all rooms, newest first.
type ObservationReader interface {
	FetchRecentObservations(ctx context.Context, limit int) ([]*models.Observation, error)
}

// ObservationWriter persists newly ingested observations.
type ObservationWriter interface {
	Insert(ctx context.Context, obs *models.Observation) error
}

// ObservationStore is the full backing store used by the service.
type ObservationStore interface {
	ObservationReader
	ObservationWriter
	Ping(ctx context.Context) error
	Close() error
}

// StatusWriter is the interface any status export backend must satisfy.
type StatusWriter interface {
	WriteStatuses(rooms []*models.RoomStatus) error
	Close() error
}
