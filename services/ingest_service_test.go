package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clasutil/models"
	"clasutil/storage"
	"clasutil/utils"
)

type fakeWriter struct {
	stored []*models.Observation
	err    error
}

func (f *fakeWriter) Insert(ctx context.Context, obs *models.Observation) error {
	if f.err != nil {
		return f.err
	}
	f.stored = append(f.stored, obs)
	return nil
}

func newTestIngest(w storage.ObservationWriter) *IngestService {
	svc := NewIngestService(w, utils.NewNopLogger())
	svc.now = func() time.Time { return t0 }
	return svc
}

func TestRecordStoresObservation(t *testing.T) {
	w := &fakeWriter{}
	svc := newTestIngest(w)

	got, err := svc.Record(context.Background(), ObservationInput{
		RoomName:  "  Room A ",
		Status:    "occupied",
		Timestamp: "2026-03-02T08:15:00Z",
		Building:  "North Hall",
	})

	require.NoError(t, err)
	require.Len(t, w.stored, 1)
	assert.Equal(t, "Room A", got.RoomName)
	assert.Equal(t, "North Hall", got.Building)
	assert.True(t, got.Timestamp.Equal(at(15)))
	_, err = uuid.Parse(got.ID)
	assert.NoError(t, err)
}

func TestRecordDefaultsTimestampToNow(t *testing.T) {
	svc := newTestIngest(&fakeWriter{})

	got, err := svc.Record(context.Background(), ObservationInput{RoomName: "Room A", Status: "empty"})

	require.NoError(t, err)
	assert.True(t, got.Timestamp.Equal(t0))
}

func TestRecordAcceptsZonelessTimestamp(t *testing.T) {
	svc := newTestIngest(&fakeWriter{})

	got, err := svc.Record(context.Background(), ObservationInput{
		RoomName:  "Room A",
		Status:    "empty",
		Timestamp: "2026-03-02T08:15:00.123456",
	})

	require.NoError(t, err)
	assert.Equal(t, time.UTC, got.Timestamp.Location())
	assert.Equal(t, 8, got.Timestamp.Hour())
	assert.Equal(t, 123456000, got.Timestamp.Nanosecond())
}

func TestRecordRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name string
		in   ObservationInput
	}{
		{"missing room", ObservationInput{Status: "occupied"}},
		{"blank room", ObservationInput{RoomName: "   ", Status: "occupied"}},
		{"missing status", ObservationInput{RoomName: "Room A"}},
		{"bad timestamp", ObservationInput{RoomName: "Room A", Status: "empty", Timestamp: "yesterday"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &fakeWriter{}
			_, err := newTestIngest(w).Record(context.Background(), tt.in)
			assert.ErrorIs(t, err, ErrInvalidObservation)
			assert.Empty(t, w.stored)
		})
	}
}

func TestRecordStoreFailure(t *testing.T) {
	svc := newTestIngest(&fakeWriter{err: storage.ErrStoreUnavailable})

	_, err := svc.Record(context.Background(), ObservationInput{RoomName: "Room A", Status: "empty"})

	assert.True(t, errors.Is(err, storage.ErrStoreUnavailable))
	assert.False(t, errors.Is(err, ErrInvalidObservation))
}
