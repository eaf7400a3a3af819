package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clasutil/models"
	"clasutil/services"
	"clasutil/utils"
)

type fakeRecorder struct {
	got []services.ObservationInput
	err error
}

func (f *fakeRecorder) Record(ctx context.Context, in services.ObservationInput) (*models.Observation, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.got = append(f.got, in)
	return &models.Observation{RoomName: in.RoomName, Status: in.Status}, nil
}

const topicPattern = "clasutil/rooms/+/status"

func TestHandleMessageRecordsPayload(t *testing.T) {
	rec := &fakeRecorder{}
	s := NewSubscriber(nil, topicPattern, rec, utils.NewNopLogger())

	err := s.HandleMessage("clasutil/rooms/Room A/status",
		[]byte(`{"room_name":"Room A","status":"occupied","timestamp":"2026-03-02T08:00:00.5","building":"North Hall"}`))

	require.NoError(t, err)
	require.Len(t, rec.got, 1)
	assert.Equal(t, "Room A", rec.got[0].RoomName)
	assert.Equal(t, "North Hall", rec.got[0].Building)
}

func TestHandleMessageTakesRoomFromTopic(t *testing.T) {
	rec := &fakeRecorder{}
	s := NewSubscriber(nil, topicPattern, rec, utils.NewNopLogger())

	err := s.HandleMessage("clasutil/rooms/Room B/status", []byte(`{"status":"empty"}`))

	require.NoError(t, err)
	require.Len(t, rec.got, 1)
	assert.Equal(t, "Room B", rec.got[0].RoomName)
}

func TestHandleMessageRejectsBadJSON(t *testing.T) {
	rec := &fakeRecorder{}
	s := NewSubscriber(nil, topicPattern, rec, utils.NewNopLogger())

	err := s.HandleMessage("clasutil/rooms/Room B/status", []byte(`not json`))

	assert.Error(t, err)
	assert.Empty(t, rec.got)
}

func TestHandleMessagePropagatesRecorderError(t *testing.T) {
	rec := &fakeRecorder{err: services.ErrInvalidObservation}
	s := NewSubscriber(nil, topicPattern, rec, utils.NewNopLogger())

	err := s.HandleMessage("clasutil/rooms/Room B/status", []byte(`{"status":""}`))

	assert.ErrorIs(t, err, services.ErrInvalidObservation)
}

func TestRoomFromTopic(t *testing.T) {
	tests := []struct {
		pattern, topic, want string
	}{
		{topicPattern, "clasutil/rooms/Room A/status", "Room A"},
		{topicPattern, "clasutil/rooms/Room A/extra/status", ""},
		{topicPattern, "other/rooms/Room A/status", ""},
		{topicPattern, "clasutil/rooms/Room A/battery", ""},
		{"clasutil/status", "clasutil/status", ""},
		{"+/status", "Lab 3/status", "Lab 3"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, roomFromTopic(tt.pattern, tt.topic), "%s vs %s", tt.pattern, tt.topic)
	}
}
