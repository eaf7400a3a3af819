package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"clasutil/models"
	"clasutil/storage"
	"clasutil/utils"
)

// ErrInvalidObservation is returned when an ingested payload fails validation.
var ErrInvalidObservation = errors.New("invalid observation")

// Detectors emit naive UTC timestamps (no zone suffix) as well as RFC 3339.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// ObservationInput is the payload accepted from detectors.
type ObservationInput struct {
	RoomName  string `json:"room_name" validate:"required,max=128"`
	Status    string `json:"status" validate:"required,max=64"`
	Timestamp string `json:"timestamp,omitempty" validate:"max=64"`
	Building  string `json:"building,omitempty" validate:"max=128"`
	Floor     string `json:"floor,omitempty" validate:"max=64"`
	ClassType string `json:"class_type,omitempty" validate:"max=64"`
}

// IngestService validates detector payloads and stores them as observations.
type IngestService struct {
	store    storage.ObservationWriter
	validate *validator.Validate
	logger   *utils.Logger
	now      func() time.Time
}

func NewIngestService(store storage.ObservationWriter, logger *utils.Logger) *IngestService {
	return &IngestService{
		store:    store,
		validate: validator.New(),
		logger:   logger,
		now:      time.Now,
	}
}

// Record validates in, assigns an ID and a timestamp when missing, and stores it.
func (s *IngestService) Record(ctx context.Context, in ObservationInput) (*models.Observation, error) {
	obs, err := s.normalise(in)
	if err != nil {
		s.logger.Warn("[ingest] Rejected observation for %q: %v", in.RoomName, err)
		return nil, err
	}

	if err := s.store.Insert(ctx, obs); err != nil {
		return nil, fmt.Errorf("services: record observation: %w", err)
	}

	s.logger.Debug("[ingest] Stored %s for %s (%s)", obs.Status, obs.RoomName, obs.ID)
	return obs, nil
}

func (s *IngestService) normalise(in ObservationInput) (*models.Observation, error) {
	in.RoomName = strings.TrimSpace(in.RoomName)
	in.Status = strings.TrimSpace(in.Status)
	in.Timestamp = strings.TrimSpace(in.Timestamp)

	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidObservation, err)
	}

	ts := s.now().UTC()
	if in.Timestamp != "" {
		parsed, err := parseTimestamp(in.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("%w: timestamp %q: %w", ErrInvalidObservation, in.Timestamp, err)
		}
		ts = parsed
	}

	return &models.Observation{
		ID:        uuid.NewString(),
		RoomName:  in.RoomName,
		Status:    in.Status,
		Timestamp: ts,
		Building:  strings.TrimSpace(in.Building),
		Floor:     strings.TrimSpace(in.Floor),
		ClassType: strings.TrimSpace(in.ClassType),
	}, nil
}

// parseTimestamp accepts RFC 3339 and zone-less ISO-8601; zone-less values are UTC.
func parseTimestamp(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
