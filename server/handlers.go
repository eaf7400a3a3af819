package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"clasutil/models"
	"clasutil/services"
)

const maxIngestBody = 1 << 20

// dashboardView is the data handed to the dashboard template.
type dashboardView struct {
	Rooms         []*models.RoomStatus
	OccupiedCount int
	EmptyCount    int
	Filters       models.FilterSet
	GeneratedAt   time.Time
}

// filtersFromQuery reads the four optional filters. Absent and empty
// parameters both come out as "" and do not constrain.
func filtersFromQuery(r *http.Request) models.FilterSet {
	q := r.URL.Query()
	return models.FilterSet{
		Building:  q.Get("building"),
		Floor:     q.Get("floor"),
		ClassType: q.Get("class_type"),
		Status:    q.Get("status"),
	}
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	filters := filtersFromQuery(r)

	report, err := s.statuses.ListStatuses(r.Context(), filters)
	if err != nil {
		s.logger.Error("[http] Dashboard query failed: %v", err)
		http.Error(w, "Room status data is currently unavailable.", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	view := dashboardView{
		Rooms:         report.Rooms,
		OccupiedCount: report.OccupiedCount,
		EmptyCount:    report.EmptyCount,
		Filters:       filters,
		GeneratedAt:   time.Now(),
	}
	if err := s.tmpl.Execute(&buf, view); err != nil {
		s.logger.Error("[http] Render dashboard: %v", err)
		http.Error(w, "Failed to render dashboard.", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		s.logger.Warn("[http] Write dashboard: %v", err)
	}
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.statuses.MapStatuses(r.Context(), filtersFromQuery(r))
	if err != nil {
		s.logger.Error("[http] Data query failed: %v", err)
		s.writeError(w, http.StatusInternalServerError, "room status data is currently unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, rooms)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":   "ok",
		"uptime_s": int(time.Since(s.start).Seconds()),
	}
	if s.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.pinger.Ping(ctx); err != nil {
			s.logger.Warn("[http] Health check failed: %v", err)
			body["status"] = "unavailable"
			body["error"] = err.Error()
			s.writeJSON(w, http.StatusServiceUnavailable, body)
			return
		}
	}
	s.writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var in services.ObservationInput
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxIngestBody))
	if err := dec.Decode(&in); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}

	obs, err := s.recorder.Record(r.Context(), in)
	switch {
	case errors.Is(err, services.ErrInvalidObservation):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		s.logger.Error("[http] Ingest failed: %v", err)
		s.writeError(w, http.StatusInternalServerError, "failed to store observation")
	default:
		s.writeJSON(w, http.StatusCreated, obs)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("[http] Encode JSON response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]any{"error": msg})
}
