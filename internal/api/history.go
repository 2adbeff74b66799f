package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/fermentwatch/internal/telemetry"
)

// defaultHistoryWindow is the range served when start is omitted.
const defaultHistoryWindow = 24 * time.Hour

// handleListSamples returns recorded samples for a project.
//
// Query parameters:
//   - kind: temperature (default), humidity or density
//   - start, end: RFC3339 or unix seconds; default the last 24 hours
func (s *Server) handleListSamples(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeServiceUnavailable(w, "history is not available: time-series store disabled")
		return
	}
	p, ok := s.loadProject(w, r)
	if !ok {
		return
	}

	kind := telemetry.KindTemperature
	if v := r.URL.Query().Get("kind"); v != "" {
		kind = telemetry.SampleKind(v)
		if !kind.Valid() {
			writeValidationError(w, fmt.Sprintf("unknown sample kind %q", v))
			return
		}
	}

	start, end, err := parseRange(r, time.Now().UTC())
	if err != nil {
		writeValidationError(w, err.Error())
		return
	}

	samples, err := s.history.QuerySamples(r.Context(), p.ID, kind, start, end)
	if err != nil {
		s.logger.Warn("sample history query failed", "project_id", p.ID, "error", err)
		writeError(w, http.StatusBadGateway, ErrCodeBadGateway, "failed to query samples")
		return
	}
	if samples == nil {
		samples = []telemetry.Sample{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"project_id": p.ID,
		"kind":       kind,
		"start":      start,
		"end":        end,
		"samples":    samples,
		"count":      len(samples),
	})
}

// handleListActuations returns outlet changes for a project in a time range.
func (s *Server) handleListActuations(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeServiceUnavailable(w, "history is not available: time-series store disabled")
		return
	}
	p, ok := s.loadProject(w, r)
	if !ok {
		return
	}

	start, end, err := parseRange(r, time.Now().UTC())
	if err != nil {
		writeValidationError(w, err.Error())
		return
	}

	events, err := s.history.QueryActuationEvents(r.Context(), p.ID, start, end)
	if err != nil {
		s.logger.Warn("actuation history query failed", "project_id", p.ID, "error", err)
		writeError(w, http.StatusBadGateway, ErrCodeBadGateway, "failed to query actuation events")
		return
	}
	if events == nil {
		events = []telemetry.ActuationEvent{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"project_id": p.ID,
		"start":      start,
		"end":        end,
		"events":     events,
		"count":      len(events),
	})
}

// parseRange reads start and end from the query string. A missing end is
// now; a missing start is 24 hours before end.
func parseRange(r *http.Request, now time.Time) (start, end time.Time, err error) {
	q := r.URL.Query()

	end = now
	if v := q.Get("end"); v != "" {
		if end, err = parseTimeParam(v); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("end: %w", err)
		}
	}
	start = end.Add(-defaultHistoryWindow)
	if v := q.Get("start"); v != "" {
		if start, err = parseTimeParam(v); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("start: %w", err)
		}
	}

	if !start.Before(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("start must be before end")
	}
	return start, end, nil
}

// parseTimeParam accepts RFC3339 or integer unix seconds.
func parseTimeParam(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid time %q: want RFC3339 or unix seconds", v)
}
