package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/oszuidwest/zwfm-soundmeter/internal/audio"
	"github.com/oszuidwest/zwfm-soundmeter/internal/events"
	"github.com/oszuidwest/zwfm-soundmeter/internal/server"
	"github.com/oszuidwest/zwfm-soundmeter/internal/types"
)

// defaultEventsLimit is the page size of GET /api/events without a limit.
const defaultEventsLimit = 50

// registerAPIRoutes adds the REST endpoints to mux behind auth.
func (s *Server) registerAPIRoutes(mux *http.ServeMux, auth func(http.HandlerFunc) http.HandlerFunc) {
	mux.HandleFunc("/api/reading", auth(s.handleAPIReading))
	mux.HandleFunc("/api/levels", auth(s.handleAPILevels))
	mux.HandleFunc("/api/status", auth(s.handleAPIStatus))
	mux.HandleFunc("/api/meter/start", auth(s.handleAPIMeterStart))
	mux.HandleFunc("/api/meter/stop", auth(s.handleAPIMeterStop))
	mux.HandleFunc("/api/devices", auth(s.handleAPIDevices))
	mux.HandleFunc("/api/events", auth(s.handleAPIEvents))
	mux.HandleFunc("/api/config", auth(s.handleAPIConfig))
	mux.HandleFunc("/api/alerts", auth(s.handleAPIAlerts))
}

// API response helpers

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// allowMethod reports whether r uses method, answering 405 otherwise.
func (s *Server) allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return false
	}
	return true
}

// parseJSON reads, parses and validates JSON from the request body.
// On failure the error response has already been written.
func parseJSON[T any](s *Server, w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return v, false
	}
	if verr := server.ValidateRequest(&v); verr != nil {
		s.writeJSON(w, http.StatusBadRequest, verr)
		return v, false
	}
	return v, true
}

// handleAPIReading returns the latest reading.
// GET /api/reading
func (s *Server) handleAPIReading(w http.ResponseWriter, r *http.Request) {
	if !s.allowMethod(w, r, http.MethodGet) {
		return
	}
	s.writeJSON(w, http.StatusOK, s.monitor.Reading())
}

// handleAPILevels returns the latest reading with peak hold and alert state.
// GET /api/levels
func (s *Server) handleAPILevels(w http.ResponseWriter, r *http.Request) {
	if !s.allowMethod(w, r, http.MethodGet) {
		return
	}
	s.writeJSON(w, http.StatusOK, s.monitor.Levels())
}

// handleAPIStatus returns meter state, levels and version information.
// GET /api/status
func (s *Server) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	if !s.allowMethod(w, r, http.MethodGet) {
		return
	}
	s.writeJSON(w, http.StatusOK, types.APIStatusResponse{
		Meter:   s.monitor.Status(),
		Levels:  s.monitor.Levels(),
		Version: s.version.Info(),
	})
}

// handleAPIMeterStart starts sampling.
// POST /api/meter/start
func (s *Server) handleAPIMeterStart(w http.ResponseWriter, r *http.Request) {
	if !s.allowMethod(w, r, http.MethodPost) {
		return
	}
	if err := s.monitor.Start(); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, audio.ErrUnknownBackend) || errors.Is(err, audio.ErrBackendUnavailable) {
			status = http.StatusConflict
		}
		s.writeError(w, status, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, s.monitor.Status())
}

// handleAPIMeterStop stops sampling.
// POST /api/meter/stop
func (s *Server) handleAPIMeterStop(w http.ResponseWriter, r *http.Request) {
	if !s.allowMethod(w, r, http.MethodPost) {
		return
	}
	if err := s.monitor.Stop(); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, s.monitor.Status())
}

// handleAPIDevices returns available audio devices.
// GET /api/devices
func (s *Server) handleAPIDevices(w http.ResponseWriter, r *http.Request) {
	if !s.allowMethod(w, r, http.MethodGet) {
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"devices": audio.Devices(),
	})
}

// eventsResponse is returned by GET /api/events.
type eventsResponse struct {
	Events  []events.Event `json:"events"`
	HasMore bool           `json:"has_more"`
}

// handleAPIEvents returns meter events, newest first.
// GET /api/events?limit=50&offset=0&type=meter|loud|report
func (s *Server) handleAPIEvents(w http.ResponseWriter, r *http.Request) {
	if !s.allowMethod(w, r, http.MethodGet) {
		return
	}

	path := s.monitor.EventLogPath()
	if path == "" {
		s.writeJSON(w, http.StatusOK, eventsResponse{Events: []events.Event{}})
		return
	}

	q := r.URL.Query()
	limit, err := queryInt(q.Get("limit"), defaultEventsLimit)
	if err != nil || limit < 1 {
		s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	offset, err := queryInt(q.Get("offset"), 0)
	if err != nil || offset < 0 {
		s.writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}
	filter := events.TypeFilter(q.Get("type"))
	switch filter {
	case events.FilterAll, events.FilterMeter, events.FilterLoud, events.FilterReport:
	default:
		s.writeError(w, http.StatusBadRequest, "type must be meter, loud or report")
		return
	}

	list, hasMore, err := events.ReadLast(path, limit, offset, filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, eventsResponse{Events: list, HasMore: hasMore})
}

// queryInt parses v as an integer, returning def for an empty value.
func queryInt(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

// handleAPIConfig returns the configuration with secrets masked.
// GET /api/config
func (s *Server) handleAPIConfig(w http.ResponseWriter, r *http.Request) {
	if !s.allowMethod(w, r, http.MethodGet) {
		return
	}
	s.writeJSON(w, http.StatusOK, s.config.Redacted())
}

// handleAPIAlerts updates the loud threshold and alert timing.
// POST /api/alerts
func (s *Server) handleAPIAlerts(w http.ResponseWriter, r *http.Request) {
	if !s.allowMethod(w, r, http.MethodPost) {
		return
	}

	req, ok := parseJSON[server.AlertsUpdateRequest](s, w, r)
	if !ok {
		return
	}

	if err := server.ApplyAlertsUpdate(s.config, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.monitor.ApplySettings()

	snap := s.config.Snapshot()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"loud_threshold": snap.LoudThreshold,
		"duration_ms":    snap.AlertDurationMs,
		"recovery_ms":    snap.AlertRecoveryMs,
	})
}
