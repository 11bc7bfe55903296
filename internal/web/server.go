// Package web serves the alarm web UI and JSON API.
//
// Routes:
//
//	GET  /               embedded single-page UI
//	GET  /healthz        liveness probe
//	GET  /api/alarms     pending alarms, ascending by fire time
//	POST /api/alarms     add an alarm
//	GET  /api/alarms.ics pending alarms as an iCalendar feed
package web

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"alarmd/internal/alarm"
	"alarmd/pkg/logx"
)

//go:embed static/index.html
var indexHTML []byte

type Server struct {
	sched *alarm.Scheduler
	log   logx.Logger
	mux   *http.ServeMux
}

func New(sched *alarm.Scheduler, log logx.Logger) *Server {
	s := &Server{sched: sched, log: log, mux: http.NewServeMux()}
	s.registerRoutes()
	return s
}

// Handler returns the root http.Handler for this server.
func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /api/alarms", s.handleList)
	s.mux.HandleFunc("POST /api/alarms", s.handleAdd)
	s.mux.HandleFunc("GET /api/alarms.ics", s.handleICS)
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(indexHTML)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"pending": s.sched.Pending(),
	})
}

// alarmJSON is the wire form of one alarm.
type alarmJSON struct {
	ID          int64  `json:"id"`
	Description string `json:"description"`
	Datetime    string `json:"datetime"`
	Recurrence  string `json:"recurrence"`
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	entries := s.sched.List()
	out := make([]alarmJSON, 0, len(entries))
	for _, e := range entries {
		out = append(out, alarmJSON{
			ID:          e.ID,
			Description: e.Description,
			Datetime:    alarm.FormatFireTime(e.FireAt),
			Recurrence:  e.Recurrence.String(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type addRequest struct {
	Description string          `json:"description"`
	Datetime    string          `json:"datetime"`
	Recurrence  recurrenceField `json:"recurrence"`
}

// recurrenceField accepts both the label form ("Daily") and the legacy
// numeric form (1) on the wire.
type recurrenceField struct {
	kind alarm.Recurrence
}

func (f *recurrenceField) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("recurrence: expected string or number, got %s", b)
		}
		s = n.String()
	}
	kind, err := alarm.ParseRecurrence(s)
	if err != nil {
		return err
	}
	f.kind = kind
	return nil
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	ev, err := s.sched.Add(r.Context(), req.Description, req.Datetime, req.Recurrence.kind)
	switch {
	case errors.Is(err, alarm.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, alarm.ErrStopped):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		s.log.Error("add alarm failed", logx.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to persist alarm")
		return
	}

	writeJSON(w, http.StatusCreated, alarmJSON{
		ID:          ev.ID,
		Description: ev.Description,
		Datetime:    alarm.FormatFireTime(ev.FireAt),
		Recurrence:  ev.Recurrence.String(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// NewHTTPServer wraps the handler in an http.Server with sane timeouts.
// Shutdown is driven by main.
func NewHTTPServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      h,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
