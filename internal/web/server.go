// Package web serves the HTTP control API and the websocket live feed.
package web

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"github.com/MrWong99/buzzer/internal/app"
	"github.com/MrWong99/buzzer/internal/export"
	"github.com/MrWong99/buzzer/internal/health"
	"github.com/MrWong99/buzzer/internal/observe"
	"github.com/MrWong99/buzzer/internal/session"
	"github.com/MrWong99/buzzer/internal/source"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxBody bounds request bodies.
const maxBody = 64 << 10

// Config holds the dependencies of a [Server].
type Config struct {
	Sessions *app.SessionManager
	Health   *health.Handler

	// Metrics records HTTP request durations. Defaults to
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// MetricsHandler, when set, is served on /metrics.
	MetricsHandler http.Handler

	// AllowedOrigins are the cross-origin patterns admitted to the live feed.
	AllowedOrigins []string
}

// Server is the HTTP control surface of a running decoder.
type Server struct {
	sessions *app.SessionManager
	hub      *Hub
	handler  http.Handler
	unlisten func()
}

// New builds the route table and subscribes the live hub to the session
// manager. Call [Server.Close] to unsubscribe.
func New(cfg Config) *Server {
	s := &Server{
		sessions: cfg.Sessions,
		hub:      NewHub(cfg.Sessions.Info, cfg.AllowedOrigins...),
	}
	s.unlisten = cfg.Sessions.AddListener(s.hub)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/session", s.startSession)
	mux.HandleFunc("DELETE /api/session", s.stopSession)
	mux.HandleFunc("GET /api/session", s.getSession)
	mux.HandleFunc("GET /api/report", s.getReport)
	mux.HandleFunc("GET /api/sessions/{id}/report", s.getArchivedReport)
	mux.HandleFunc("GET /api/stats", s.getStats)
	mux.HandleFunc("POST /api/export", s.exportSession)
	mux.HandleFunc("GET /api/presets", s.getPresets)
	mux.Handle("GET /api/live", s.hub)
	if cfg.Health != nil {
		cfg.Health.Register(mux)
	}
	if cfg.MetricsHandler != nil {
		mux.Handle("GET /metrics", cfg.MetricsHandler)
	}

	m := cfg.Metrics
	if m == nil {
		m = observe.DefaultMetrics()
	}
	s.handler = observe.Middleware(m)(mux)
	return s
}

// Handler returns the instrumented route table.
func (s *Server) Handler() http.Handler { return s.handler }

// Hub returns the live feed hub.
func (s *Server) Hub() *Hub { return s.hub }

// Close unsubscribes the live hub from the session manager.
func (s *Server) Close() error {
	s.unlisten()
	return nil
}

// StartRequest is the body of POST /api/session. Both fields are optional;
// Preset names an entry of GET /api/presets and wins over URL.
type StartRequest struct {
	URL    string `json:"url"`
	Preset string `json:"preset"`
}

type sessionResponse struct {
	Session app.SessionInfo   `json:"session"`
	State   *session.Snapshot `json:"state,omitempty"`
}

type exportResponse struct {
	Files []string `json:"files"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	url := req.URL
	if req.Preset != "" {
		p, ok := source.LookupPreset(req.Preset)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown preset "+req.Preset)
			return
		}
		url = p.URL
	}

	info, err := s.sessions.Start(r.Context(), url)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, sessionResponse{Session: info})
	case errors.Is(err, app.ErrSessionActive):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrNoURL), errors.Is(err, source.ErrUnsupportedScheme):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

func (s *Server) stopSession(w http.ResponseWriter, r *http.Request) {
	info, err := s.sessions.Stop(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, sessionResponse{Session: info})
	case errors.Is(err, app.ErrNoSession):
		writeError(w, http.StatusNotFound, "no active session")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) getSession(w http.ResponseWriter, _ *http.Request) {
	snap, info, err := s.sessions.Snapshot()
	resp := sessionResponse{Session: info}
	if err == nil {
		resp.State = &snap
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.sessions.Report(r.Context())
	if err != nil {
		writeError(w, http.StatusNotFound, "no session")
		return
	}
	if r.URL.Query().Get("format") == "text" {
		writeText(w, report.Text())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) getArchivedReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.sessions.ArchivedReport(r.Context(), r.PathValue("id"))
	switch {
	case err == nil:
	case errors.Is(err, app.ErrNoStore):
		writeError(w, http.StatusNotFound, "no session store configured")
		return
	case errors.Is(err, export.ErrUnknownSession):
		writeError(w, http.StatusNotFound, "unknown session")
		return
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if r.URL.Query().Get("format") == "text" {
		writeText(w, report.Text())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) getStats(w http.ResponseWriter, _ *http.Request) {
	text, err := s.sessions.StatisticsText()
	if err != nil {
		writeError(w, http.StatusNotFound, "no session")
		return
	}
	writeText(w, text)
}

func (s *Server) exportSession(w http.ResponseWriter, r *http.Request) {
	files, err := s.sessions.Export(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, exportResponse{Files: files})
	case errors.Is(err, app.ErrNoSession):
		writeError(w, http.StatusNotFound, "no session")
	case errors.Is(err, export.ErrNoData):
		writeError(w, http.StatusConflict, "no data to export")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) getPresets(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, source.Presets())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("web: marshal response", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeText(w http.ResponseWriter, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, text)
}
