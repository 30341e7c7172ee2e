package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"wiimwatch/internal/settings"
	"wiimwatch/internal/view"
)

//go:embed static/*
var embeddedStatic embed.FS

// Controller is the session surface exposed over HTTP.
type Controller interface {
	Settings() settings.Settings
	UpdateSettings(settings.Settings) error
	RequestExit() bool
	Resume() bool
}

// Server wraps HTTP serving of the detail screen, its API and static assets.
type Server struct {
	httpServer *http.Server
	screen     *view.Screen
	controller Controller
	metrics    http.Handler
	hub        *Hub
	staticFS   fs.FS
	logger     *slog.Logger
}

// New creates a configured HTTP server and subscribes it to screen redraws.
func New(addr string, screen *view.Screen, controller Controller, metrics http.Handler, logger *slog.Logger) *Server {
	staticFS, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		panic("static assets missing: " + err.Error())
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		screen:     screen,
		controller: controller,
		metrics:    metrics,
		hub:        NewHub(),
		staticFS:   staticFS,
		logger:     logger,
	}
	screen.AddListener(s.hub)
	s.httpServer = &http.Server{Addr: addr, Handler: s.Router()}
	return s
}

// Run blocks and serves HTTP traffic.
func (s *Server) Run() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts the server down.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.httpServer.Shutdown(ctx)
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServer(http.FS(s.staticFS)))).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/screen", s.handleScreen).Methods(http.MethodGet)
	api.HandleFunc("/screen/ws", s.handleScreenWS).Methods(http.MethodGet)
	api.HandleFunc("/settings", s.handleGetSettings).Methods(http.MethodGet)
	api.HandleFunc("/settings", s.handlePutSettings).Methods(http.MethodPut)
	api.HandleFunc("/recover", s.handleRecover).Methods(http.MethodPost)
	return r
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	data, err := fs.ReadFile(s.staticFS, "index.html")
	if err != nil {
		http.Error(w, "index missing", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(data)
}

func (s *Server) handleScreen(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.screen.State())
}

type settingsResponse struct {
	ServerAddress  string `json:"server_address"`
	UpdateInterval int    `json:"update_interval"`
	IntervalMS     int64  `json:"interval_ms"`
	HasAPIKey      bool   `json:"has_api_key"`
}

func newSettingsResponse(cur settings.Settings) settingsResponse {
	return settingsResponse{
		ServerAddress:  cur.ServerAddress,
		UpdateInterval: cur.UpdateInterval,
		IntervalMS:     cur.Interval().Milliseconds(),
		HasAPIKey:      cur.APIKey != "",
	}
}

func (s *Server) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, newSettingsResponse(s.controller.Settings()))
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var patch settings.Settings
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}

	next := s.controller.Settings().Merge(patch)
	if err := s.controller.UpdateSettings(next); err != nil {
		if errors.Is(err, settings.ErrInvalid) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("save settings", "error", err)
		writeError(w, http.StatusInternalServerError, "could not save settings")
		return
	}
	s.logger.Info("settings updated", "server", next.ServerAddress, "interval", next.Interval())
	writeJSON(w, http.StatusOK, newSettingsResponse(next))
}

type recoverRequest struct {
	Action string `json:"action"`
}

func (s *Server) handleRecover(w http.ResponseWriter, r *http.Request) {
	var req recoverRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}

	var accepted bool
	switch strings.ToLower(strings.TrimSpace(req.Action)) {
	case "exit":
		accepted = s.controller.RequestExit()
	case "settings", "resume":
		accepted = s.controller.Resume()
	default:
		writeError(w, http.StatusBadRequest, `action must be "exit" or "settings"`)
		return
	}

	if !accepted {
		writeError(w, http.StatusConflict, "no error dialog is open")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"action": req.Action})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{
		"error":   http.StatusText(status),
		"message": msg,
	})
}
