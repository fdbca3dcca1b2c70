// HTTP control surface for the counter-drone engine
package api

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"counterdrone-sim/internal/broadcast"
	"counterdrone-sim/internal/sim"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

//go:embed templates/index.html
var content embed.FS

// Hub is the part of the broadcast loop the server needs.
type Hub interface {
	Register(obs broadcast.Observer) (string, error)
	Unregister(id string) bool
	Stats() broadcast.Stats
}

// Server exposes the engine over HTTP and streams the broadcast over WebSocket.
type Server struct {
	engine   *sim.Engine
	hub      Hub
	log      *slog.Logger
	mux      *http.ServeMux
	tmpl     *template.Template
	upgrader websocket.Upgrader
	started  time.Time
}

// NewServer wires every route. hub may be nil, in which case /ws answers 503.
func NewServer(engine *sim.Engine, hub Hub, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		engine: engine,
		hub:    hub,
		log:    log,
		mux:    http.NewServeMux(),
		tmpl:   template.Must(template.New("index.html").ParseFS(content, "templates/index.html")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		started: time.Now(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleHealth)
	s.mux.HandleFunc("GET /dashboard", s.handleDashboard)

	s.mux.HandleFunc("GET /api/drones", s.handleListDrones)
	s.mux.HandleFunc("POST /api/drones", s.handleAddDrone)
	s.mux.HandleFunc("GET /api/drones/{id}", s.handleGetDrone)
	s.mux.HandleFunc("DELETE /api/drones/{id}", s.handleRemoveDrone)

	s.mux.HandleFunc("GET /api/alerts", s.handleListAlerts)
	s.mux.HandleFunc("POST /api/alerts/{id}/acknowledge", s.handleAcknowledge)
	s.mux.HandleFunc("GET /api/stats", s.handleStats)

	s.mux.HandleFunc("GET /api/system/status", s.handleStatus)
	s.mux.HandleFunc("POST /api/system/simulator/config", s.handleConfig)
	s.mux.HandleFunc("POST /api/system/simulator/reset", s.handleReset)
	s.mux.HandleFunc("POST /api/system/simulator/add_drone", s.handleAddDrone)

	s.mux.HandleFunc("POST /api/countermeasures/jam", s.handleJam)
	s.mux.HandleFunc("POST /api/countermeasures/land", s.handleLand)
	s.mux.HandleFunc("POST /api/countermeasures/flag", s.handleFlag)
	s.mux.HandleFunc("DELETE /api/countermeasures/jam/{id}", s.handleStopJam)
	s.mux.HandleFunc("DELETE /api/countermeasures/flag/{id}/{kind}", s.handleClearFlag)
	s.mux.HandleFunc("POST /api/countermeasures/emergency/jam_all", s.handleEmergencyJam)
	s.mux.HandleFunc("POST /api/countermeasures/emergency/stop_all", s.handleEmergencyStop)

	s.mux.HandleFunc("GET /ws", s.handleWebSocket)
	s.mux.HandleFunc("GET /ws/drones", s.handleWebSocket)
}

// Handler returns the routed handler, logging every request.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		s.mux.ServeHTTP(w, r)
		s.log.Debug("http request", "method", r.Method, "path", r.URL.Path, "took", time.Since(start))
	})
}

// Start serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("api server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.log.Info("api server stopped")
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func success(w http.ResponseWriter, message string, fields map[string]any) {
	body := map[string]any{"status": "success", "message": message}
	for k, v := range fields {
		body[k] = v
	}
	writeJSON(w, http.StatusOK, body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"status": "error", "message": message})
}

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, sim.ErrConfiguration), errors.Is(err, sim.ErrUnknownEffect):
		return http.StatusBadRequest
	case errors.Is(err, sim.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, sim.ErrCapacity), errors.Is(err, sim.ErrNotInitialized):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		s.log.Error("request failed", "path", r.URL.Path, "err", err)
	}
	writeError(w, code, err.Error())
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &sim.ConfigError{Field: "body", Reason: err.Error()}
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "online",
		"service": "counterdrone-sim",
		"version": Version,
	})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	data := struct {
		Settings sim.Settings
		Version  string
	}{s.engine.Settings(), Version}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.Execute(w, data); err != nil {
		s.log.Error("render dashboard", "err", err)
	}
}
