// Package api exposes the hub over HTTP: status reads and lifecycle
// commands. Responses use a uniform envelope so clients can switch on
// success without inspecting the payload shape.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"mcphub/internal/hub"
	"mcphub/internal/status"
	"mcphub/pkg/logging"
)

// Lifecycle is the slice of the controller the API invokes.
type Lifecycle interface {
	Start(ctx context.Context, cfg hub.ServerConfig) (hub.ServerRecord, error)
	Stop(ctx context.Context, id string) (hub.ServerRecord, error)
	Restart(ctx context.Context, id string) (hub.ServerRecord, error)
}

// Response is the uniform envelope for every API reply.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// Server serves the hub's HTTP API.
type Server struct {
	lifecycle Lifecycle
	views     *status.Aggregator
	http      *http.Server
}

// New builds the API server listening on addr.
func New(addr string, lifecycle Lifecycle, views *status.Aggregator) *Server {
	s := &Server{
		lifecycle: lifecycle,
		views:     views,
	}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Routes assembles the router. Exposed so tests can drive handlers
// through httptest without binding a socket.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleSystemStatus)
		r.Route("/servers", func(r chi.Router) {
			r.Get("/", s.handleListServers)
			r.Route("/{serverID}", func(r chi.Router) {
				r.Get("/", s.handleGetServer)
				r.Post("/start", s.handleStartServer)
				r.Post("/stop", s.handleStopServer)
				r.Post("/restart", s.handleRestartServer)
			})
		})
	})
	return r
}

// ListenAndServe blocks serving requests until Shutdown or a listener
// failure.
func (s *Server) ListenAndServe() error {
	logging.Info("API", "HTTP API listening on %s", s.http.Addr)
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("API", "HTTP API shutting down")
	return s.http.Shutdown(ctx)
}

func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Response{Success: true, Data: s.views.SystemOverview()})
}

func (s *Server) handleListServers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Response{Success: true, Data: s.views.Servers()})
}

func (s *Server) handleGetServer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "serverID")
	rec, err := s.views.Server(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: rec})
}

func (s *Server) handleStartServer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "serverID")

	// The stored record carries the server's configuration; starting by id
	// replays it.
	rec, err := s.views.Server(id)
	if err != nil {
		writeError(w, err)
		return
	}

	out, err := s.lifecycle.Start(r.Context(), rec.Config)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "Server " + id + " start initiated",
		Data:    out,
	})
}

func (s *Server) handleStopServer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "serverID")
	out, err := s.lifecycle.Stop(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "Server " + id + " stopped",
		Data:    out,
	})
}

func (s *Server) handleRestartServer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "serverID")
	out, err := s.lifecycle.Restart(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "Server " + id + " restarted",
		Data:    out,
	})
}

// writeError maps hub errors to HTTP statuses: unknown server is 404,
// invalid input is 400, everything else 500.
func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, hub.ErrUnknownServer):
		code = http.StatusNotFound
	case hub.IsValidation(err):
		code = http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		code = http.StatusGatewayTimeout
	}
	writeJSON(w, code, Response{Success: false, Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, body Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Error("API", err, "Failed to encode response")
	}
}
