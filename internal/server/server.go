package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/dvcrn/turmeric/internal/coordinator"
	"github.com/rs/zerolog"
)

// HTTPClient is an interface for making HTTP requests
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Service is what the server exposes over HTTP
type Service interface {
	Snapshot() *coordinator.Snapshot
	Status() coordinator.Status
	Refresh(ctx context.Context) (*coordinator.Snapshot, error)
	ForceRefresh(ctx context.Context) (*coordinator.Snapshot, error)
	Subscribe() (<-chan coordinator.Update, func())
}

type Server struct {
	svc           Service
	mux           *http.ServeMux
	logger        zerolog.Logger
	hub           *hub
	refreshOnRead bool
}

// Option configures a Server
type Option func(*Server)

// WithRefreshOnRead runs a regular tick before every read. Workers keep no
// goroutine alive between requests, so reads drive the schedule there.
func WithRefreshOnRead() Option {
	return func(s *Server) { s.refreshOnRead = true }
}

func New(logger zerolog.Logger, svc Service, opts ...Option) *Server {
	s := &Server{
		svc:    svc,
		mux:    http.NewServeMux(),
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hub = newHub(svc, logger)

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /health", s.healthHandler)
	s.mux.HandleFunc("GET /v1/snapshot", s.snapshotHandler)
	s.mux.HandleFunc("GET /v1/snapshot/{resource}", s.resourceHandler)
	s.mux.HandleFunc("GET /v1/status", s.statusHandler)
	s.mux.HandleFunc("GET /v1/ws", s.websocketHandler)
	s.mux.HandleFunc("POST /admin/refresh", s.adminMiddleware(s.refreshHandler))
	s.mux.HandleFunc("/", s.notFoundHandler)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.loggingMiddleware(s.mux).ServeHTTP(w, r)
}

// Close disconnects websocket clients
func (s *Server) Close() {
	s.hub.close()
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		s.logger.Debug().
			Str("method", r.Method).
			Str("uri", r.RequestURI).
			Str("remote_addr", r.RemoteAddr).
			Str("user_agent", r.UserAgent()).
			Msg("Incoming request")
		next.ServeHTTP(w, r)
		s.logger.Info().
			Str("method", r.Method).
			Str("uri", r.RequestURI).
			Dur("duration", time.Since(start)).
			Msg("Finished request")
	})
}

// maybeRefresh runs a tick in refresh-on-read mode. Failures are already
// recorded in Status, so reads still serve the last good data.
func (s *Server) maybeRefresh(r *http.Request) {
	if !s.refreshOnRead {
		return
	}
	if _, err := s.svc.Refresh(r.Context()); err != nil {
		s.logger.Warn().Err(err).Msg("Refresh on read failed")
	}
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	s.maybeRefresh(r)
	st := s.svc.Status()

	switch {
	case st.LastTick.IsZero():
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
	case !st.Healthy():
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "error": st.LastError})
	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (s *Server) snapshotHandler(w http.ResponseWriter, r *http.Request) {
	s.maybeRefresh(r)
	writeJSON(w, http.StatusOK, s.svc.Snapshot())
}

func (s *Server) resourceHandler(w http.ResponseWriter, r *http.Request) {
	s.maybeRefresh(r)
	resource := r.PathValue("resource")

	entry, ok := s.svc.Snapshot().Get(resource)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "resource not fetched yet: " + resource})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Last-Modified", entry.FetchedAt.UTC().Format(http.TimeFormat))
	w.WriteHeader(http.StatusOK)
	w.Write(entry.Payload)
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	s.maybeRefresh(r)
	writeJSON(w, http.StatusOK, s.svc.Status())
}

type refreshResponse struct {
	Status   string                `json:"status"`
	Error    string                `json:"error,omitempty"`
	Snapshot *coordinator.Snapshot `json:"snapshot,omitempty"`
}

func (s *Server) refreshHandler(w http.ResponseWriter, r *http.Request) {
	snap, err := s.svc.ForceRefresh(r.Context())
	if err != nil {
		s.logger.Warn().Err(err).Msg("Forced refresh failed")
		status := http.StatusBadGateway
		if errors.Is(err, context.Canceled) {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, refreshResponse{Status: "error", Error: err.Error(), Snapshot: snap})
		return
	}
	writeJSON(w, http.StatusOK, refreshResponse{Status: "ok", Snapshot: snap})
}

func (s *Server) notFoundHandler(w http.ResponseWriter, r *http.Request) {
	s.logger.Warn().
		Str("method", r.Method).
		Str("uri", r.RequestURI).
		Str("remote_addr", r.RemoteAddr).
		Str("user_agent", r.UserAgent()).
		Msg("Unhandled route")
	http.NotFound(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
