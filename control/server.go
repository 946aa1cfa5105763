// Package control implements the minimal imperative HTTP control surface
// named in spec.md §6: starting and stopping individual managed
// components, replacing the geographic subscription filter, and
// reporting aggregate status. It is grounded on the teacher's gateway
// HTTP handler package, stripped of its GraphQL machinery down to the
// plain net/http JSON endpoints SPEC_FULL.md §12 names.
package control

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/frye/ais-to-nmea0183/service"
)

// Server is the control surface's HTTP server.
type Server struct {
	controller *service.Controller
	logger     *slog.Logger

	httpServer *http.Server
}

// Option configures optional Server behavior at construction.
type Option func(*Server)

// WithLogger overrides the fallback slog.Default()-derived logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// New constructs a control Server bound to addr, operating on
// controller.
func New(addr string, controller *service.Controller, opts ...Option) *Server {
	s := &Server{controller: controller}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default().With("component", "control")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /control/start/{component}", s.handleStart)
	mux.HandleFunc("POST /control/stop/{component}", s.handleStop)
	mux.HandleFunc("POST /control/bounding-box", s.handleBoundingBox)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// Handler exposes the control surface's routes for tests and for
// embedding into a larger mux, without requiring a bound listener.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins serving in a background goroutine and returns
// immediately; a bind failure surfaces asynchronously through the
// logger, matching spec.md §7's BindFailure semantics for the other
// sinks.
func (s *Server) Start() error {
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("control surface listener failed", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts the HTTP server down within timeout.
func (s *Server) Stop(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
