package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"storion-modbus-bridge/pkg/bus"
	"storion-modbus-bridge/pkg/frame"
	"storion-modbus-bridge/pkg/logger"

	"github.com/gorilla/mux"
)

// Enqueuer accepts on-demand read requests
type Enqueuer interface {
	Enqueue(r bus.Request)
}

// Server exposes health, metrics and on-demand reads over HTTP
type Server struct {
	server  *http.Server
	router  *mux.Router
	port    int
	queue   Enqueuer
	address byte
}

// NewServer creates the router. metrics may be nil when metrics are disabled.
func NewServer(port int, health *HealthHandler, metrics http.Handler, queue Enqueuer, address byte) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		port:    port,
		queue:   queue,
		address: address,
	}

	s.router.Handle("/health", health).Methods(http.MethodGet)
	if metrics != nil {
		s.router.Handle("/metrics", metrics).Methods(http.MethodGet)
	}
	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/request/{kind}", s.handleRequest).Methods(http.MethodPost)
	s.router.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)

	return s
}

// Handler returns the router, used by tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening in the background
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.LogInfo("🌐 HTTP server listening on :%d", s.port)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.LogError("❌ HTTP server error: %v", err)
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if s.server != nil {
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server shutdown error: %w", err)
		}
	}
	return nil
}

// handleRequest queues one of the fixed reads
func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	kind, err := frame.ParseKind(mux.Vars(r)["kind"])
	if err != nil {
		writeJSON(w, map[string]string{"error": err.Error()}, http.StatusBadRequest)
		return
	}
	req, ok := bus.NewRequest(s.address, kind, time.Now())
	if !ok {
		writeJSON(w, map[string]string{"error": "no template for " + kind.String()}, http.StatusBadRequest)
		return
	}
	s.queue.Enqueue(req)
	logger.LogInfo("🎛️ HTTP request queued: %s read", kind)
	writeJSON(w, map[string]string{"queued": kind.String()}, http.StatusAccepted)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	fmt.Fprint(w, `<html>
<head><title>Storion Modbus Bridge</title></head>
<body>
<h1>Storion Modbus Bridge</h1>
<ul>
<li><a href="/health">Health Check</a></li>
<li><a href="/metrics">Metrics</a></li>
<li>POST /api/v1/request/{meter|battery|inverter|system}</li>
</ul>
</body>
</html>`)
}
