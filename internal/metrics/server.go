package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/anstrom/newhosts/internal/logging"
)

const (
	serverReadTimeout  = 5 * time.Second
	serverWriteTimeout = 10 * time.Second
	shutdownTimeout    = 5 * time.Second
)

// Server exposes the Prometheus registry over HTTP while watch mode runs.
type Server struct {
	metrics    *PrometheusMetrics
	router     *mux.Router
	httpServer *http.Server
	logger     *logging.Logger
}

// NewServer creates a metrics server listening on addr. Requests are logged
// in combined log format to accessLog when it is not nil.
func NewServer(addr string, pm *PrometheusMetrics, accessLog io.Writer) *Server {
	s := &Server{
		metrics: pm,
		router:  mux.NewRouter(),
		logger:  logging.Default().WithComponent("metrics"),
	}
	s.setupRoutes()

	var handler http.Handler = s.router
	if accessLog != nil {
		handler = handlers.CombinedLoggingHandler(accessLog, handler)
	}
	handler = handlers.RecoveryHandler()(handler)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Handle("/metrics", promhttp.HandlerFor(s.metrics.GetRegistry(), promhttp.HandlerOpts{})).
		Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", s.healthHandler).Methods(http.MethodGet)
}

// Handler returns the routed handler without access logging.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is canceled, then shuts the server down.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("metrics server failed to listen: %w", err)
	}
	s.logger.Info("Starting metrics server", "address", listener.Addr().String())

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("metrics server failed: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return s.Stop()
	case err := <-errChan:
		return err
	}
}

// Stop gracefully stops the server.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	s.metrics.UpdateSystemMetrics()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "ok",
		"uptime": s.metrics.GetUptime().Round(time.Second).String(),
	}); err != nil {
		s.logger.Error("Failed to encode health response", "error", err)
	}
}
