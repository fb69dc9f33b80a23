// Package server exposes the driver over HTTP so a browser or script can
// start, stop and observe runs. Progress streams over a websocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/observastack/loadpanel/internal/catalog"
	"github.com/observastack/loadpanel/internal/driver"
	"github.com/observastack/loadpanel/internal/metrics"
	"github.com/observastack/loadpanel/internal/runlock"
)

const shutdownTimeout = 10 * time.Second

// Controller is the run surface the server drives. *driver.Driver satisfies it.
type Controller interface {
	Run(ctx context.Context, cfg driver.RunConfig) (metrics.RunSummary, error)
	Stop()
	ClearResults() error
	State() driver.RunState
	Snapshot() driver.Snapshot
	LastSummary() (metrics.RunSummary, bool)
}

// Server serves the control API.
type Server struct {
	ctrl      Controller
	hub       *Hub
	logger    *zap.Logger
	gatherer  prometheus.Gatherer
	endpoints []catalog.Endpoint
	baseURL   string
	lockPath  string
	useLock   bool

	mu     sync.Mutex
	active bool
	runs   sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithHub streams events of hub over /ws. The same hub must be a sink of
// the driver.
func WithHub(h *Hub) Option {
	return func(s *Server) { s.hub = h }
}

// WithLogger sets the request and run logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithGatherer serves g on /metrics instead of the default registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		if g != nil {
			s.gatherer = g
		}
	}
}

// WithCatalog lists endpoints on /api/endpoints and lets run requests name
// one by key. Relative endpoint paths are joined onto baseURL.
func WithCatalog(endpoints []catalog.Endpoint, baseURL string) Option {
	return func(s *Server) {
		s.endpoints = endpoints
		s.baseURL = baseURL
	}
}

// WithRunLock holds the host-wide run lock at path for the duration of
// each run. An empty path uses runlock.DefaultPath.
func WithRunLock(path string) Option {
	return func(s *Server) {
		s.useLock = true
		s.lockPath = path
	}
}

// New creates a Server for ctrl.
func New(ctrl Controller, opts ...Option) *Server {
	s := &Server{
		ctrl:     ctrl,
		logger:   zap.NewNop(),
		gatherer: prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.hub == nil {
		s.hub = NewHub(s.logger)
	}
	return s
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWebsocket).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/runs", s.handleStartRun).Methods(http.MethodPost)
	api.HandleFunc("/runs/stop", s.handleStopRun).Methods(http.MethodPost)
	api.HandleFunc("/results", s.handleClearResults).Methods(http.MethodDelete)
	api.HandleFunc("/results", s.handleResults).Methods(http.MethodGet)
	api.HandleFunc("/state", s.handleState).Methods(http.MethodGet)
	api.HandleFunc("/summary", s.handleSummary).Methods(http.MethodGet)
	api.HandleFunc("/endpoints", s.handleEndpoints).Methods(http.MethodGet)

	r.Use(loggingMiddleware(s.logger))
	// Preflight requests are answered before route matching.
	return corsMiddleware()(r)
}

// ListenAndServe serves on addr until ctx is cancelled. It then stops the
// active run and waits for it to settle.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("control server listening", zap.String("address", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		s.Shutdown()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("control server shutting down")
	s.hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Shutdown()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Active reports whether a run started through the server is still in
// progress.
func (s *Server) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Shutdown stops the active run and waits for it to finish.
func (s *Server) Shutdown() {
	s.ctrl.Stop()
	s.runs.Wait()
}

// startRun launches cfg in the background. It reports ErrRunActive when a
// run is already in progress and runlock.ErrLocked when another process
// holds the lock.
func (s *Server) startRun(cfg driver.RunConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active || s.ctrl.State().Running() {
		return driver.ErrRunActive
	}
	var lock *runlock.Lock
	if s.useLock {
		l, err := runlock.Acquire(s.lockPath)
		if err != nil {
			return err
		}
		lock = l
	}
	s.active = true
	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		defer func() {
			if err := lock.Release(); err != nil {
				s.logger.Warn("release run lock", zap.Error(err))
			}
		}()

		summary, err := s.ctrl.Run(context.Background(), cfg)

		s.mu.Lock()
		s.active = false
		s.mu.Unlock()
		if err != nil {
			s.logger.Error("run failed", zap.String("target", cfg.TargetURL), zap.Error(err))
			return
		}
		s.logger.Info("run finished",
			zap.String("run_id", summary.RunID),
			zap.Int("total", summary.Total),
			zap.Int("failed", summary.Failed),
			zap.Bool("stopped", summary.Stopped),
		)
	}()
	return nil
}
