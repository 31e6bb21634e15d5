// Package httpapi exposes a flowkernel Kernel over HTTP: the module graph can
// be inspected and edited with a small JSON API, Prometheus metrics are served
// on /metrics and kernel events are streamed as CloudEvents over a websocket.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/GoCodeAlone/flowkernel"
)

// Static errors
var (
	ErrServerStarted    = errors.New("http api server already started")
	ErrServerNotStarted = errors.New("http api server not started")
)

// Option configures a Server.
type Option func(*Server)

// WithGatherer serves the metrics of g on /metrics. Without it the endpoint is
// not mounted.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithEvents toggles the /events websocket stream.
func WithEvents(enabled bool) Option {
	return func(s *Server) { s.events = enabled }
}

// WithShutdownTimeout bounds Stop.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) { s.shutdownTimeout = d }
}

// Server is the HTTP front of a kernel.
type Server struct {
	kernel          *flowkernel.Kernel
	logger          flowkernel.Logger
	router          chi.Router
	gatherer        prometheus.Gatherer
	events          bool
	shutdownTimeout time.Duration
	upgrader        websocket.Upgrader

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	streams  sync.WaitGroup
	closing  chan struct{}
}

// New builds the router for k.
func New(k *flowkernel.Kernel, logger flowkernel.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = k.Logger()
	}
	s := &Server{
		kernel:          k,
		logger:          logger,
		events:          true,
		shutdownTimeout: 5 * time.Second,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		closing: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

func (s *Server) closingChan() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/modules", func(r chi.Router) {
			r.Get("/", s.handleListModules)
			r.Post("/", s.handleCreateModule)
			r.Route("/{handle}", func(r chi.Router) {
				r.Get("/", s.handleGetModule)
				r.Delete("/", s.handleRemoveModule)
				r.Get("/properties", s.handleListProperties)
				r.Put("/properties/{name}", s.handleSetProperty)
				r.Get("/candidates", s.handleCandidates)
			})
		})
		r.Post("/connections", s.handleConnect)
		r.Delete("/connections", s.handleDisconnect)
		r.Get("/prototypes", s.handleListPrototypes)
		r.Get("/progress", s.handleProgress)
		r.Get("/health", s.handleHealth)
		r.Get("/project", s.handleSaveProject)
		r.Put("/project", s.handleLoadProject)
	})

	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	if s.events {
		r.Get("/events", s.handleEvents)
	}
	return r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return ErrServerStarted
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.listener = ln
	s.closing = make(chan struct{})
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func(srv *http.Server) {
		s.logger.Info("Starting HTTP API", "address", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP API server failed", "error", err)
		}
	}(s.server)
	return nil
}

// Addr returns the address the server listens on, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down and closes open event streams.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	closing := s.closing
	s.server = nil
	s.listener = nil
	s.mu.Unlock()
	if srv == nil {
		return ErrServerNotStarted
	}

	s.logger.Info("Stopping HTTP API", "timeout", s.shutdownTimeout)
	ctx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
	defer cancel()

	close(closing)
	err := srv.Shutdown(ctx)
	s.streams.Wait()
	if err != nil {
		return fmt.Errorf("error shutting down HTTP API: %w", err)
	}
	return nil
}
