package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"codeberg.org/mutker/psuctl/internal/errors"
	"codeberg.org/mutker/psuctl/internal/logger"
	"codeberg.org/mutker/psuctl/internal/psu"
	"codeberg.org/mutker/psuctl/internal/scpi"
	"codeberg.org/mutker/psuctl/internal/telemetry"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
)

type Option func(*Server)

// WithTelemetry exposes stored samples on GET /telemetry.
func WithTelemetry(r telemetry.Reader) Option {
	return func(s *Server) {
		s.reader = r
	}
}

// WithGatherer serves g on GET /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// Server exposes channel operations and status over HTTP. It holds no
// instrument state; every request is forwarded to the Controller.
type Server struct {
	ctrl     psu.Controller
	ep       scpi.Endpoint
	reader   telemetry.Reader
	gatherer prometheus.Gatherer
	log      logger.Logger
	router   *chi.Mux
}

func NewServer(ctrl psu.Controller, ep scpi.Endpoint, opts ...Option) *Server {
	s := &Server{
		ctrl: ctrl,
		ep:   ep,
		log:  logger.WithComponent("api"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	r.Get("/health", s.handleHealth)

	r.Post("/enable", s.handleEnable)
	r.Post("/disable", s.handleDisable)
	r.Get("/status", s.handleStatus)
	r.Get("/telemetry", s.handleTelemetry)

	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

// Handler returns the router, mostly useful in tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.New().Wrap(ErrServeFailed, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully. A clean shutdown returns nil.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errFactory := errors.New()

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		// Requests outlive ctx so Shutdown can drain multi-step operations.
		BaseContext: func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	s.log.Info().
		Str("addr", ln.Addr().String()).
		Str("endpoint", s.ep.String()).
		Msg("HTTP server listening")

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errFactory.Wrap(ErrServeFailed, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errFactory.Wrap(ErrShutdownFailed, err)
	}
	<-errCh

	s.log.Info().Msg("HTTP server stopped")

	return nil
}
