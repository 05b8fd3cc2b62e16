package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 15 * time.Second
)

// ServerOption configures a Server after config-driven initialization.
type ServerOption func(*Server)

// WithGatherer exposes g on the metrics path. Without a gatherer the
// metrics path is not mounted.
func WithGatherer(g prometheus.Gatherer) ServerOption {
	return func(s *Server) { s.gatherer = g }
}

// WithLogger overrides slog.Default for lifecycle logging.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// Server routes HTTP and Connect traffic to a Dispatcher.
type Server struct {
	cfg        Config
	dispatcher Dispatcher
	sessions   Sessions
	gatherer   prometheus.Gatherer
	logger     *slog.Logger
	handler    http.Handler
}

// New creates a Server for d. sessions binds contexts for clients arriving
// without a client id and tells the rate limiter which ids are live.
func New(cfg *Config, d Dispatcher, sessions Sessions, opts ...ServerOption) (*Server, error) {
	if d == nil {
		return nil, errors.New("dispatcher is required")
	}
	if sessions == nil {
		return nil, errors.New("sessions are required")
	}

	s := &Server{
		cfg:        *cfg,
		dispatcher: d,
		sessions:   sessions,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.handler = s.routes()
	return s, nil
}

// Handler returns the server's root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	header := s.cfg.ClientIDHeader
	limiter := NewLimiter(s.cfg.RateLimit)

	mux := http.NewServeMux()
	mux.Handle(s.cfg.Path, Chain(
		NewHandler(s.dispatcher, header),
		RequireMethod(http.MethodPost),
		RateLimit(limiter, header, s.sessions),
		ClientID(header, s.sessions),
	))

	path, connectHandler := NewConnectHandler(s.dispatcher, header)
	mux.Handle(path, Chain(
		connectHandler,
		RateLimit(limiter, header, s.sessions),
		ClientID(header, s.sessions),
	))

	if s.gatherer != nil && s.cfg.MetricsPath != "" {
		mux.Handle(s.cfg.MetricsPath, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// Run serves on cfg.Addr until ctx ends, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, lis)
}

// Serve accepts connections on lis until ctx ends.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("remoting server listening", "addr", lis.Addr().String(), "path", s.cfg.Path)
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		s.logger.Info("remoting server stopped")
		return nil
	})
	return g.Wait()
}
