// Package server exposes the discovery indexes over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/watzon/topiccache/internal/config"
	"github.com/watzon/topiccache/internal/discovery"
	"github.com/watzon/topiccache/internal/filter"
	"github.com/watzon/topiccache/internal/realtime"
)

type Server struct {
	cfg        *config.Config
	listener   *discovery.Listener
	broker     *realtime.Broker
	filters    *filter.Engine
	httpServer *http.Server
	router     *Router
	logger     zerolog.Logger
	version    string
}

type Option func(*Server)

func WithVersion(version string) Option {
	return func(s *Server) {
		s.version = version
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

func New(cfg *config.Config, listener *discovery.Listener, opts ...Option) *Server {
	srv := &Server{
		cfg:      cfg,
		listener: listener,
		logger:   log.Logger,
		version:  "dev",
	}

	for _, opt := range opts {
		opt(srv)
	}

	if cfg.Realtime.Enabled {
		srv.broker = realtime.NewBroker(listener, &realtime.BrokerConfig{
			MaxConnections:             cfg.Realtime.MaxConnections,
			MaxEndpointsPerParticipant: cfg.Realtime.MaxEndpointsPerParticipant,
		}, srv.logger.With().Str("component", "realtime").Logger())
	}

	filters, err := filter.NewEngine()
	if err != nil {
		srv.logger.Warn().Err(err).Msg("Expression filters disabled")
	} else {
		srv.filters = filters
	}

	srv.router = NewRouter(srv)
	srv.httpServer = &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      srv.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return srv
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until Shutdown.
func (s *Server) Serve(_ context.Context, ln net.Listener) error {
	s.logger.Info().
		Str("addr", ln.Addr().String()).
		Bool("realtime", s.broker != nil).
		Msg("Starting server")

	err := s.httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down server")

	if s.broker != nil {
		s.broker.Stop()
		s.logger.Info().Msg("Realtime broker stopped")
	}

	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Config() *config.Config {
	return s.cfg
}

func (s *Server) Listener() *discovery.Listener {
	return s.listener
}

func (s *Server) Broker() *realtime.Broker {
	return s.broker
}
