// Package server binds relay hubs to network endpoints and owns their
// start/stop lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/voice-relay/backend/api/handlers"
	"github.com/voice-relay/backend/internal/config"
	"github.com/voice-relay/backend/internal/logging"
	"github.com/voice-relay/backend/internal/metrics"
	"github.com/voice-relay/backend/internal/repository"
	"github.com/voice-relay/backend/internal/routing"
	"github.com/voice-relay/backend/internal/ws"
)

// Options configures a Server.
type Options struct {
	Hub      config.HubConfig
	Logger   *logrus.Logger
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	// Journal is optional.
	Journal *repository.ConnectionRepository
}

// Server is one relay hub listening on one endpoint.
type Server struct {
	cfg     config.HubConfig
	hub     *ws.Hub
	handler *ws.Handler
	engine  *gin.Engine
	logger  logrus.FieldLogger

	mu       sync.Mutex
	http     *http.Server
	listener net.Listener
	serveErr chan error
}

// New builds the hub, its pumps and its gin routes. Nothing is bound until
// Start.
func New(opts Options) (*Server, error) {
	policy, err := routing.New(opts.Hub.Policy, opts.Hub.ReservedIdentity)
	if err != nil {
		return nil, fmt.Errorf("hub %s: %w", opts.Hub.Name, err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	hubOpts := ws.HubOptions{
		Name:    opts.Hub.Name,
		Policy:  policy,
		Logger:  logger,
		Metrics: opts.Metrics,
	}
	var lister handlers.ConnectionLister
	if opts.Journal != nil {
		hubOpts.Journal = opts.Journal
		lister = opts.Journal
	}

	hub := ws.NewHub(hubOpts)
	handler := ws.NewHandler(hub, ws.HandlerOptions{
		MaxMessageSize: opts.Hub.MaxMessageSize,
		SendBufferSize: opts.Hub.SendBufferSize,
		WriteWait:      opts.Hub.WriteWait.DurationValue(),
		PongWait:       opts.Hub.PongWait.DurationValue(),
	})

	engine := gin.New()
	engine.Use(gin.Recovery(), handlers.CORS())
	handlers.NewRelayHandler(handler).RegisterRoutes(engine)
	handlers.NewClientsHandler(hub, lister).RegisterRoutes(engine)
	handlers.RegisterMetrics(engine, opts.Gatherer)

	return &Server{
		cfg:     opts.Hub,
		hub:     hub,
		handler: handler,
		engine:  engine,
		logger:  logger.WithField("hub", opts.Hub.Name),
	}, nil
}

// Hub returns the relay hub.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

// Engine returns the HTTP handler, for embedding or httptest.
func (s *Server) Engine() http.Handler {
	return s.engine
}

// Start binds the configured endpoint and starts accepting connections.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.http != nil {
		return fmt.Errorf("hub %s already started", s.cfg.Name)
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("hub %s: failed to listen on %s: %w", s.cfg.Name, s.cfg.Addr(), err)
	}

	s.listener = ln
	s.http = &http.Server{Handler: s.engine}
	s.serveErr = make(chan error, 1)

	srv := s.http
	errCh := s.serveErr
	go func() {
		err := srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	s.logger.WithFields(logrus.Fields{
		"action": "listen",
		"addr":   ln.Addr().String(),
		"policy": s.hub.Policy().Name(),
	}).Info("relay hub listening")
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.Addr()
}

// Stop stops accepting, closes every client and waits for their pumps,
// bounded by ctx.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.http
	errCh := s.serveErr
	s.http = nil
	s.listener = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	shutdownErr := srv.Shutdown(ctx)

	// Hijacked WebSocket connections are not tracked by http.Server. Refuse
	// late upgrades first so the hub snapshot below is final.
	s.handler.Close()
	s.hub.Close()
	done := make(chan struct{})
	go func() {
		s.handler.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("hub %s: %w", s.cfg.Name, ctx.Err())
	}

	if err := <-errCh; err != nil {
		return err
	}
	s.logger.WithField("action", "stop").Info("relay hub stopped")
	return shutdownErr
}
