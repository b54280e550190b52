// Package server exposes the repository and its engines over HTTP: CRUD for
// the model tables, rule evaluation, impact traversal and materialization,
// plus a WebSocket feed broadcasting engine events to connected clients.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/modelry/modelry/config"
	"github.com/modelry/modelry/impact"
	"github.com/modelry/modelry/rules"
	"github.com/modelry/modelry/store"
)

// MaxClients bounds concurrent WebSocket connections.
const MaxClients = 64

// Server wires the store and both engines behind an HTTP mux.
type Server struct {
	store     *store.Store
	evaluator *rules.Evaluator
	analyzer  *impact.Engine
	cfg       *config.Config
	logger    *zap.SugaredLogger

	mux        *http.ServeMux
	httpServer *http.Server

	mu      sync.RWMutex
	clients map[*client]bool

	limiters *rateLimiters

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a server around an open store. A nil logger silences it.
func New(st *store.Store, cfg *config.Config, logger *zap.SugaredLogger) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		store: st,
		evaluator: rules.New(st, logger, rules.Config{
			AnnotationRowHeight: cfg.Rules.AnnotationRowHeight,
			AnnotationWidth:     cfg.Rules.AnnotationWidth,
		}),
		analyzer: impact.New(st, logger, impact.Config{
			MaxVisited:   cfg.Limits.MaxVisited,
			MaxDepth:     cfg.Limits.MaxTraverseHop,
			MaxCanvases:  cfg.Limits.MaxCanvases,
			MaxInstances: cfg.Limits.MaxInstances,
			RadialStep:   cfg.Impact.RadialStep,
			CenterX:      cfg.Impact.CenterX,
			CenterY:      cfg.Impact.CenterY,
			NodeWidth:    cfg.Impact.NodeWidth,
			NodeHeight:   cfg.Impact.NodeHeight,
		}),
		cfg:      cfg,
		logger:   logger.Named("server"),
		mux:      http.NewServeMux(),
		clients:  make(map[*client]bool),
		limiters: newRateLimiters(cfg.Server.RequestsPerSecond, cfg.Server.RequestBurst),
		ctx:      ctx,
		cancel:   cancel,
	}
	s.setupRoutes()
	return s
}

// Handler returns the configured mux, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start begins serving and blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Server.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Infow("Server listening", "addr", addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains the HTTP server and closes all WebSocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()

	s.mu.Lock()
	for c := range s.clients {
		c.close()
	}
	s.clients = make(map[*client]bool)
	s.mu.Unlock()

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	s.wg.Wait()
	s.logger.Infow("Server stopped")
	return err
}

func (s *Server) clientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}
