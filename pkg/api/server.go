// Package api serves the HTTP side of DittoBox: liveness and readiness
// probes, pipeline statistics and the Prometheus scrape endpoint.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/marmos91/dittobox/internal/logger"
	"github.com/marmos91/dittobox/pkg/api/handlers"
)

// shutdownGrace bounds the graceful HTTP shutdown once Start's context ends.
const shutdownGrace = 5 * time.Second

// Server is the API HTTP server.
type Server struct {
	server *http.Server
	config APIConfig

	ready    chan struct{}
	addrMu   sync.RWMutex
	addr     string
	stopOnce sync.Once
}

// NewServer creates a stopped API server. reg may be nil, in which case
// /metrics is not mounted.
func NewServer(config APIConfig, status handlers.StatusProvider, reg *prometheus.Registry) *Server {
	config.ApplyDefaults()

	return &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", config.Port),
			Handler:      NewRouter(status, reg),
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
			IdleTimeout:  config.IdleTimeout,
		},
		config: config,
		ready:  make(chan struct{}),
	}
}

// Start listens and serves until ctx is canceled or the server fails.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		close(s.ready)
		return fmt.Errorf("API server failed to listen: %w", err)
	}

	s.addrMu.Lock()
	s.addr = ln.Addr().String()
	s.addrMu.Unlock()
	close(s.ready)

	logger.Info("API server listening", logger.Address(s.Addr()))

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		// ctx is already done; shut down on a fresh deadline
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("API server failed: %w", err)
	}
}

// Stop gracefully shuts the server down. It is safe to call more than once.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.stopOnce.Do(func() {
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("API server shutdown error: %w", err)
			logger.Error("API server shutdown error", logger.Err(err))
			return
		}
		logger.Info("API server stopped")
	})
	return shutdownErr
}

// Addr blocks until Start has tried to listen and returns the bound
// address, or "" if listening failed.
func (s *Server) Addr() string {
	<-s.ready
	s.addrMu.RLock()
	defer s.addrMu.RUnlock()
	return s.addr
}

// Port returns the configured port.
func (s *Server) Port() int {
	return s.config.Port
}
