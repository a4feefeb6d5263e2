// Package server assembles the DittoBox pipeline from configuration and
// runs it: storage, the task queue and its worker pool, the dropbox
// protocol adapter with its connection queue and session handlers, and the
// optional HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/marmos91/dittobox/internal/logger"
	"github.com/marmos91/dittobox/internal/queue"
	"github.com/marmos91/dittobox/pkg/adapter"
	"github.com/marmos91/dittobox/pkg/adapter/dropbox"
	"github.com/marmos91/dittobox/pkg/api"
	"github.com/marmos91/dittobox/pkg/config"
	"github.com/marmos91/dittobox/pkg/metrics"
	promserver "github.com/marmos91/dittobox/pkg/metrics/prometheus"
	"github.com/marmos91/dittobox/pkg/storage"
	"github.com/marmos91/dittobox/pkg/task"
	"github.com/marmos91/dittobox/pkg/worker"
)

// Option customizes a Server.
type Option func(*Server)

// WithFs stores files on fs instead of the host filesystem.
func WithFs(fs afero.Fs) Option {
	return func(s *Server) { s.fs = fs }
}

// WithMetrics records into m instead of the registry selected by
// metrics.enabled.
func WithMetrics(m metrics.ServerMetrics) Option {
	return func(s *Server) {
		s.metrics = m
		s.metricsSet = true
	}
}

// Server is a configured DittoBox instance.
type Server struct {
	cfg *config.Config

	fs         afero.Fs
	metrics    metrics.ServerMetrics
	metricsSet bool
	registry   *prometheus.Registry

	store   *storage.Store
	tasks   *queue.BoundedQueue[*task.Task]
	workers *worker.Pool
	adapter *dropbox.Adapter
	api     *api.Server

	serveOnce sync.Once
}

// New builds every component without starting anything.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	if cfg == nil {
		cfg = config.GetDefaultConfig()
	}

	s := &Server{cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	if s.fs == nil {
		s.fs = afero.NewOsFs()
	}

	if !s.metricsSet && cfg.Metrics.Enabled {
		s.registry = metrics.InitRegistry()
		s.metrics = promserver.NewServerMetrics()
	}

	store, err := storage.New(s.fs, storage.Config{
		Root:                 cfg.Storage.Root,
		Quota:                cfg.Storage.Quota,
		SerializeUserUploads: cfg.Storage.SerializeUserUploads,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	s.store = store

	s.tasks = queue.New[*task.Task](cfg.Pipeline.TaskQueueSize)
	metrics.RegisterQueue(s.metrics, "tasks", cfg.Pipeline.TaskQueueSize, s.tasks.Len)

	s.workers = worker.New(store, s.tasks, worker.Config{Workers: cfg.Pipeline.StorageWorkers}, s.metrics)

	s.adapter = dropbox.New(dropbox.Config{
		BaseConfig: adapter.BaseConfig{
			BindAddress:        cfg.Server.BindAddress,
			Port:               cfg.Server.Port,
			ConnQueueSize:      cfg.Pipeline.ConnectionQueueSize,
			Handlers:           cfg.Pipeline.SessionHandlers,
			ShutdownTimeout:    cfg.ShutdownTimeout,
			MetricsLogInterval: cfg.Server.MetricsLogInterval,
		},
		MaxLineLength:  cfg.Server.MaxLineLength,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxUploadSize:  cfg.Storage.MaxUploadSize.Int64(),
		RejectWhenFull: cfg.Pipeline.RejectWhenFull,
	}, s.tasks, store, s.metrics)

	if cfg.API.Enabled {
		s.api = api.NewServer(cfg.API, s, s.registry)
	}

	return s, nil
}

// Serve runs the server until ctx is canceled or a component fails, then
// shuts down in pipeline order:
//
//  1. the adapter stops accepting, closes the connection queue and drains
//     its sessions;
//  2. the task queue is closed;
//  3. the storage workers finish every queued task and exit.
//
// Steps 1 and 3 are each bounded by shutdown_timeout.
func (s *Server) Serve(ctx context.Context) error {
	err := errors.New("server already served")
	s.serveOnce.Do(func() {
		err = s.serve(ctx)
	})
	return err
}

func (s *Server) serve(ctx context.Context) error {
	logger.Info("Starting DittoBox",
		"storage_root", s.cfg.Storage.Root,
		logger.Quota(s.cfg.Storage.Quota.Int64()),
		"session_handlers", s.cfg.Pipeline.SessionHandlers,
		"storage_workers", s.cfg.Pipeline.StorageWorkers)

	s.workers.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.adapter.Serve(gctx); err != nil {
			return fmt.Errorf("dropbox adapter: %w", err)
		}
		return nil
	})
	if s.api != nil {
		g.Go(func() error { return s.api.Start(gctx) })
	}

	serveErr := g.Wait()
	if serveErr != nil {
		logger.Error("Server component failed", logger.Err(serveErr))
	}

	// No session can submit any more; let the workers drain what is queued.
	s.tasks.Close()

	waitCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.workers.Wait(waitCtx); err != nil {
		logger.Warn("Storage workers did not finish in time", logger.Err(err))
		if serveErr == nil {
			serveErr = err
		}
	}

	logger.Info("DittoBox stopped")
	return serveErr
}

// Addr blocks until the protocol listener is bound and returns its
// address, or "" if binding failed.
func (s *Server) Addr() string {
	return s.adapter.GetListenerAddr()
}

// APIAddr blocks until the API listener is bound and returns its address.
// It returns "" when the API is disabled or failed to bind.
func (s *Server) APIAddr() string {
	if s.api == nil {
		return ""
	}
	return s.api.Addr()
}

// QueueStats describes one bounded queue.
type QueueStats struct {
	Depth    int  `json:"depth"`
	Capacity int  `json:"capacity"`
	Closed   bool `json:"closed"`
}

// Stats is a point-in-time view of the pipeline.
type Stats struct {
	ConnectionQueue   QueueStats `json:"connection_queue"`
	TaskQueue         QueueStats `json:"task_queue"`
	SessionHandlers   int        `json:"session_handlers"`
	BusyHandlers      int        `json:"busy_handlers"`
	ActiveConnections int32      `json:"active_connections"`
	StorageWorkers    int        `json:"storage_workers"`
	BusyWorkers       int        `json:"busy_workers"`
	TasksCompleted    uint64     `json:"tasks_completed"`
	TasksFailed       uint64     `json:"tasks_failed"`
	Accepting         bool       `json:"accepting"`
	Timestamp         time.Time  `json:"timestamp"`
}

// Stats returns the current queue depths and pool sizes.
func (s *Server) Stats() Stats {
	as := s.adapter.Stats()
	ws := s.workers.Stats()
	return Stats{
		ConnectionQueue: QueueStats{
			Depth:    as.ConnQueueDepth,
			Capacity: as.ConnQueueCapacity,
			Closed:   !s.adapter.Accepting(),
		},
		TaskQueue: QueueStats{
			Depth:    s.tasks.Len(),
			Capacity: s.tasks.Cap(),
			Closed:   s.tasks.Closed(),
		},
		SessionHandlers:   as.Handlers,
		BusyHandlers:      as.BusyHandlers,
		ActiveConnections: as.ActiveConnections,
		StorageWorkers:    ws.Workers,
		BusyWorkers:       ws.Busy,
		TasksCompleted:    ws.Completed,
		TasksFailed:       ws.Failed,
		Accepting:         s.adapter.Accepting(),
		Timestamp:         time.Now().UTC(),
	}
}

// Ready reports whether new sessions are accepted and can reach a worker.
func (s *Server) Ready() bool {
	return s.adapter.Accepting() && !s.tasks.Closed()
}

// Snapshot implements the API status provider.
func (s *Server) Snapshot() any {
	return s.Stats()
}

// Store exposes the underlying storage, mostly for tests and tooling.
func (s *Server) Store() *storage.Store {
	return s.store
}
