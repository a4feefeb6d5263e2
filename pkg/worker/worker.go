// Package worker runs the storage worker pool: a fixed set of goroutines
// that pop Tasks from the task queue, execute them against the user store
// and complete each Task's Response.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/dittobox/internal/logger"
	"github.com/marmos91/dittobox/internal/protocol"
	"github.com/marmos91/dittobox/internal/telemetry"
	"github.com/marmos91/dittobox/pkg/metrics"
	"github.com/marmos91/dittobox/pkg/storage"
	"github.com/marmos91/dittobox/pkg/task"
)

// DefaultWorkers is the pool size used when Config.Workers is not positive.
const DefaultWorkers = 4

// Store is the storage surface the workers need. *storage.Store implements it.
type Store interface {
	Upload(username, filename string, data []byte) error
	Download(username, filename string) ([]byte, error)
	Delete(username, filename string) error
	List(username string) (names []string, exists bool, err error)
}

// Source hands out tasks. Pop blocks until a task is available and returns
// an error once the source is closed and drained.
type Source interface {
	Pop() (*task.Task, error)
}

// Config configures the pool.
type Config struct {
	Workers int
}

// Stats is a point-in-time snapshot of pool counters.
type Stats struct {
	Workers   int
	Busy      int
	Completed uint64
	Failed    uint64
}

// Pool is the storage worker pool.
type Pool struct {
	store   Store
	source  Source
	metrics metrics.ServerMetrics
	workers int

	mu        sync.Mutex
	started   bool
	wg        sync.WaitGroup
	stoppedCh chan struct{}

	busy      atomic.Int32
	completed atomic.Uint64
	failed    atomic.Uint64
}

// New creates a pool reading from source. m may be nil.
func New(store Store, source Source, cfg Config, m metrics.ServerMetrics) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	return &Pool{
		store:     store,
		source:    source,
		metrics:   m,
		workers:   cfg.Workers,
		stoppedCh: make(chan struct{}),
	}
}

// Start launches the workers. Calling it again is a no-op.
//
// Workers do not watch ctx: they exit only when the source reports
// end-of-stream, so every task already queued gets its Response completed.
// Shutdown is driven by closing the task queue.
func (p *Pool) Start(_ context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	logger.Info("Starting storage workers", "workers", p.workers)

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	go func() {
		p.wg.Wait()
		close(p.stoppedCh)
	}()
}

// Done is closed once every worker has exited.
func (p *Pool) Done() <-chan struct{} {
	return p.stoppedCh
}

// Wait blocks until every worker has exited or ctx is done. A pool that
// was never started returns immediately.
func (p *Pool) Wait(ctx context.Context) error {
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()
	if !started {
		return nil
	}

	select {
	case <-p.stoppedCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("storage workers still busy: %w", ctx.Err())
	}
}

// Stats returns the pool counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Workers:   p.workers,
		Busy:      int(p.busy.Load()),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	logger.Debug("Storage worker started", logger.WorkerID(id))

	for {
		t, err := p.source.Pop()
		if err != nil {
			logger.Debug("Storage worker stopped", logger.WorkerID(id))
			return
		}
		p.busy.Add(1)
		p.handle(id, t)
		p.busy.Add(-1)
	}
}

// handle executes one task and completes its Response exactly once, even
// if execution panics.
func (p *Pool) handle(id int, t *task.Task) {
	start := time.Now()
	var queued time.Duration
	if !t.Submitted.IsZero() {
		queued = start.Sub(t.Submitted)
	}

	ctx, span := telemetry.StartTaskSpan(t.Context(), t.Kind.String(), t.Username, t.Filename,
		telemetry.WorkerID(id),
		telemetry.QueueMs(float64(queued.Microseconds())/1000.0))
	defer span.End()

	var (
		res    task.Result
		status string
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err := fmt.Errorf("panic in storage worker: %v", r)
				logger.ErrorCtx(ctx, "Storage task panicked",
					logger.WorkerID(id), logger.TaskKind(t.Kind.String()), logger.Err(err))
				telemetry.RecordError(ctx, err)
				res, status = task.Result{Message: failureMessage(t.Kind)}, metrics.StatusFailed
			}
		}()
		res, status = Execute(ctx, p.store, t)
	}()

	if err := t.Response.Complete(res); err != nil {
		logger.WarnCtx(ctx, "Task response completed twice",
			logger.WorkerID(id), logger.TaskKind(t.Kind.String()))
	}
	payload := int64(t.Payload.Len())
	t.Release()

	exec := time.Since(start)
	if res.Success {
		p.completed.Add(1)
	} else {
		p.failed.Add(1)
	}

	metrics.ObserveTask(p.metrics, t.Kind.String(), status, queued, exec)
	if res.Success {
		switch t.Kind {
		case task.KindUpload:
			metrics.AddBytes(p.metrics, metrics.DirectionUpload, payload)
		case task.KindDownload:
			metrics.AddBytes(p.metrics, metrics.DirectionDownload, int64(len(res.Data)))
		}
	}

	span.SetAttributes(telemetry.Success(res.Success), telemetry.Reply(strings.TrimSuffix(res.Message, "\n")))
	logger.DebugCtx(ctx, "Storage task done",
		logger.WorkerID(id),
		logger.TaskKind(t.Kind.String()),
		logger.Username(t.Username),
		logger.Filename(t.Filename),
		logger.Reply(strings.TrimSuffix(res.Message, "\n")),
		logger.Elapsed(start))
}

// Execute runs t against store and returns the Result to publish together
// with a metrics status label. It does not complete the Response.
func Execute(ctx context.Context, store Store, t *task.Task) (task.Result, string) {
	switch t.Kind {
	case task.KindUpload:
		err := store.Upload(t.Username, t.Filename, t.PayloadBytes())
		switch {
		case err == nil:
			return task.Result{Success: true, Message: protocol.UploadOK}, metrics.StatusOK
		case errors.Is(err, storage.ErrQuotaExceeded):
			return task.Result{Message: protocol.UploadQuotaExceeded}, metrics.StatusQuota
		default:
			logFailure(ctx, t, err)
			return task.Result{Message: protocol.UploadFailed}, metrics.StatusFailed
		}

	case task.KindDownload:
		data, err := store.Download(t.Username, t.Filename)
		if err != nil {
			logFailure(ctx, t, err)
			return task.Result{Message: protocol.DownloadFailed}, metrics.StatusFailed
		}
		return task.Result{Success: true, Message: protocol.DownloadOK, Data: data}, metrics.StatusOK

	case task.KindDelete:
		if err := store.Delete(t.Username, t.Filename); err != nil {
			logFailure(ctx, t, err)
			return task.Result{Message: protocol.DeleteFailed}, metrics.StatusFailed
		}
		return task.Result{Success: true, Message: protocol.DeleteOK}, metrics.StatusOK

	case task.KindList:
		names, exists, err := store.List(t.Username)
		if err != nil {
			logFailure(ctx, t, err)
			return task.Result{Message: protocol.ListFailed}, metrics.StatusFailed
		}
		return task.Result{Success: true, Message: protocol.ListOK, Data: listBody(names, exists)}, metrics.StatusOK
	}

	logger.WarnCtx(ctx, "Unknown task kind", logger.TaskKind(t.Kind.String()))
	return task.Result{Message: failureMessage(t.Kind)}, metrics.StatusUnknown
}

// listBody renders one name per line. A user without a directory gets the
// placeholder line; an existing empty directory gets an empty body.
func listBody(names []string, exists bool) []byte {
	if !exists {
		return []byte(protocol.NoFilesPlaceholder + "\n")
	}
	var b strings.Builder
	for _, n := range names {
		b.WriteString(n)
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

func failureMessage(k task.Kind) string {
	switch k {
	case task.KindUpload:
		return protocol.UploadFailed
	case task.KindDownload:
		return protocol.DownloadFailed
	case task.KindDelete:
		return protocol.DeleteFailed
	case task.KindList:
		return protocol.ListFailed
	default:
		return protocol.UnknownCommand
	}
}

// logFailure logs store errors. Missing files are routine and stay at debug.
func logFailure(ctx context.Context, t *task.Task, err error) {
	telemetry.RecordError(ctx, err)
	if errors.Is(err, storage.ErrNotFound) {
		logger.DebugCtx(ctx, "Storage task failed",
			logger.TaskKind(t.Kind.String()), logger.Filename(t.Filename), logger.Err(err))
		return
	}
	logger.WarnCtx(ctx, "Storage task failed",
		logger.TaskKind(t.Kind.String()), logger.Username(t.Username),
		logger.Filename(t.Filename), logger.Err(err))
}
