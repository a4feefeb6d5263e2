package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/dittobox/internal/logger"
	"github.com/marmos91/dittobox/internal/queue"
	"github.com/marmos91/dittobox/pkg/metrics"
)

// ConnectionHandler serves one client connection until it ends or ctx is
// canceled. It must not close the connection; BaseAdapter does that.
type ConnectionHandler interface {
	Serve(ctx context.Context)
}

// ConnectionFactory creates a protocol-specific handler for an accepted
// connection.
type ConnectionFactory interface {
	NewConnection(conn net.Conn) ConnectionHandler
}

// Defaults for BaseConfig fields left at zero.
const (
	DefaultConnQueueSize   = 128
	DefaultHandlers        = 4
	DefaultShutdownTimeout = 30 * time.Second
)

// BaseConfig holds the settings common to all protocol adapters.
type BaseConfig struct {
	// BindAddress is the IP address to bind to. Empty binds all interfaces.
	BindAddress string

	// Port is the TCP port to listen on. 0 picks a free port.
	Port int

	// ConnQueueSize is the capacity of the accepted-connection queue. When
	// it is full the acceptor blocks, leaving further clients in the
	// kernel backlog.
	ConnQueueSize int

	// Handlers is the number of session handler goroutines.
	Handlers int

	// ShutdownTimeout bounds the wait for sessions during graceful shutdown.
	ShutdownTimeout time.Duration

	// MetricsLogInterval enables a periodic log line with queue and
	// connection counters. 0 disables it.
	MetricsLogInterval time.Duration
}

func (c *BaseConfig) applyDefaults() {
	if c.ConnQueueSize <= 0 {
		c.ConnQueueSize = DefaultConnQueueSize
	}
	if c.Handlers <= 0 {
		c.Handlers = DefaultHandlers
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
}

// Stats is a point-in-time view of the adapter.
type Stats struct {
	ConnQueueDepth    int
	ConnQueueCapacity int
	Handlers          int
	BusyHandlers      int
	ActiveConnections int32
}

// BaseAdapter owns the listener, the connection queue and the session
// handler pool.
//
// Accepted connections are tracked from accept until close, whether they
// are still queued or in a session, so shutdown can interrupt and
// force-close all of them.
type BaseAdapter struct {
	Config BaseConfig

	protocolName string

	Metrics metrics.ServerMetrics

	listener   net.Listener
	listenerMu sync.RWMutex

	// ListenerReady is closed once Serve has attempted to listen.
	ListenerReady chan struct{}
	readyOnce     sync.Once

	conns *queue.BoundedQueue[net.Conn]

	handlers     sync.WaitGroup
	busyHandlers atomic.Int32

	shutdownOnce sync.Once

	// Shutdown is closed when shutdown begins.
	Shutdown chan struct{}

	// ShutdownCtx is passed to every session and canceled at shutdown.
	ShutdownCtx    context.Context
	CancelRequests context.CancelFunc

	ConnCount         atomic.Int32
	ActiveConnections sync.Map // remote address -> net.Conn
}

// NewBaseAdapter creates a stopped adapter. Call ServeWithFactory to start.
func NewBaseAdapter(config BaseConfig, protocol string, m metrics.ServerMetrics) *BaseAdapter {
	config.applyDefaults()

	shutdownCtx, cancel := context.WithCancel(context.Background())

	b := &BaseAdapter{
		Config:         config,
		protocolName:   protocol,
		Metrics:        m,
		ListenerReady:  make(chan struct{}),
		conns:          queue.New[net.Conn](config.ConnQueueSize),
		Shutdown:       make(chan struct{}),
		ShutdownCtx:    shutdownCtx,
		CancelRequests: cancel,
	}
	metrics.RegisterQueue(m, "connections", config.ConnQueueSize, b.conns.Len)
	return b
}

// ServeWithFactory listens, starts the handler pool and runs the accept
// loop until shutdown.
//
// Returns nil after a graceful shutdown, or an error if listening fails or
// sessions had to be force-closed.
func (b *BaseAdapter) ServeWithFactory(ctx context.Context, factory ConnectionFactory) error {
	listenAddr := net.JoinHostPort(b.Config.BindAddress, fmt.Sprint(b.Config.Port))
	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		b.markReady()
		b.initiateShutdown()
		return fmt.Errorf("failed to create %s listener on %s: %w", b.protocolName, listenAddr, err)
	}

	b.listenerMu.Lock()
	b.listener = listener
	b.listenerMu.Unlock()
	b.markReady()

	logger.Info(b.protocolName+" server listening",
		logger.Address(listener.Addr().String()),
		"handlers", b.Config.Handlers,
		"connection_queue", b.Config.ConnQueueSize)

	for i := 0; i < b.Config.Handlers; i++ {
		b.handlers.Add(1)
		go b.handlerLoop(i, factory)
	}

	go func() {
		select {
		case <-ctx.Done():
			logger.Info(b.protocolName+" shutdown signal received", logger.Err(ctx.Err()))
			b.initiateShutdown()
		case <-b.Shutdown:
		}
	}()

	if b.Config.MetricsLogInterval > 0 {
		go b.logMetrics()
	}

	b.acceptLoop(listener)
	return b.gracefulShutdown()
}

func (b *BaseAdapter) markReady() {
	b.readyOnce.Do(func() { close(b.ListenerReady) })
}

// acceptLoop accepts connections and pushes them onto the connection queue
// until the listener is closed.
func (b *BaseAdapter) acceptLoop(listener net.Listener) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-b.Shutdown:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Debug("Error accepting "+b.protocolName+" connection", logger.Err(err))
			continue
		}

		if tcp, ok := conn.(*net.TCPConn); ok {
			if err := tcp.SetNoDelay(true); err != nil {
				logger.Debug("Failed to set TCP_NODELAY", logger.Err(err))
			}
		}

		addr := conn.RemoteAddr().String()
		b.track(addr, conn)

		logger.Debug(b.protocolName+" connection accepted",
			logger.RemoteAddr(addr), logger.Active(b.ConnCount.Load()),
			logger.QueueDepth(b.conns.Len()))

		if err := b.conns.Push(conn); err != nil {
			logger.Debug(b.protocolName+" connection rejected: queue closed", logger.RemoteAddr(addr))
			metrics.ConnectionRejected(b.Metrics)
			b.closeConn(addr, conn)
		}
	}
}

// handlerLoop pops connections and serves them one at a time. Connections
// still queued when shutdown begins are closed without service.
func (b *BaseAdapter) handlerLoop(id int, factory ConnectionFactory) {
	defer b.handlers.Done()

	logger.Debug(b.protocolName+" session handler started", logger.HandlerID(id))
	for {
		conn, err := b.conns.Pop()
		if err != nil {
			logger.Debug(b.protocolName+" session handler stopped", logger.HandlerID(id))
			return
		}
		addr := conn.RemoteAddr().String()

		if b.ShutdownCtx.Err() != nil {
			metrics.ConnectionRejected(b.Metrics)
			b.closeConn(addr, conn)
			continue
		}

		b.busyHandlers.Add(1)
		b.serveConn(id, addr, conn, factory)
		b.busyHandlers.Add(-1)
	}
}

func (b *BaseAdapter) serveConn(id int, addr string, conn net.Conn, factory ConnectionFactory) {
	defer b.closeConn(addr, conn)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in "+b.protocolName+" session handler",
				logger.HandlerID(id), logger.RemoteAddr(addr),
				"panic", r, "stack", string(debug.Stack()))
		}
	}()

	factory.NewConnection(conn).Serve(b.ShutdownCtx)
}

func (b *BaseAdapter) track(addr string, conn net.Conn) {
	b.ActiveConnections.Store(addr, conn)
	b.ConnCount.Add(1)
	metrics.ConnectionAccepted(b.Metrics)
}

func (b *BaseAdapter) closeConn(addr string, conn net.Conn) {
	if _, loaded := b.ActiveConnections.LoadAndDelete(addr); !loaded {
		// Already force-closed.
		return
	}
	if err := conn.Close(); err != nil {
		logger.Debug("Error closing connection", logger.RemoteAddr(addr), logger.Err(err))
	}
	b.ConnCount.Add(-1)
	metrics.ConnectionClosed(b.Metrics)

	logger.Debug(b.protocolName+" connection closed",
		logger.RemoteAddr(addr), logger.Active(b.ConnCount.Load()))
}

// initiateShutdown begins shutdown exactly once:
//  1. close the shutdown channel and the listener
//  2. close the connection queue, releasing idle handlers
//  3. cancel ShutdownCtx, then interrupt blocking reads
//
// Cancellation precedes the read interrupt so a session that re-arms its
// idle deadline either observes the canceled context or has its new
// deadline overwritten.
func (b *BaseAdapter) initiateShutdown() {
	b.shutdownOnce.Do(func() {
		logger.Debug(b.protocolName + " shutdown initiated")

		close(b.Shutdown)

		b.listenerMu.Lock()
		if b.listener != nil {
			if err := b.listener.Close(); err != nil {
				logger.Debug("Error closing "+b.protocolName+" listener", logger.Err(err))
			}
		}
		b.listenerMu.Unlock()

		b.conns.Close()
		b.CancelRequests()
		b.interruptBlockingReads()
	})
}

// interruptBlockingReads sets a past read deadline on every tracked
// connection so sessions blocked in a read return promptly.
func (b *BaseAdapter) interruptBlockingReads() {
	past := time.Now().Add(-time.Second)

	b.ActiveConnections.Range(func(key, value any) bool {
		if conn, ok := value.(net.Conn); ok {
			if err := conn.SetReadDeadline(past); err != nil {
				logger.Debug("Error setting shutdown deadline on connection",
					logger.RemoteAddr(key.(string)), logger.Err(err))
			}
		}
		return true
	})
}

// waitHandlers returns a channel closed once every handler has exited.
func (b *BaseAdapter) waitHandlers() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		b.handlers.Wait()
		close(done)
	}()
	return done
}

// gracefulShutdown waits up to ShutdownTimeout for the handler pool, then
// force-closes whatever is left.
func (b *BaseAdapter) gracefulShutdown() error {
	logger.Info(b.protocolName+" graceful shutdown: waiting for sessions",
		logger.Active(b.ConnCount.Load()), "timeout", b.Config.ShutdownTimeout)

	timer := time.NewTimer(b.Config.ShutdownTimeout)
	defer timer.Stop()

	select {
	case <-b.waitHandlers():
		logger.Info(b.protocolName + " graceful shutdown complete: all sessions closed")
		return nil

	case <-timer.C:
		remaining := b.ConnCount.Load()
		logger.Warn(b.protocolName+" shutdown timeout exceeded, forcing closure",
			logger.Active(remaining), "timeout", b.Config.ShutdownTimeout)
		b.forceCloseConnections()
		return fmt.Errorf("%s shutdown timeout: %d connections force-closed", b.protocolName, remaining)
	}
}

// forceCloseConnections closes every tracked connection.
func (b *BaseAdapter) forceCloseConnections() {
	closed := 0
	b.ActiveConnections.Range(func(key, value any) bool {
		addr := key.(string)
		if _, loaded := b.ActiveConnections.LoadAndDelete(addr); !loaded {
			return true
		}
		if err := value.(net.Conn).Close(); err != nil {
			logger.Debug("Error force-closing connection", logger.RemoteAddr(addr), logger.Err(err))
		}
		b.ConnCount.Add(-1)
		metrics.ConnectionClosed(b.Metrics)
		closed++
		return true
	})

	if closed > 0 {
		logger.Info("Force-closed connections", "count", closed)
	}
}

// Stop initiates shutdown and waits for the handler pool, bounded by ctx.
// When ctx expires first, remaining connections are force-closed.
func (b *BaseAdapter) Stop(ctx context.Context) error {
	b.initiateShutdown()

	select {
	case <-b.waitHandlers():
		return nil
	case <-ctx.Done():
		logger.Warn(b.protocolName+" shutdown context done",
			logger.Active(b.ConnCount.Load()), logger.Err(ctx.Err()))
		b.forceCloseConnections()
		return ctx.Err()
	}
}

func (b *BaseAdapter) logMetrics() {
	ticker := time.NewTicker(b.Config.MetricsLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.Shutdown:
			return
		case <-ticker.C:
			s := b.Stats()
			logger.Info(b.protocolName+" metrics",
				logger.Active(s.ActiveConnections),
				logger.Queue("connections"),
				logger.QueueDepth(s.ConnQueueDepth),
				"busy_handlers", s.BusyHandlers)
		}
	}
}

// Stats returns current queue and pool counters.
func (b *BaseAdapter) Stats() Stats {
	return Stats{
		ConnQueueDepth:    b.conns.Len(),
		ConnQueueCapacity: b.conns.Cap(),
		Handlers:          b.Config.Handlers,
		BusyHandlers:      int(b.busyHandlers.Load()),
		ActiveConnections: b.ConnCount.Load(),
	}
}

// Accepting reports whether the adapter is listening and not shutting down.
func (b *BaseAdapter) Accepting() bool {
	select {
	case <-b.ListenerReady:
	default:
		return false
	}
	b.listenerMu.RLock()
	defer b.listenerMu.RUnlock()
	return b.listener != nil && !b.conns.Closed()
}

// GetListenerAddr blocks until Serve has tried to listen and returns the
// bound address, or "" if listening failed.
func (b *BaseAdapter) GetListenerAddr() string {
	<-b.ListenerReady

	b.listenerMu.RLock()
	defer b.listenerMu.RUnlock()
	if b.listener == nil {
		return ""
	}
	return b.listener.Addr().String()
}

// Addr returns the bound address without blocking.
func (b *BaseAdapter) Addr() string {
	select {
	case <-b.ListenerReady:
		return b.GetListenerAddr()
	default:
		return ""
	}
}

// Protocol returns the protocol name.
func (b *BaseAdapter) Protocol() string {
	return b.protocolName
}
