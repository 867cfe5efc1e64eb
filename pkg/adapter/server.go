package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// ConnectionHandler represents an accepted connection that can serve requests.
// Each listener role (name-node client loop, name-node storage loop, storage
// node client loop) provides its own handler type. Serve blocks until the
// connection is closed or the context is cancelled.
type ConnectionHandler interface {
	Serve(ctx context.Context)
}

// ConnectionFactory creates handlers for accepted TCP connections. Listener
// owners implement this interface and pass themselves to Server.Serve.
type ConnectionFactory interface {
	NewConnection(conn net.Conn) ConnectionHandler
}

// Config holds configuration common to all listeners.
type Config struct {
	// BindAddress is the IP address to bind to. Empty string or "0.0.0.0"
	// binds to all interfaces.
	BindAddress string

	// Port is the TCP port to listen on. 0 picks an ephemeral port.
	Port int

	// MaxConnections limits concurrent connections. 0 means unlimited.
	MaxConnections int

	// ShutdownTimeout is the maximum duration to wait for active connections
	// to complete during graceful shutdown.
	ShutdownTimeout time.Duration
}

// MetricsRecorder lets listener owners record connection lifecycle metrics.
// A nil recorder disables collection.
type MetricsRecorder interface {
	RecordConnectionAccepted()
	RecordConnectionClosed()
	SetActiveConnections(count int32)
}

// OnConnectionClose is an optional callback invoked when a connection's serve
// goroutine completes, before WaitGroup.Done and semaphore release. Listener
// owners use it for role-specific cleanup (releasing sentence locks held by a
// disconnected writer, dropping a dead storage node).
type OnConnectionClose func(addr string)

// Server provides shared TCP lifecycle management for the listeners of the
// service: accept loop, connection tracking, connection limiting, and
// graceful shutdown with force-close fallback.
//
// All exported methods are safe for concurrent use. The shutdown mechanism
// uses sync.Once so Stop may be called multiple times.
type Server struct {
	// Config holds bind address, port, limits, and timeouts.
	Config Config

	// role is the human-readable listener name for logging
	// (e.g. "client", "storage-control").
	role string

	log *slog.Logger

	// Metrics is an optional recorder for connection lifecycle metrics.
	Metrics MetricsRecorder

	// listener is closed during shutdown to stop accepting new connections.
	listener   net.Listener
	listenerMu sync.RWMutex

	// activeConns tracks live connections for graceful shutdown.
	activeConns sync.WaitGroup

	shutdownOnce sync.Once

	// Shutdown is closed when graceful shutdown has been initiated.
	Shutdown chan struct{}

	// ConnCount tracks the current number of active connections.
	ConnCount atomic.Int32

	// connSemaphore limits concurrency when MaxConnections > 0, nil otherwise.
	connSemaphore chan struct{}

	// ShutdownCtx is cancelled during shutdown to abort in-flight requests.
	ShutdownCtx    context.Context
	CancelRequests context.CancelFunc

	// ActiveConnections maps remote address to net.Conn for forced closure.
	ActiveConnections sync.Map

	// ListenerReady is closed once the listener accepts connections. Tests
	// use it to synchronise with server startup.
	ListenerReady chan struct{}
}

// NewServer creates a Server in a stopped state. Call Serve to start.
func NewServer(config Config, role string, log *slog.Logger) *Server {
	var connSemaphore chan struct{}
	if config.MaxConnections > 0 {
		connSemaphore = make(chan struct{}, config.MaxConnections)
	}

	shutdownCtx, cancelRequests := context.WithCancel(context.Background())

	return &Server{
		Config:         config,
		role:           role,
		log:            log,
		Shutdown:       make(chan struct{}),
		connSemaphore:  connSemaphore,
		ShutdownCtx:    shutdownCtx,
		CancelRequests: cancelRequests,
		ListenerReady:  make(chan struct{}),
	}
}

// Serve runs the accept loop, delegating to factory for handler creation.
//
//   - ctx: cancellation triggers graceful shutdown.
//   - factory: creates a handler for each accepted connection.
//   - onClose: optional cleanup callback invoked as each connection's
//     goroutine exits.
//
// Returns nil on graceful shutdown, an error if the listener fails to start
// or the shutdown timeout is exceeded.
func (s *Server) Serve(ctx context.Context, factory ConnectionFactory, onClose OnConnectionClose) error {
	listenAddr := fmt.Sprintf("%s:%d", s.Config.BindAddress, s.Config.Port)
	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("failed to create %s listener on %s: %w", s.role, listenAddr, err)
	}

	s.listenerMu.Lock()
	s.listener = listener
	s.listenerMu.Unlock()
	close(s.ListenerReady)

	s.log.Info(s.role+" listener started", "address", listener.Addr().String())

	go func() {
		<-ctx.Done()
		s.initiateShutdown()
	}()

	for {
		if s.connSemaphore != nil {
			select {
			case s.connSemaphore <- struct{}{}:
			case <-s.Shutdown:
				return s.gracefulShutdown()
			}
		}

		tcpConn, err := s.listener.Accept()
		if err != nil {
			if s.connSemaphore != nil {
				<-s.connSemaphore
			}

			select {
			case <-s.Shutdown:
				// Expected: the listener was closed.
				return s.gracefulShutdown()
			default:
				s.log.Debug("accept failed", "role", s.role, "error", err)
				continue
			}
		}

		if tcp, ok := tcpConn.(*net.TCPConn); ok {
			if err := tcp.SetNoDelay(true); err != nil {
				s.log.Debug("failed to set TCP_NODELAY", "error", err)
			}
		}

		s.activeConns.Add(1)
		s.ConnCount.Add(1)

		connAddr := tcpConn.RemoteAddr().String()
		s.ActiveConnections.Store(connAddr, tcpConn)

		currentConns := s.ConnCount.Load()
		if s.Metrics != nil {
			s.Metrics.RecordConnectionAccepted()
			s.Metrics.SetActiveConnections(currentConns)
		}

		s.log.Debug(s.role+" connection accepted", "address", connAddr, "active", currentConns)

		handler := factory.NewConnection(tcpConn)

		go func(addr string) {
			defer func() {
				if onClose != nil {
					onClose(addr)
				}

				s.ActiveConnections.Delete(addr)
				s.activeConns.Done()
				s.ConnCount.Add(-1)
				if s.connSemaphore != nil {
					<-s.connSemaphore
				}

				if s.Metrics != nil {
					s.Metrics.RecordConnectionClosed()
					s.Metrics.SetActiveConnections(s.ConnCount.Load())
				}

				s.log.Debug(s.role+" connection closed", "address", addr, "active", s.ConnCount.Load())
			}()

			handler.Serve(s.ShutdownCtx)
		}(connAddr)
	}
}

// initiateShutdown signals the accept loop to stop, closes the listener,
// interrupts blocking reads, and cancels in-flight request contexts. Safe to
// call multiple times.
func (s *Server) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		close(s.Shutdown)

		s.listenerMu.Lock()
		if s.listener != nil {
			if err := s.listener.Close(); err != nil {
				s.log.Debug("error closing listener", "role", s.role, "error", err)
			}
		}
		s.listenerMu.Unlock()

		s.interruptBlockingReads()
		s.CancelRequests()
	})
}

// interruptBlockingReads sets a short deadline on all active connections so
// handlers blocked in a read observe the shutdown promptly.
func (s *Server) interruptBlockingReads() {
	deadline := time.Now().Add(100 * time.Millisecond)

	s.ActiveConnections.Range(func(key, value any) bool {
		if conn, ok := value.(net.Conn); ok {
			if err := conn.SetReadDeadline(deadline); err != nil {
				s.log.Debug("error setting shutdown deadline", "address", key, "error", err)
			}
		}
		return true
	})
}

// gracefulShutdown waits for active connections to complete or force-closes
// them after the configured timeout.
func (s *Server) gracefulShutdown() error {
	s.log.Info(s.role+" shutting down", "active", s.ConnCount.Load())

	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()

	timeout := s.Config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	select {
	case <-done:
		s.log.Info(s.role + " shutdown complete")
		return nil

	case <-time.After(timeout):
		remaining := s.ConnCount.Load()
		s.forceCloseConnections()
		return fmt.Errorf("%s shutdown timeout: %d connections force-closed", s.role, remaining)
	}
}

// forceCloseConnections closes all remaining TCP connections.
func (s *Server) forceCloseConnections() {
	s.ActiveConnections.Range(func(key, value any) bool {
		if conn, ok := value.(net.Conn); ok {
			if err := conn.Close(); err != nil {
				s.log.Debug("error force-closing connection", "address", key, "error", err)
			}
		}
		return true
	})
}

// Stop initiates graceful shutdown and waits for active connections up to the
// configured timeout (or ctx cancellation if ctx is non-nil). Safe to call
// multiple times and concurrently with Serve.
func (s *Server) Stop(ctx context.Context) error {
	s.initiateShutdown()

	if ctx == nil {
		return s.gracefulShutdown()
	}

	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetActiveConnections returns the current number of active connections.
func (s *Server) GetActiveConnections() int32 {
	return s.ConnCount.Load()
}

// GetListenerAddr returns the address the server is listening on, blocking
// until the listener is ready. Safe for tests using port 0.
func (s *Server) GetListenerAddr() string {
	<-s.ListenerReady

	s.listenerMu.RLock()
	defer s.listenerMu.RUnlock()

	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Role returns the human-readable listener name.
func (s *Server) Role() string {
	return s.role
}
