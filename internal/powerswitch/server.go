package powerswitch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/temoto/alive/v2"
)

// Server defaults.
const (
	defaultWriteTimeout = 5 * time.Second
	acceptBackoffMin    = 5 * time.Millisecond
	acceptBackoffMax    = 1 * time.Second
)

// ServerConfig configures the connection server.
type ServerConfig struct {
	// Address is the TCP listen address, e.g. "127.0.0.1:7878".
	Address string

	// IdleTimeout closes a connection that sends no command for this long.
	// Zero disables the limit.
	IdleTimeout time.Duration

	// WriteTimeout bounds writing one response frame. Defaults to 5s.
	WriteTimeout time.Duration
}

// ServerStats holds counters for monitoring.
type ServerStats struct {
	ConnectionsAccepted uint64
	ConnectionsActive   int64
	CommandsProcessed   uint64
	UnknownCommands     uint64
	AcceptErrors        uint64
	WriteErrors         uint64
}

// Server exposes one Shared switch over the switch wire protocol.
//
// Every accepted connection is served by its own goroutine. Handlers share
// the switch only through Shared.Process, so response I/O never happens
// while the switch lock is held.
//
// Thread Safety: all methods are safe for concurrent use.
type Server struct {
	cfg      ServerConfig
	shared   *Shared
	listener net.Listener
	alive    *alive.Alive
	logger   Logger

	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool

	hookMu        sync.RWMutex
	onStateChange func(Snapshot)

	connectionsAccepted atomic.Uint64
	connectionsActive   atomic.Int64
	commandsProcessed   atomic.Uint64
	unknownCommands     atomic.Uint64
	acceptErrors        atomic.Uint64
	writeErrors         atomic.Uint64
}

// NewServer binds the listener for shared.
//
// Parameters:
//   - ctx: Bounds the bind operation only
//   - cfg: Listen address and per-connection timeouts
//   - shared: The switch served to every connection
//
// Returns:
//   - *Server: Bound server, call Run to start accepting
//   - error: ErrInvalidAddress or ErrBindFailed
func NewServer(ctx context.Context, cfg ServerConfig, shared *Shared) (*Server, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("%w: empty listen address", ErrInvalidAddress)
	}
	if _, _, err := net.SplitHostPort(cfg.Address); err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidAddress, cfg.Address, err)
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrBindFailed, cfg.Address, err)
	}

	return &Server{
		cfg:      cfg,
		shared:   shared,
		listener: ln,
		alive:    alive.NewAlive(),
		logger:   noopLogger{},
		conns:    make(map[net.Conn]struct{}),
	}, nil
}

// SetLogger sets the logger. Call before Run.
func (s *Server) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	s.logger = logger
}

// SetOnStateChange registers a callback invoked with a fresh snapshot
// whenever a command turns the switch on or off. The callback runs on the
// goroutine that processed the command.
func (s *Server) SetOnStateChange(fn func(Snapshot)) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.onStateChange = fn
}

// Addr returns the bound listen address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Shared returns the switch container served by s.
func (s *Server) Shared() *Shared {
	return s.shared
}

// Run accepts connections until ctx is cancelled or Close is called.
//
// A failed Accept is logged and retried with backoff; it never stops the
// loop. Run returns nil on orderly shutdown and ErrServerClosed if the
// server had already been closed or the listener was closed externally.
func (s *Server) Run(ctx context.Context) error {
	if !s.alive.Add(1) {
		return ErrServerClosed
	}
	defer s.alive.Done()

	stop := context.AfterFunc(ctx, s.shutdown)
	defer stop()

	s.logger.Info("switch server listening", "address", s.listener.Addr().String())

	var backoff time.Duration
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.alive.IsRunning() {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("%w: listener closed", ErrServerClosed)
			}

			s.acceptErrors.Add(1)
			backoff = nextBackoff(backoff)
			s.logger.Warn("accept failed", "error", err, "retry_in", backoff)
			select {
			case <-time.After(backoff):
				continue
			case <-s.alive.StopChan():
				return nil
			}
		}
		backoff = 0

		if !s.alive.Add(1) {
			_ = conn.Close()
			return nil
		}
		s.connectionsAccepted.Add(1)
		s.track(conn)
		go s.handle(conn)
	}
}

// Apply processes cmd exactly as if it had arrived on a connection.
// It is used by in-process command sources such as the message bus.
func (s *Server) Apply(cmd Command) Response {
	resp, changed := s.shared.Process(cmd)
	s.countCommand(cmd)
	if changed {
		s.notifyStateChange()
	}
	return resp
}

// Close stops accepting, closes every live connection and waits for all
// handlers to return. It is safe to call more than once.
func (s *Server) Close() error {
	s.shutdown()
	s.alive.Wait()
	return nil
}

// Stats returns a snapshot of the server counters.
func (s *Server) Stats() ServerStats {
	return ServerStats{
		ConnectionsAccepted: s.connectionsAccepted.Load(),
		ConnectionsActive:   s.connectionsActive.Load(),
		CommandsProcessed:   s.commandsProcessed.Load(),
		UnknownCommands:     s.unknownCommands.Load(),
		AcceptErrors:        s.acceptErrors.Load(),
		WriteErrors:         s.writeErrors.Load(),
	}
}

// shutdown signals stop and unblocks Accept and every handler read.
func (s *Server) shutdown() {
	s.alive.Stop()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	conns := make([]net.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.logger.Warn("closing listener", "error", err)
	}
	for _, c := range conns {
		_ = c.Close()
	}
}

func (s *Server) track(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		// shutdown already swept the map; make the handler's first read fail
		_ = conn.Close()
		return
	}
	s.conns[conn] = struct{}{}
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	_ = conn.Close()
}

// handle serves one connection until the peer goes away or a write fails.
func (s *Server) handle(conn net.Conn) {
	defer s.alive.Done()
	defer s.untrack(conn)

	remote := conn.RemoteAddr().String()
	s.connectionsActive.Add(1)
	defer s.connectionsActive.Add(-1)
	s.logger.Info("client connected", "remote", remote)

	var buf [CommandSize]byte
	for {
		if s.cfg.IdleTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
		}
		if _, err := io.ReadFull(conn, buf[:]); err != nil {
			if errors.Is(err, io.EOF) || !s.alive.IsRunning() {
				s.logger.Info("client disconnected", "remote", remote)
			} else {
				s.logger.Debug("client read failed", "remote", remote, "error", err)
			}
			return
		}

		cmd := DecodeCommand(buf[0])
		resp, changed := s.shared.Process(cmd)
		s.countCommand(cmd)

		frame := resp.Encode()
		_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		if _, err := conn.Write(frame[:]); err != nil {
			s.writeErrors.Add(1)
			s.logger.Warn("writing response failed", "remote", remote, "command", cmd.String(), "error", err)
			return
		}

		if changed {
			s.notifyStateChange()
		}
	}
}

func (s *Server) countCommand(cmd Command) {
	s.commandsProcessed.Add(1)
	if cmd == CommandUnknown {
		s.unknownCommands.Add(1)
	}
}

func (s *Server) notifyStateChange() {
	s.hookMu.RLock()
	fn := s.onStateChange
	s.hookMu.RUnlock()
	if fn != nil {
		fn(s.shared.Snapshot())
	}
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return acceptBackoffMin
	}
	d *= 2
	if d > acceptBackoffMax {
		return acceptBackoffMax
	}
	return d
}
