package thermometer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/temoto/alive/v2"
)

const (
	// DefaultReceiveTimeout bounds each read in the receive loop.
	DefaultReceiveTimeout = 5 * time.Second

	// maxDatagramSize is the read buffer size. Samples are 8 bytes; larger
	// datagrams are truncated by the kernel and only their head is used.
	maxDatagramSize = 64
)

// ReceiverConfig configures a Receiver.
type ReceiverConfig struct {
	// ListenAddress is the local UDP address to bind, e.g. "127.0.0.1:4321".
	ListenAddress string

	// PeerAddress is the only sender address whose datagrams are accepted.
	PeerAddress string

	// ReceiveTimeout bounds each read. Defaults to DefaultReceiveTimeout.
	ReceiveTimeout time.Duration
}

// ReceiverStats holds counters for monitoring.
type ReceiverStats struct {
	DatagramsReceived uint64
	SamplesPublished  uint64
	PeerMismatches    uint64
	Timeouts          uint64
	ReadErrors        uint64
}

// Option customises a Receiver at Start.
type Option func(*Receiver)

// WithLogger sets the receiver's logger.
func WithLogger(logger Logger) Option {
	return func(r *Receiver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithOnSample registers a callback run by the receive loop after each
// published sample. It must not block for long: the next datagram is not
// read until it returns.
func WithOnSample(fn func(celsius float64)) Option {
	return func(r *Receiver) { r.onSample = fn }
}

// Receiver maintains the latest temperature sample from one peer.
//
// Thread Safety: all methods are safe for concurrent use.
type Receiver struct {
	cfg      ReceiverConfig
	conn     *net.UDPConn
	peer     *net.UDPAddr
	alive    *alive.Alive
	logger   Logger
	onSample func(float64)

	mu    sync.RWMutex
	value float64

	closeOnce sync.Once
	closeErr  error

	datagrams      atomic.Uint64
	samples        atomic.Uint64
	peerMismatches atomic.Uint64
	timeouts       atomic.Uint64
	readErrors     atomic.Uint64
}

// Start binds the socket and launches the receive loop.
//
// Returns:
//   - *Receiver: Running receiver; the caller must Close it
//   - error: ErrInvalidAddress if an address does not resolve,
//     ErrBindFailed if the socket cannot be bound
func Start(cfg ReceiverConfig, opts ...Option) (*Receiver, error) {
	if cfg.ReceiveTimeout <= 0 {
		cfg.ReceiveTimeout = DefaultReceiveTimeout
	}

	local, err := resolve("listen", cfg.ListenAddress)
	if err != nil {
		return nil, err
	}
	peer, err := resolve("peer", cfg.PeerAddress)
	if err != nil {
		return nil, err
	}

	conn, err := net.ListenUDP("udp", local)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrBindFailed, cfg.ListenAddress, err)
	}

	r := &Receiver{
		cfg:    cfg,
		conn:   conn,
		peer:   peer,
		alive:  alive.NewAlive(),
		logger: noopLogger{},
	}
	for _, opt := range opts {
		opt(r)
	}

	r.alive.Add(1)
	go r.loop()

	r.logger.Info("thermometer receiver started",
		"listen", conn.LocalAddr().String(),
		"peer", peer.String(),
	)
	return r, nil
}

func resolve(role, address string) (*net.UDPAddr, error) {
	if address == "" {
		return nil, fmt.Errorf("%w: empty %s address", ErrInvalidAddress, role)
	}
	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("%w: %s address %q: %w", ErrInvalidAddress, role, address, err)
	}
	return addr, nil
}

// Temperature returns the last published sample, or 0 if none has arrived.
func (r *Receiver) Temperature() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.value
}

// LocalAddr returns the bound socket address.
func (r *Receiver) LocalAddr() net.Addr {
	return r.conn.LocalAddr()
}

// Status renders the device status line used in house reports.
func (r *Receiver) Status(context.Context) string {
	return r.String()
}

// String renders a status line such as `Thermometer (temperature: 21.75)`.
func (r *Receiver) String() string {
	return "Thermometer (temperature: " + strconv.FormatFloat(r.Temperature(), 'f', -1, 64) + ")"
}

// Stats returns a snapshot of the receiver counters.
func (r *Receiver) Stats() ReceiverStats {
	return ReceiverStats{
		DatagramsReceived: r.datagrams.Load(),
		SamplesPublished:  r.samples.Load(),
		PeerMismatches:    r.peerMismatches.Load(),
		Timeouts:          r.timeouts.Load(),
		ReadErrors:        r.readErrors.Load(),
	}
}

// Stop signals the loop and blocks until it has exited.
// It is safe to call more than once and from multiple goroutines.
func (r *Receiver) Stop() {
	r.alive.Stop()
	// Wake a read blocked in the kernel instead of waiting out the timeout.
	_ = r.conn.SetReadDeadline(time.Now())
	r.alive.Wait()
}

// Close stops the loop and releases the socket.
func (r *Receiver) Close() error {
	r.closeOnce.Do(func() {
		r.Stop()
		if err := r.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			r.closeErr = fmt.Errorf("closing thermometer socket: %w", err)
		}
		r.logger.Info("thermometer receiver stopped")
	})
	return r.closeErr
}

// loop is the single receive loop. Partial samples are accumulated across
// datagrams from the peer and discarded when a read times out.
func (r *Receiver) loop() {
	defer r.alive.Done()

	buf := make([]byte, maxDatagramSize)
	var pending [SampleSize]byte
	filled := 0

	for r.alive.IsRunning() {
		_ = r.conn.SetReadDeadline(time.Now().Add(r.cfg.ReceiveTimeout))
		// Stop may have set its wake-up deadline before ours replaced it.
		if !r.alive.IsRunning() {
			return
		}
		n, from, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if !r.alive.IsRunning() {
				return
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				r.timeouts.Add(1)
				filled = 0
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				r.logger.Error("thermometer socket closed unexpectedly", "error", err)
				return
			}
			r.readErrors.Add(1)
			r.logger.Warn("thermometer read failed", "error", err)
			continue
		}

		r.datagrams.Add(1)
		if !sameAddr(from, r.peer) {
			r.peerMismatches.Add(1)
			r.logger.Debug("dropping datagram from unexpected sender", "from", from.String())
			continue
		}

		filled += copy(pending[filled:], buf[:n])
		if filled < SampleSize {
			continue
		}
		filled = 0
		r.publish(DecodeSample(pending))
	}
}

func (r *Receiver) publish(celsius float64) {
	r.mu.Lock()
	r.value = celsius
	r.mu.Unlock()
	r.samples.Add(1)

	if r.onSample != nil {
		r.onSample(celsius)
	}
}

func sameAddr(a, b *net.UDPAddr) bool {
	return a != nil && b != nil && a.Port == b.Port && a.IP.Equal(b.IP)
}
