package thermometer

import (
	"context"
	"fmt"
	"net"
	"time"
)

// SenderConfig configures a Sender.
type SenderConfig struct {
	// LocalAddress is bound so the receiver can recognise this sender.
	LocalAddress string

	// TargetAddress is the receiver's listen address.
	TargetAddress string
}

// Sender writes temperature samples to a receiver.
type Sender struct {
	conn   *net.UDPConn
	target *net.UDPAddr
	logger Logger
}

// NewSender binds the local address and resolves the target.
func NewSender(cfg SenderConfig) (*Sender, error) {
	local, err := resolve("local", cfg.LocalAddress)
	if err != nil {
		return nil, err
	}
	target, err := resolve("target", cfg.TargetAddress)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", local)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrBindFailed, cfg.LocalAddress, err)
	}
	return &Sender{conn: conn, target: target, logger: noopLogger{}}, nil
}

// SetLogger sets the logger used by Run.
func (s *Sender) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	s.logger = logger
}

// LocalAddr returns the bound source address.
func (s *Sender) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

// Send writes one sample, retrying until all 8 bytes have gone out.
func (s *Sender) Send(celsius float64) error {
	buf := EncodeSample(celsius)
	for sent := 0; sent < SampleSize; {
		n, err := s.conn.WriteToUDP(buf[sent:], s.target)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrSendFailed, err)
		}
		sent += n
	}
	return nil
}

// Run sends next() every interval until ctx is cancelled. Send failures
// are logged and do not stop the loop.
func (s *Sender) Run(ctx context.Context, interval time.Duration, next func() float64) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		v := next()
		if err := s.Send(v); err != nil {
			s.logger.Warn("sending temperature failed", "error", err)
		} else {
			s.logger.Debug("temperature sent", "celsius", v, "target", s.target.String())
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Close releases the socket.
func (s *Sender) Close() error {
	return s.conn.Close()
}
