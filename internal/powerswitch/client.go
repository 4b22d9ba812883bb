package powerswitch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// Client defaults.
const (
	defaultConnectTimeout = 5 * time.Second
	defaultIOTimeout      = 5 * time.Second
)

// ClientConfig configures a Client.
type ClientConfig struct {
	// Address is the switch server's TCP address.
	Address string

	// ConnectTimeout bounds the dial. Defaults to 5s.
	ConnectTimeout time.Duration

	// IOTimeout bounds one command round trip when ctx has no earlier
	// deadline. Defaults to 5s.
	IOTimeout time.Duration
}

// Client talks to a switch server over one TCP connection.
//
// The protocol has no request identifiers, so RunCommand serialises callers:
// a second command is not written until the previous response has been
// read in full.
//
// Thread Safety: all methods are safe for concurrent use.
type Client struct {
	cfg  ClientConfig
	conn net.Conn

	mu     sync.Mutex
	closed bool
	broken bool
}

// Connect dials the switch server.
//
// Returns ErrInvalidAddress for an empty address and ErrConnectionFailed
// when the connection cannot be established.
func Connect(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("%w: empty switch address", ErrInvalidAddress)
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.IOTimeout <= 0 {
		cfg.IOTimeout = defaultIOTimeout
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(dialCtx, "tcp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, cfg.Address, err)
	}
	return &Client{cfg: cfg, conn: conn}, nil
}

// RunCommand sends cmd and blocks until the full 9-byte response arrives.
//
// Returns ErrIO if the write or the read does not complete; the connection
// is unusable afterwards because the response stream may be out of step.
func (c *Client) RunCommand(ctx context.Context, cmd Command) (Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return Response{}, ErrClientClosed
	}
	if c.broken {
		return Response{}, fmt.Errorf("%w: connection out of sync after earlier failure", ErrIO)
	}

	deadline := time.Now().Add(c.cfg.IOTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.conn.SetDeadline(deadline)

	// Unblock the round trip if ctx is cancelled mid-flight.
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetDeadline(time.Now())
	})
	defer stop()

	if _, err := c.conn.Write([]byte{cmd.Encode()}); err != nil {
		c.broken = true
		return Response{}, fmt.Errorf("%w: sending %s: %w", ErrIO, cmd, ctxErr(ctx, err))
	}

	var frame [ResponseSize]byte
	if _, err := io.ReadFull(c.conn, frame[:]); err != nil {
		c.broken = true
		return Response{}, fmt.Errorf("%w: reading response to %s: %w", ErrIO, cmd, ctxErr(ctx, err))
	}
	return DecodeResponse(frame), nil
}

// Close closes the connection. Further commands return ErrClientClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if err := c.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("closing switch connection: %w", err)
	}
	return nil
}

// ctxErr prefers the context error when ctx caused the failure.
func ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	// The socket deadline may fire a moment before the context timer.
	if d, ok := ctx.Deadline(); ok && !time.Now().Before(d) {
		return context.DeadlineExceeded
	}
	return err
}
