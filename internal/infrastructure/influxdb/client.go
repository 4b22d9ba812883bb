package influxdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/smarthouse-core/internal/infrastructure/config"
)

const (
	pingTimeout = 5 * time.Second

	fallbackBatchSize       = 100
	fallbackFlushIntervalMS = 10_000
)

// Client batches device telemetry into one InfluxDB v2 bucket.
//
// Writes never block: points are queued on the client library's WriteAPI
// and failures are reported later through the SetOnError callback. Once
// closed, writes are counted as dropped and otherwise ignored.
//
// All methods are safe for concurrent use.
type Client struct {
	conn   influxdb2.Client
	writer api.WriteAPI

	// gate is held shared by writers and exclusively by Close, so no
	// point reaches the WriteAPI after it has been shut down.
	gate    sync.RWMutex
	closed  atomic.Bool
	dropped atomic.Uint64

	hookMu  sync.RWMutex
	onError func(err error)
}

// Connect opens a client for cfg.Org/cfg.Bucket and pings the server.
//
// Returns ErrDisabled when the section is switched off and wraps
// ErrConnectionFailed when the server does not answer healthy before the
// ping deadline.
func Connect(ctx context.Context, cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	conn := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, clientOptions(cfg))
	if err := ping(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, cfg.URL, err)
	}

	c := &Client{conn: conn, writer: conn.WriteAPI(cfg.Org, cfg.Bucket)}
	// Errors creates its channel lazily; Close only closes it if it exists.
	go c.forwardErrors(c.writer.Errors())
	return c, nil
}

// clientOptions converts the configured batch size and flush interval
// (seconds) into write options, falling back for non-positive values.
func clientOptions(cfg config.InfluxDBConfig) *influxdb2.Options {
	batch := uint(fallbackBatchSize)
	if cfg.BatchSize > 0 {
		batch = uint(cfg.BatchSize)
	}
	flushMS := uint(fallbackFlushIntervalMS)
	if cfg.FlushInterval > 0 {
		flushMS = uint(cfg.FlushInterval) * uint(time.Second/time.Millisecond)
	}
	return influxdb2.DefaultOptions().SetBatchSize(batch).SetFlushInterval(flushMS)
}

func ping(ctx context.Context, conn influxdb2.Client) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	ok, err := conn.Ping(ctx)
	switch {
	case err != nil:
		return err
	case !ok:
		return errUnhealthy
	}
	return nil
}

// forwardErrors drains the asynchronous error channel until the WriteAPI
// is closed.
func (c *Client) forwardErrors(errs <-chan error) {
	for err := range errs {
		c.hookMu.RLock()
		hook := c.onError
		c.hookMu.RUnlock()
		if hook != nil {
			hook(err)
		}
	}
}

// SetOnError installs the callback for failed background writes.
func (c *Client) SetOnError(hook func(err error)) {
	c.hookMu.Lock()
	c.onError = hook
	c.hookMu.Unlock()
}

// IsConnected reports whether the client still accepts writes.
func (c *Client) IsConnected() bool {
	return c.conn != nil && !c.closed.Load()
}

// Dropped is the number of points discarded because the client was closed.
func (c *Client) Dropped() uint64 {
	return c.dropped.Load()
}

// HealthCheck pings the server. It satisfies the API's health checker.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	if err := ping(ctx, c.conn); err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	return nil
}

// Flush blocks until queued points are sent. It does nothing once closed.
func (c *Client) Flush() {
	c.gate.RLock()
	defer c.gate.RUnlock()
	if c.IsConnected() {
		c.writer.Flush()
	}
}

// enqueue hands p to the WriteAPI, or counts it as dropped once closed.
func (c *Client) enqueue(p *write.Point) {
	c.gate.RLock()
	defer c.gate.RUnlock()
	if !c.IsConnected() {
		c.dropped.Add(1)
		return
	}
	c.writer.WritePoint(p)
}

// Close sends anything still queued and releases the connection. It is
// safe to call more than once and on a zero Client.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	c.gate.Lock()
	defer c.gate.Unlock()
	if c.closed.Swap(true) {
		return nil
	}
	c.writer.Flush()
	c.conn.Close()
	return nil
}
