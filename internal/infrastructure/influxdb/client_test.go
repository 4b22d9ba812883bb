package influxdb_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/smarthouse-core/internal/infrastructure/config"
	"github.com/nerrad567/smarthouse-core/internal/infrastructure/influxdb"
)

// fakeInflux answers /ping and records line protocol posted to /api/v2/write.
type fakeInflux struct {
	*httptest.Server

	mu     sync.Mutex
	lines  []string
	query  string
	reject bool
	wrote  chan struct{}
}

// rejectWrites makes the server answer writes with 400 Bad Request.
func (f *fakeInflux) rejectWrites() {
	f.mu.Lock()
	f.reject = true
	f.mu.Unlock()
}

func newFakeInflux(t *testing.T) *fakeInflux {
	t.Helper()
	f := &fakeInflux{wrote: make(chan struct{}, 16)}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ping", "/health":
			w.WriteHeader(http.StatusNoContent)
		case "/api/v2/write":
			body, _ := io.ReadAll(r.Body)
			f.mu.Lock()
			if f.reject {
				f.mu.Unlock()
				http.Error(w, `{"code":"invalid","message":"unable to parse points"}`, http.StatusBadRequest)
				return
			}
			f.query = r.URL.RawQuery
			for _, line := range strings.Split(strings.TrimSpace(string(body)), "\n") {
				if line != "" {
					f.lines = append(f.lines, line)
				}
			}
			f.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
			select {
			case f.wrote <- struct{}{}:
			default:
			}
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(f.Close)
	return f
}

// waitLines blocks until at least n lines were received.
func (f *fakeInflux) waitLines(t *testing.T, n int) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		if lines, _ := f.snapshot(); len(lines) >= n {
			return
		}
		select {
		case <-f.wrote:
		case <-deadline:
			t.Fatalf("timed out waiting for %d lines", n)
		}
	}
}

func (f *fakeInflux) snapshot() ([]string, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...), f.query
}

func testConfig(url string) config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           url,
		Token:         "test-token",
		Org:           "smarthouse",
		Bucket:        "telemetry",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Enabled = false

	_, err := influxdb.Connect(context.Background(), cfg)
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := influxdb.Connect(ctx, testConfig("http://127.0.0.1:1"))
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestWriteTemperatureAndPower(t *testing.T) {
	srv := newFakeInflux(t)

	client, err := influxdb.Connect(context.Background(), testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	at := time.Unix(1700000000, 0)
	client.WriteTemperature("living-room", 21.75, at)
	client.WriteSwitchPower("bathroom", 60, true, at)
	client.Flush()
	srv.waitLines(t, 2)

	lines, query := srv.snapshot()
	if !strings.Contains(query, "bucket=telemetry") || !strings.Contains(query, "org=smarthouse") {
		t.Errorf("write query = %q", query)
	}
	if len(lines) != 2 {
		t.Fatalf("lines = %q, want 2", lines)
	}

	wants := []string{
		"device_metrics,device_id=living-room,measurement=temperature_c value=21.75 1700000000000000000",
		"energy,device_id=bathroom on=true,power_watts=60 1700000000000000000",
	}
	for i, want := range wants {
		if lines[i] != want {
			t.Errorf("line[%d] = %q, want %q", i, lines[i], want)
		}
	}
}

func TestWriteErrorsReachHook(t *testing.T) {
	srv := newFakeInflux(t)
	srv.rejectWrites()

	client, err := influxdb.Connect(context.Background(), testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	failures := make(chan error, 1)
	client.SetOnError(func(err error) {
		select {
		case failures <- err:
		default:
		}
	})

	client.WriteTemperature("living-room", 21.75, time.Time{})
	client.Flush()

	select {
	case err := <-failures:
		if err == nil {
			t.Error("hook received a nil error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("rejected write never reached the error hook")
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

// Closing straight after Connect must not race the error forwarder.
func TestCloseImmediatelyAfterConnect(t *testing.T) {
	srv := newFakeInflux(t)
	for range 20 {
		client, err := influxdb.Connect(context.Background(), testConfig(srv.URL))
		if err != nil {
			t.Fatalf("Connect() error = %v", err)
		}
		if err := client.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
	}
}

func TestWritesAfterCloseAreDropped(t *testing.T) {
	srv := newFakeInflux(t)

	client, err := influxdb.Connect(context.Background(), testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}

	client.WriteTemperature("living-room", 20, time.Time{})
	client.WriteSwitchPower("bathroom", 0, false, time.Time{})
	client.Flush()

	if got := client.Dropped(); got != 2 {
		t.Errorf("Dropped() = %d, want 2", got)
	}

	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() after Close = %v, want ErrNotConnected", err)
	}
	if lines, _ := srv.snapshot(); len(lines) != 0 {
		t.Errorf("lines after close = %q, want none", lines)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestClose_ZeroClient(t *testing.T) {
	var client influxdb.Client
	if err := client.Close(); err != nil {
		t.Errorf("Close() on zero client = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true on zero client")
	}
}
