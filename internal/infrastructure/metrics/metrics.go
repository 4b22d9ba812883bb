// Package metrics exposes device server and telemetry counters to
// Prometheus.
//
// Components keep their own atomic counters; the Collector only reads them
// at scrape time through CounterFunc and GaugeFunc collectors, so
// registering a component costs nothing on its hot path.
package metrics

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/smarthouse-core/internal/powerswitch"
	"github.com/nerrad567/smarthouse-core/internal/thermometer"
)

const namespace = "smarthouse"

// ErrAlreadyRegistered is returned when a device id is registered twice.
var ErrAlreadyRegistered = errors.New("metrics: device already registered")

// Collector owns a private registry for the process.
type Collector struct {
	registry *prometheus.Registry
}

// NewCollector returns a Collector with Go runtime and process metrics.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Collector{registry: reg}
}

// Registry returns the underlying registry, for tests and extra collectors.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// RegisterSwitchServer exposes the counters of a switch server as
// smarthouse_switch_* series labelled with device_id.
func (c *Collector) RegisterSwitchServer(id string, stats func() powerswitch.ServerStats) error {
	labels := prometheus.Labels{"device_id": id}
	counter := func(name, help string, read func(powerswitch.ServerStats) uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "switch", Name: name, Help: help, ConstLabels: labels,
		}, func() float64 { return float64(read(stats())) })
	}

	return c.register(id,
		counter("connections_accepted_total", "Client connections accepted.",
			func(s powerswitch.ServerStats) uint64 { return s.ConnectionsAccepted }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "switch", Name: "connections_active",
			Help: "Client connections currently open.", ConstLabels: labels,
		}, func() float64 { return float64(stats().ConnectionsActive) }),
		counter("commands_processed_total", "Commands answered, unknown ones included.",
			func(s powerswitch.ServerStats) uint64 { return s.CommandsProcessed }),
		counter("unknown_commands_total", "Command bytes outside the protocol.",
			func(s powerswitch.ServerStats) uint64 { return s.UnknownCommands }),
		counter("accept_errors_total", "Failed accepts.",
			func(s powerswitch.ServerStats) uint64 { return s.AcceptErrors }),
		counter("write_errors_total", "Responses that could not be written.",
			func(s powerswitch.ServerStats) uint64 { return s.WriteErrors }),
	)
}

// RegisterReceiver exposes the counters of a telemetry receiver as
// smarthouse_thermometer_* series labelled with device_id. temperature is
// read for the smarthouse_thermometer_temperature_celsius gauge.
func (c *Collector) RegisterReceiver(id string, stats func() thermometer.ReceiverStats, temperature func() float64) error {
	labels := prometheus.Labels{"device_id": id}
	counter := func(name, help string, read func(thermometer.ReceiverStats) uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "thermometer", Name: name, Help: help, ConstLabels: labels,
		}, func() float64 { return float64(read(stats())) })
	}

	return c.register(id,
		counter("datagrams_received_total", "Datagrams read from the socket.",
			func(s thermometer.ReceiverStats) uint64 { return s.DatagramsReceived }),
		counter("samples_published_total", "Complete samples published.",
			func(s thermometer.ReceiverStats) uint64 { return s.SamplesPublished }),
		counter("peer_mismatches_total", "Datagrams dropped for coming from another peer.",
			func(s thermometer.ReceiverStats) uint64 { return s.PeerMismatches }),
		counter("timeouts_total", "Receive timeouts.",
			func(s thermometer.ReceiverStats) uint64 { return s.Timeouts }),
		counter("read_errors_total", "Socket read errors other than timeouts.",
			func(s thermometer.ReceiverStats) uint64 { return s.ReadErrors }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "thermometer", Name: "temperature_celsius",
			Help: "Last published temperature.", ConstLabels: labels,
		}, temperature),
	)
}

// register adds all collectors or none.
func (c *Collector) register(id string, cs ...prometheus.Collector) error {
	for i, col := range cs {
		if err := c.registry.Register(col); err != nil {
			for _, done := range cs[:i] {
				c.registry.Unregister(done)
			}
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				return fmt.Errorf("%w: %q", ErrAlreadyRegistered, id)
			}
			return fmt.Errorf("metrics: registering %q: %w", id, err)
		}
	}
	return nil
}
