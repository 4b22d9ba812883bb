package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/smarthouse-core/internal/api"
	"github.com/nerrad567/smarthouse-core/internal/audit"
	"github.com/nerrad567/smarthouse-core/internal/house"
	"github.com/nerrad567/smarthouse-core/internal/infrastructure/config"
	"github.com/nerrad567/smarthouse-core/internal/infrastructure/logging"
	"github.com/nerrad567/smarthouse-core/internal/infrastructure/metrics"
	"github.com/nerrad567/smarthouse-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/smarthouse-core/internal/powerswitch"
)

// serveOptions are the flags of "serve".
type serveOptions struct {
	pollInterval time.Duration

	// ready, when set, is called with the API address once serving.
	// The address is nil when the API is disabled.
	ready func(apiAddr net.Addr)
}

func newServeCommand(a *app) *cobra.Command {
	var opts serveOptions
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the house: telemetry receivers, HTTP API, WebSocket events and metrics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), a.cfg, a.log, opts)
		},
	}
	cmd.Flags().DurationVar(&opts.pollInterval, "poll-interval", 5*time.Second,
		"How often switches are polled for state events when MQTT is disabled (0 disables polling)")
	return cmd
}

// polledSwitch is a directory switch whose state is tracked by polling.
type polledSwitch struct {
	id       string
	reporter *powerswitch.RemoteReporter
}

// runServe runs the whole house until ctx is cancelled.
//
// Startup order:
//  1. Database, migrations and the house directory
//  2. MQTT and InfluxDB (each optional)
//  3. One receiver per thermometer, one remote reporter per switch
//  4. WebSocket hub, metrics and the HTTP API
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - cfg: Application configuration
//   - log: Logger instance
//   - opts: Command flags
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func runServe(ctx context.Context, cfg *config.Config, log *logging.Logger, opts serveOptions) error {
	started := time.Now()
	log.Info("starting smarthouse",
		"version", version,
		"commit", commit,
		"build_date", date,
		"site", cfg.Site.ID,
	)

	dir, err := openDirectory(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer dir.close(log)

	mqttClient, err := connectMQTT(cfg, log)
	if err != nil {
		return err
	}
	defer closeMQTT(mqttClient, log)

	influxClient, err := connectInflux(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeInflux(influxClient, log)

	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))
	events := &sinks{mqtt: mqttClient, influx: influxClient, hub: hub, log: log}

	registry, receivers, err := buildRegistry(dir.placements, cfg, log, events.temperature)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("stopping thermometer receivers", "count", len(receivers))
		stopReceivers(receivers, log)
	}()

	collector := metrics.NewCollector()
	for _, r := range receivers {
		if regErr := collector.RegisterReceiver(r.id, r.Stats, r.Temperature); regErr != nil {
			return fmt.Errorf("registering metrics for %s: %w", r.id, regErr)
		}
	}

	switches := make(map[string]api.SwitchCommander)
	var polled []polledSwitch
	for _, p := range dir.placements {
		if p.Device.Kind != house.KindSwitch {
			continue
		}
		id := deviceID(p)
		rep := powerswitch.NewRemoteReporter(p.Device.Description, p.Device.Address)
		switches[id] = rep
		polled = append(polled, polledSwitch{id: id, reporter: rep})
	}

	if mqttClient != nil {
		if subErr := forwardSwitchStates(mqttClient, byte(cfg.MQTT.QoS), hub); subErr != nil {
			return fmt.Errorf("subscribing to switch states: %w", subErr)
		}
		log.Info("forwarding switch states from MQTT", "topic", mqttClient.Topics().AllSwitchStates())
		// Switches publish their own state on the bus.
		polled = nil
	} else if opts.pollInterval <= 0 {
		polled = nil
	}

	checks := map[string]api.HealthChecker{"database": dir.db}
	if mqttClient != nil {
		checks["mqtt"] = mqttClient
	}
	if influxClient != nil {
		checks["influxdb"] = influxClient
	}
	if err := healthCheck(ctx, checks); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	var metricsHandler http.Handler
	if cfg.API.Metrics {
		metricsHandler = collector.Handler()
	}
	apiServer, err := api.New(api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Logger:     log.Component("api"),
		House:      dir.house,
		Provider:   registry,
		Switches:   switches,
		CommandLog: audit.NewSQLiteRepository(dir.db.DB),
		Checks:     checks,
		Metrics:    metricsHandler,
		Hub:        hub,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	for _, ps := range polled {
		g.Go(func() error {
			pollSwitch(gctx, ps, opts.pollInterval, events.switchState(ps.id), log)
			return nil
		})
	}

	var apiAddr net.Addr
	if cfg.API.Enabled {
		if startErr := apiServer.Start(gctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error stopping API server", "error", closeErr)
			}
		}()
		apiAddr = apiServer.Addr()
	} else {
		log.Info("API disabled")
	}

	log.Info("initialisation complete, waiting for shutdown signal",
		"thermometers", len(receivers),
		"switches", len(switches),
		"took", logging.Since(started),
	)
	if opts.ready != nil {
		opts.ready(apiAddr)
	}

	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	stop()
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("smarthouse stopped")
	return nil
}

// healthCheck runs every check, failing on the first error.
func healthCheck(ctx context.Context, checks map[string]api.HealthChecker) error {
	for name, check := range checks {
		if err := check.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// forwardSwitchStates relays every switch state published on the bus to
// WebSocket subscribers.
func forwardSwitchStates(client *mqtt.Client, qos byte, hub *api.Hub) error {
	return client.Subscribe(client.Topics().AllSwitchStates(), qos, func(topic string, payload []byte) error {
		if !json.Valid(payload) {
			return fmt.Errorf("invalid switch state on %s", topic)
		}
		hub.Broadcast(api.ChannelSwitchUpdated, json.RawMessage(payload))
		return nil
	})
}

// pollSwitch queries a switch every interval and calls publish whenever
// its snapshot changes. Unreachable switches are retried on the next tick.
func pollSwitch(ctx context.Context, ps polledSwitch, interval time.Duration, publish func(powerswitch.Snapshot), log *logging.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var (
		last powerswitch.Snapshot
		seen bool
	)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		queryCtx, cancel := context.WithTimeout(ctx, interval)
		snap, err := ps.reporter.Query(queryCtx)
		cancel()
		if err != nil {
			log.Debug("switch poll failed", "device_id", ps.id, "error", err)
			continue
		}
		if seen && snap == last {
			continue
		}
		last, seen = snap, true
		publish(snap)
	}
}
