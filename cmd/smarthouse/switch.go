package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/smarthouse-core/internal/infrastructure/config"
	"github.com/nerrad567/smarthouse-core/internal/infrastructure/logging"
	"github.com/nerrad567/smarthouse-core/internal/infrastructure/metrics"
	"github.com/nerrad567/smarthouse-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/smarthouse-core/internal/powerswitch"
)

// newSwitchCommand creates the switch command group.
func newSwitchCommand(a *app) *cobra.Command {
	switchCmd := &cobra.Command{
		Use:   "switch",
		Short: "Serve or control a TCP power switch",
	}
	switchCmd.AddCommand(newSwitchServeCommand(a))
	switchCmd.AddCommand(newSwitchCtlCommand(a))
	return switchCmd
}

// switchServeOptions are the flags of "switch serve".
type switchServeOptions struct {
	listen         string
	metricsAddress string

	// ready, when set, is called with the bound addresses once serving.
	ready func(switchAddr, metricsAddr net.Addr)
}

func newSwitchServeCommand(a *app) *cobra.Command {
	var opts switchServeOptions
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the configured power switch over TCP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.listen != "" {
				a.cfg.Switch.ListenAddress = opts.listen
			}
			return runSwitchServer(cmd.Context(), a.cfg, a.log, opts)
		},
	}
	cmd.Flags().StringVar(&opts.listen, "listen", "", "TCP address to listen on (overrides switch.listen_address)")
	cmd.Flags().StringVar(&opts.metricsAddress, "metrics-address", "", "Serve Prometheus metrics on this address")
	return cmd
}

// runSwitchServer serves one power switch until ctx is cancelled.
//
// State changes are published retained on the bus and written to InfluxDB
// when those are enabled, and commands arriving on the bus command topic
// go through the same shared switch as TCP clients.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - cfg: Application configuration; the switch section is served
//   - log: Logger instance
//   - opts: Command flags
//
// Returns:
//   - error: nil on clean shutdown, or the startup failure
func runSwitchServer(ctx context.Context, cfg *config.Config, log *logging.Logger, opts switchServeOptions) error {
	sc := cfg.Switch
	log = log.With("device_id", sc.ID)
	log.Info("starting power switch",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	sw, err := powerswitch.New(powerswitch.Settings{
		Description:      sc.Description,
		InitialState:     sc.InitialState,
		PowerConsumption: sc.PowerConsumption,
	})
	if err != nil {
		return fmt.Errorf("creating switch: %w", err)
	}
	sw.SetLogger(log.Device("switch", sc.ID))

	srv, err := powerswitch.NewServer(ctx, powerswitch.ServerConfig{
		Address:     sc.ListenAddress,
		IdleTimeout: sc.IdleTimeout,
	}, powerswitch.NewShared(sw))
	if err != nil {
		return fmt.Errorf("starting switch server: %w", err)
	}
	srv.SetLogger(log.Device("powerswitch", sc.ID))
	defer func() {
		log.Info("stopping switch server")
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("error stopping switch server", "error", closeErr)
		}
	}()

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

	out := &sinks{mqtt: mqttClient, influx: influxClient, log: log}
	publish := out.switchState(sc.ID)
	srv.SetOnStateChange(publish)
	publish(srv.Shared().Snapshot())

	if mqttClient != nil {
		topic := mqttClient.Topics().SwitchCommand(sc.ID)
		if subErr := mqttClient.Subscribe(topic, byte(cfg.MQTT.QoS), busCommandHandler(srv, log)); subErr != nil {
			return fmt.Errorf("subscribing to switch commands: %w", subErr)
		}
		log.Info("listening for bus commands", "topic", topic)
	}

	var (
		collector *metrics.Collector
		metricsLn net.Listener
	)
	if opts.metricsAddress != "" {
		collector = metrics.NewCollector()
		if regErr := collector.RegisterSwitchServer(sc.ID, srv.Stats); regErr != nil {
			return fmt.Errorf("registering switch metrics: %w", regErr)
		}
		metricsLn, err = (&net.ListenConfig{}).Listen(ctx, "tcp", opts.metricsAddress)
		if err != nil {
			return fmt.Errorf("listening for metrics on %s: %w", opts.metricsAddress, err)
		}
		log.Info("metrics listening", "address", metricsLn.Addr().String())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	var metricsAddr net.Addr
	if metricsLn != nil {
		metricsAddr = metricsLn.Addr()
		g.Go(func() error {
			return serveMetrics(gctx, metricsLn, collector.Handler())
		})
	}

	log.Info("power switch listening",
		"address", srv.Addr().String(),
		"switch", srv.Shared().String(),
	)
	if opts.ready != nil {
		opts.ready(srv.Addr(), metricsAddr)
	}

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("power switch stopped")
	return nil
}

// serveMetrics serves handler on ln until ctx is cancelled.
func serveMetrics(ctx context.Context, ln net.Listener, handler http.Handler) error {
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serving metrics: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down metrics: %w", err)
	}
	return nil
}

// busCommand is the payload of a switch command message,
// e.g. {"command":"turn_on"}.
type busCommand struct {
	Command string `json:"command"`
}

// busCommandHandler applies commands received on the message bus.
func busCommandHandler(srv *powerswitch.Server, log *logging.Logger) mqtt.MessageHandler {
	return func(topic string, payload []byte) error {
		var msg busCommand
		if err := json.Unmarshal(payload, &msg); err != nil {
			return fmt.Errorf("decoding command on %s: %w", topic, err)
		}
		cmd, err := powerswitch.ParseCommandName(msg.Command)
		if err != nil {
			return err
		}
		resp := srv.Apply(cmd)
		log.Info("bus command applied", "command", cmd.String(), "response", resp.String())
		return nil
	}
}

// switchCtlOptions are the flags of "switch ctl".
type switchCtlOptions struct {
	address string
	timeout time.Duration
}

func newSwitchCtlCommand(a *app) *cobra.Command {
	var opts switchCtlOptions
	cmd := &cobra.Command{
		Use:   "ctl [command...]",
		Short: "Send commands to a running power switch",
		Long: `Connects to a power switch and sends commands to it.

Commands are on, off, status, power, or a wire code 0-3 (the snake_case
names turn_on, turn_off, is_enabled and get_power work too). Commands given
as arguments are sent in order; without arguments ctl reads one command per
line from stdin until EOF or "quit".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.address == "" {
				opts.address = a.cfg.Switch.ListenAddress
			}
			return runSwitchCtl(cmd.Context(), opts, args, a.stdin, a.stdout, a.log)
		},
	}
	cmd.Flags().StringVarP(&opts.address, "address", "a", "", "Switch address (default switch.listen_address)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 5*time.Second, "Connect and per-command timeout")
	return logToStderr(cmd)
}

// runSwitchCtl holds one connection open for the whole session.
func runSwitchCtl(ctx context.Context, opts switchCtlOptions, args []string, in io.Reader, out io.Writer, log *logging.Logger) error {
	client, err := powerswitch.Connect(ctx, powerswitch.ClientConfig{
		Address:        opts.address,
		ConnectTimeout: opts.timeout,
		IOTimeout:      opts.timeout,
	})
	if err != nil {
		return fmt.Errorf("connecting to switch: %w", err)
	}
	defer client.Close()
	log.Info("connected to switch", "address", opts.address)

	send := func(word string) error {
		cmd, parseErr := parseCtlCommand(word)
		if parseErr != nil {
			fmt.Fprintf(out, "%v\n", parseErr)
			return nil
		}
		resp, runErr := client.RunCommand(ctx, cmd)
		if runErr != nil {
			return fmt.Errorf("%s: %w", cmd, runErr)
		}
		fmt.Fprintf(out, "%s -> %s\n", cmd, resp)
		return nil
	}

	if len(args) > 0 {
		for _, word := range args {
			if err := send(word); err != nil {
				return err
			}
		}
		return nil
	}

	fmt.Fprintln(out, "commands: on, off, status, power, quit")
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		word := strings.TrimSpace(scanner.Text())
		switch word {
		case "":
			continue
		case "quit", "exit":
			return nil
		}
		if err := send(word); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading commands: %w", err)
	}
	return nil
}

// ctlAliases are the short names accepted by "switch ctl".
var ctlAliases = map[string]powerswitch.Command{
	"off":    powerswitch.CommandTurnOff,
	"on":     powerswitch.CommandTurnOn,
	"status": powerswitch.CommandIsEnabled,
	"power":  powerswitch.CommandGetPower,
}

// parseCtlCommand accepts a short alias, a bus command name or a wire code.
// Wire codes outside 0-3 are sent as the Unknown command.
func parseCtlCommand(word string) (powerswitch.Command, error) {
	word = strings.ToLower(word)
	if cmd, ok := ctlAliases[word]; ok {
		return cmd, nil
	}
	if n, err := strconv.ParseUint(word, 10, 8); err == nil {
		return powerswitch.DecodeCommand(byte(n)), nil
	}
	return powerswitch.ParseCommandName(word)
}
