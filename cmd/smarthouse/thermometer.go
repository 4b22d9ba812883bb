package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/smarthouse-core/internal/infrastructure/config"
	"github.com/nerrad567/smarthouse-core/internal/infrastructure/logging"
	"github.com/nerrad567/smarthouse-core/internal/thermometer"
)

// defaultPrintInterval is used when thermometer.print_interval is unset.
const defaultPrintInterval = 2 * time.Second

// newThermometerCommand creates the thermometer command group.
func newThermometerCommand(a *app) *cobra.Command {
	thermCmd := &cobra.Command{
		Use:   "thermometer",
		Short: "Receive or send UDP temperature telemetry",
	}
	thermCmd.AddCommand(newThermometerReceiveCommand(a))
	thermCmd.AddCommand(newThermometerSendCommand(a))
	return thermCmd
}

func newThermometerReceiveCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "receive",
		Short: "Receive samples from the configured peer and print the temperature",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReceiver(cmd.Context(), a.cfg, a.log, a.stdout, nil)
		},
	}
	return logToStderr(cmd)
}

// runReceiver receives telemetry until ctx is cancelled, printing the
// status line every print interval. Samples are fanned out to MQTT and
// InfluxDB when those are enabled.
func runReceiver(ctx context.Context, cfg *config.Config, log *logging.Logger, out io.Writer, ready func(net.Addr)) error {
	tc := cfg.Thermometer
	log = log.With("device_id", tc.ID)

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

	events := &sinks{mqtt: mqttClient, influx: influxClient, log: log}
	rcv, err := thermometer.Start(thermometer.ReceiverConfig{
		ListenAddress:  tc.ListenAddress,
		PeerAddress:    tc.PeerAddress,
		ReceiveTimeout: tc.ReceiveTimeout,
	},
		thermometer.WithLogger(log.Device("thermometer", tc.ID)),
		thermometer.WithOnSample(events.temperature(tc.ID)),
	)
	if err != nil {
		return fmt.Errorf("starting thermometer receiver: %w", err)
	}
	defer func() {
		log.Info("stopping thermometer receiver")
		if closeErr := rcv.Close(); closeErr != nil {
			log.Error("error stopping thermometer receiver", "error", closeErr)
		}
	}()
	if ready != nil {
		ready(rcv.LocalAddr())
	}

	interval := tc.PrintInterval
	if interval <= 0 {
		interval = defaultPrintInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fmt.Fprintln(out, rcv.String())
		}
	}
}

// sendOptions are the flags of "thermometer send".
type sendOptions struct {
	target string
	count  int
}

func newThermometerSendCommand(a *app) *cobra.Command {
	var opts sendOptions
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a synthetic temperature curve to a receiver",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.target != "" {
				a.cfg.Sender.TargetAddress = opts.target
			}
			return runSender(cmd.Context(), a.cfg.Sender, a.log, opts.count)
		},
	}
	cmd.Flags().StringVar(&opts.target, "target", "", "Receiver address (overrides sender.target_address)")
	cmd.Flags().IntVar(&opts.count, "count", 0, "Stop after this many samples (0 sends until interrupted)")
	return cmd
}

// runSender sends samples every sc.Interval until ctx is cancelled, or
// until count samples have gone out when count is positive.
func runSender(ctx context.Context, sc config.SenderConfig, log *logging.Logger, count int) error {
	sender, err := thermometer.NewSender(thermometer.SenderConfig{
		LocalAddress:  sc.LocalAddress,
		TargetAddress: sc.TargetAddress,
	})
	if err != nil {
		return fmt.Errorf("starting thermometer sender: %w", err)
	}
	defer sender.Close()
	sender.SetLogger(log.Component("sender"))

	gen := thermometer.NewGenerator(sc.From, sc.Delta)
	next := gen.Value
	if count > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(ctx)
		defer cancel()
		sent := 0
		next = func() float64 {
			sent++
			if sent >= count {
				cancel()
			}
			return gen.Value()
		}
	}

	log.Info("sending temperature samples",
		"local", sender.LocalAddr().String(),
		"target", sc.TargetAddress,
		"interval", sc.Interval.String(),
	)
	return sender.Run(ctx, sc.Interval, next)
}
