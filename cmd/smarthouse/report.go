package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/smarthouse-core/internal/house"
	"github.com/nerrad567/smarthouse-core/internal/infrastructure/config"
	"github.com/nerrad567/smarthouse-core/internal/infrastructure/logging"
	"github.com/nerrad567/smarthouse-core/internal/powerswitch"
	"github.com/nerrad567/smarthouse-core/internal/thermometer"
)

func newReportCommand(a *app) *cobra.Command {
	var settle time.Duration
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print one status line per device in the house",
		Long: `Loads the house directory and prints the status of every device,
rooms and devices in name order.

Switches are queried over TCP. Thermometers are received for --settle
before the report is printed so they can show a fresh sample.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReport(cmd.Context(), a.cfg, a.log, a.stdout, settle)
		},
	}
	cmd.Flags().DurationVar(&settle, "settle", 2*time.Second, "How long to receive thermometer samples before reporting")
	return logToStderr(cmd)
}

// runReport prints the house report to out.
func runReport(ctx context.Context, cfg *config.Config, log *logging.Logger, out io.Writer, settle time.Duration) error {
	dir, err := openDirectory(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer dir.close(log)

	registry, receivers, err := buildRegistry(dir.placements, cfg, log, nil)
	if err != nil {
		return err
	}
	defer stopReceivers(receivers, log)

	if len(receivers) > 0 && settle > 0 {
		timer := time.NewTimer(settle)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	report, err := dir.house.CreateReport(ctx, registry)
	if err != nil {
		return fmt.Errorf("creating report: %w", err)
	}
	_, err = io.WriteString(out, report)
	return err
}

// liveReceiver is a started receiver and the id of its device.
type liveReceiver struct {
	id string
	*thermometer.Receiver
}

// buildRegistry binds a status reporter to every placed device. Switches
// get a RemoteReporter; thermometers get a started Receiver, which the
// caller must stop. onSample, when set, supplies each receiver's sample
// callback.
func buildRegistry(placements []house.Placement, cfg *config.Config, log *logging.Logger, onSample func(id string) func(float64)) (*house.Registry, []liveReceiver, error) {
	registry := house.NewRegistry()
	var receivers []liveReceiver

	for _, p := range placements {
		id := deviceID(p)
		switch p.Device.Kind {
		case house.KindSwitch:
			registry.Register(p.Room, p.Device.Name, powerswitch.NewRemoteReporter(p.Device.Description, p.Device.Address))

		case house.KindThermometer:
			opts := []thermometer.Option{thermometer.WithLogger(log.Device("thermometer", id))}
			if onSample != nil {
				opts = append(opts, thermometer.WithOnSample(onSample(id)))
			}
			rcv, err := thermometer.Start(thermometer.ReceiverConfig{
				ListenAddress:  p.Device.ListenAddress,
				PeerAddress:    p.Device.PeerAddress,
				ReceiveTimeout: cfg.Thermometer.ReceiveTimeout,
			}, opts...)
			if err != nil {
				stopReceivers(receivers, log)
				return nil, nil, fmt.Errorf("starting thermometer %q in room %q: %w", p.Device.Name, p.Room, err)
			}
			registry.Register(p.Room, p.Device.Name, rcv)
			receivers = append(receivers, liveReceiver{id: id, Receiver: rcv})

		default:
			log.Warn("skipping device of unknown kind", "device", p.Device.Name, "room", p.Room, "kind", p.Device.Kind)
		}
	}
	return registry, receivers, nil
}

// stopReceivers closes every receiver.
func stopReceivers(receivers []liveReceiver, log *logging.Logger) {
	for _, r := range receivers {
		if err := r.Close(); err != nil {
			log.Error("error stopping thermometer receiver", "device_id", r.id, "error", err)
		}
	}
}
