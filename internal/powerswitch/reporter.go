package powerswitch

import (
	"context"
	"fmt"
	"strconv"
	"sync"
)

// LocalReporter renders the status of an in-process switch.
type LocalReporter struct {
	Shared *Shared
}

// Status returns the switch status line.
func (r LocalReporter) Status(context.Context) string {
	return r.Shared.String()
}

// RemoteReporter renders the status of a switch reached over the network.
//
// Each call opens a fresh connection, asks IsEnabled and GetPower, and
// closes it again. The power consumption shown is the configured value the
// server reports while on; while off the server only reports 0, so the
// last value seen while on is shown instead.
type RemoteReporter struct {
	Description string
	Client      ClientConfig

	mu              sync.Mutex
	lastConsumption float64
}

// NewRemoteReporter creates a reporter for the switch at address.
func NewRemoteReporter(description, address string) *RemoteReporter {
	return &RemoteReporter{Description: description, Client: ClientConfig{Address: address}}
}

// Status queries the switch and renders its status line. An unreachable
// switch is rendered as such rather than returned as an error.
func (r *RemoteReporter) Status(ctx context.Context) string {
	snap, err := r.Query(ctx)
	if err != nil {
		return fmt.Sprintf("Power Switch (description: %s, unreachable)", strconv.Quote(r.Description))
	}
	return snap.String()
}

// Query fetches the current state from the server.
func (r *RemoteReporter) Query(ctx context.Context) (Snapshot, error) {
	client, err := Connect(ctx, r.Client)
	if err != nil {
		return Snapshot{}, err
	}
	defer client.Close()

	enabled, err := client.RunCommand(ctx, CommandIsEnabled)
	if err != nil {
		return Snapshot{}, err
	}
	power, err := client.RunCommand(ctx, CommandGetPower)
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{Description: r.Description, State: StateOff}
	if enabled.Kind == ResponseEnabled {
		snap.State = StateOn
	}
	if power.Kind == ResponsePower {
		snap.Power = power.Power
	}
	r.mu.Lock()
	if snap.On() {
		r.lastConsumption = snap.Power
	}
	snap.PowerConsumption = r.lastConsumption
	r.mu.Unlock()
	return snap, nil
}

// Command sends a single command over a fresh connection.
func (r *RemoteReporter) Command(ctx context.Context, cmd Command) (Response, error) {
	client, err := Connect(ctx, r.Client)
	if err != nil {
		return Response{}, err
	}
	defer client.Close()
	return client.RunCommand(ctx, cmd)
}
