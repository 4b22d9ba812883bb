package house

import (
	"context"
	"strings"
	"sync"
)

// DeviceInfoProvider renders the status line of a device.
type DeviceInfoProvider interface {
	// Report returns the status of device in room, or false if the
	// provider does not know the device.
	Report(ctx context.Context, room, device string) (string, bool)
}

// StatusReporter is a single device that can describe itself.
type StatusReporter interface {
	Status(ctx context.Context) string
}

// CreateReport builds one line per device, rooms and devices in sorted
// order. The first device the provider cannot describe aborts the report
// with a *DeviceNotFoundError.
func (h *House) CreateReport(ctx context.Context, provider DeviceInfoProvider) (string, error) {
	var b strings.Builder
	for _, room := range h.Layout() {
		for _, device := range room.Devices {
			if err := ctx.Err(); err != nil {
				return "", err
			}
			line, ok := provider.Report(ctx, room.Name, device)
			if !ok {
				return "", &DeviceNotFoundError{Device: device, Room: room.Name}
			}
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	return b.String(), nil
}

type deviceKey struct {
	room   string
	device string
}

// Registry is a DeviceInfoProvider backed by registered StatusReporters.
//
// Thread Safety: all methods are safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	reporters map[deviceKey]StatusReporter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{reporters: make(map[deviceKey]StatusReporter)}
}

// Register binds a reporter to room/device, replacing any previous one.
func (r *Registry) Register(room, device string, reporter StatusReporter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reporters[deviceKey{room, device}] = reporter
}

// Unregister removes the reporter for room/device.
func (r *Registry) Unregister(room, device string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.reporters, deviceKey{room, device})
}

// Report implements DeviceInfoProvider.
func (r *Registry) Report(ctx context.Context, room, device string) (string, bool) {
	r.mu.RLock()
	reporter, ok := r.reporters[deviceKey{room, device}]
	r.mu.RUnlock()
	if !ok {
		return "", false
	}
	return reporter.Status(ctx), true
}

// Len returns the number of registered devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.reporters)
}
