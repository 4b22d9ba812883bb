package house

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

const maxNameLength = 100

// ValidateName checks a room or device name.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// House is a named set of rooms, each holding a set of device names.
//
// Thread Safety: all methods are safe for concurrent use.
type House struct {
	name string

	mu    sync.RWMutex
	rooms map[string]map[string]struct{}
}

// RoomLayout is a read-only view of one room.
type RoomLayout struct {
	Name    string   `json:"name"`
	Devices []string `json:"devices"`
}

// New creates an empty house.
func New(name string) *House {
	return &House{name: name, rooms: make(map[string]map[string]struct{})}
}

// Name returns the house name.
func (h *House) Name() string { return h.name }

// AddRoom adds an empty room. It returns false if the room already exists.
func (h *House) AddRoom(room string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[room]; ok {
		return false
	}
	h.rooms[room] = make(map[string]struct{})
	return true
}

// RemoveRoom removes a room and its devices. It returns false if the room
// did not exist.
func (h *House) RemoveRoom(room string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[room]; !ok {
		return false
	}
	delete(h.rooms, room)
	return true
}

// AddDevice adds device to room. It returns false if the device was
// already present.
func (h *House) AddDevice(room, device string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	devices, ok := h.rooms[room]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrRoomNotFound, room)
	}
	if _, ok := devices[device]; ok {
		return false, nil
	}
	devices[device] = struct{}{}
	return true, nil
}

// RemoveDevice removes device from room. It returns false if the device
// was not present.
func (h *House) RemoveDevice(room, device string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	devices, ok := h.rooms[room]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrRoomNotFound, room)
	}
	if _, ok := devices[device]; !ok {
		return false, nil
	}
	delete(devices, device)
	return true, nil
}

// Rooms returns the room names in sorted order.
func (h *House) Rooms() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.rooms))
	for name := range h.rooms {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Devices returns the device names of room in sorted order.
func (h *House) Devices(room string) ([]string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	devices, ok := h.rooms[room]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrRoomNotFound, room)
	}
	return sortedKeys(devices), nil
}

// Layout returns every room with its devices, sorted by name.
func (h *House) Layout() []RoomLayout {
	h.mu.RLock()
	defer h.mu.RUnlock()
	layout := make([]RoomLayout, 0, len(h.rooms))
	for name, devices := range h.rooms {
		layout = append(layout, RoomLayout{Name: name, Devices: sortedKeys(devices)})
	}
	slices.SortFunc(layout, func(a, b RoomLayout) int { return strings.Compare(a.Name, b.Name) })
	return layout
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
