package house

import (
	"errors"
	"fmt"
)

var (
	// ErrRoomNotFound is returned when a room name or ID does not exist.
	ErrRoomNotFound = errors.New("room not found")

	// ErrDeviceNotFound is returned when a device is not in a room or has
	// no status provider.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrRoomExists is returned when creating a room whose name is taken.
	ErrRoomExists = errors.New("room already exists")

	// ErrInvalidName is returned for empty or overlong room/device names.
	ErrInvalidName = errors.New("invalid name")

	// ErrInvalidKind is returned for an unsupported device kind.
	ErrInvalidKind = errors.New("invalid device kind")

	// ErrInvalidEndpoint is returned when a device lacks the addresses its
	// kind requires.
	ErrInvalidEndpoint = errors.New("invalid device endpoint")
)

// DeviceNotFoundError reports a device in the directory that the info
// provider could not describe. It matches ErrDeviceNotFound with errors.Is.
type DeviceNotFoundError struct {
	Device string
	Room   string
}

func (e *DeviceNotFoundError) Error() string {
	return fmt.Sprintf("Not found device %q in room %q", e.Device, e.Room)
}

// Is reports whether target is ErrDeviceNotFound.
func (e *DeviceNotFoundError) Is(target error) bool {
	return target == ErrDeviceNotFound
}
